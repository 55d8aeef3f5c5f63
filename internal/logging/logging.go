// Package logging carries forward the teacher's Logger contract
// (pkg/orchestrator/types.go: Logger interface + NoOpLogger) unchanged, and
// adds a zerolog-backed implementation for production use.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging contract every Echo component accepts.
// Kept identical in shape to the teacher's pkg/orchestrator.Logger so every
// component can be unit tested with a NoOpLogger the same way the teacher's
// ManagedStream tests do.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Used as the default when no logger is
// supplied, exactly as the teacher's NoOpLogger does.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...interface{}) {}
func (NoOpLogger) Info(msg string, args ...interface{})  {}
func (NoOpLogger) Warn(msg string, args ...interface{})  {}
func (NoOpLogger) Error(msg string, args ...interface{}) {}

// ZeroLogger adapts zerolog.Logger to the Logger interface, pairing
// key/value varargs (as slog and the teacher's call sites use them) onto a
// zerolog event.
type ZeroLogger struct {
	z zerolog.Logger
}

// New builds a ZeroLogger that writes leveled, timestamped JSON (or, when
// pretty is true, zerolog's console writer) to stderr.
func New(level string, pretty bool) *ZeroLogger {
	var w interface{ Write([]byte) (int, error) } = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	z := zerolog.New(w).With().Timestamp().Logger()
	z = z.Level(parseLevel(level))
	return &ZeroLogger{z: z}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *ZeroLogger) Debug(msg string, args ...interface{}) { l.event(l.z.Debug(), args).Msg(msg) }
func (l *ZeroLogger) Info(msg string, args ...interface{})  { l.event(l.z.Info(), args).Msg(msg) }
func (l *ZeroLogger) Warn(msg string, args ...interface{})  { l.event(l.z.Warn(), args).Msg(msg) }
func (l *ZeroLogger) Error(msg string, args ...interface{}) { l.event(l.z.Error(), args).Msg(msg) }

// event folds alternating key/value args onto a zerolog.Event. Odd trailing
// keys (missing a value) are logged with a nil value rather than dropped.
func (l *ZeroLogger) event(ev *zerolog.Event, args []interface{}) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if i+1 >= len(args) {
			ev = ev.Interface(key, nil)
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	return ev
}

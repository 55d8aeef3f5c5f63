// Package speaker implements Echo's SpeakerEngine: it subscribes to
// NarrationBus, synthesizes speech, schedules playback by priority with
// interruption and backlog shedding, activates alerts with the
// AlertManager, and optionally mirrors audio to a remote room.
package speaker

import (
	"context"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
)

// AlertActivator is the subset of the AlertManager the SpeakerEngine drives
// directly, after a critical narration has actually played (spec §4.4).
// Accepting an interface instead of *alert.Manager keeps this package free
// of a direct dependency on pkg/alert.
type AlertActivator interface {
	Activate(sessionID string, reason events.BlockReason, text string, options []string)
}

// State is the SpeakerEngine's composite degradation state (spec §4.4).
type State string

const (
	StateActive   State = "active"
	StateDisabled State = "disabled"
	StateDegraded State = "degraded"
)

// TTSProvider is the SpeakerEngine's synthesis backend. TTSClient (REST)
// and LokutorTTS (websocket) both satisfy it; which one is wired in is an
// internal/config choice, not a SpeakerEngine concern.
type TTSProvider interface {
	Start(ctx context.Context)
	Stop()
	Available() bool
	Synthesize(ctx context.Context, text string) []int16
}

// Engine is the SpeakerEngine component.
type Engine struct {
	narrationBus *bus.Bus[events.Narration]
	tts          TTSProvider
	player       *Player
	publisher    *RemotePublisher
	alerts       AlertActivator
	logger       logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a SpeakerEngine. tts, player, publisher, and alerts may
// each be nil/unconfigured; every call site degrades gracefully per spec
// §4.4.
func New(narrationBus *bus.Bus[events.Narration], tts TTSProvider, player *Player, publisher *RemotePublisher, alerts AlertActivator, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Engine{
		narrationBus: narrationBus,
		tts:          tts,
		player:       player,
		publisher:    publisher,
		alerts:       alerts,
		logger:       logger,
	}
}

// Start subscribes to NarrationBus and launches the consuming goroutine. It
// also probes TTS availability.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	if e.tts != nil {
		e.tts.Start(e.ctx)
	}

	sub := e.narrationBus.Subscribe()
	e.wg.Add(1)
	go e.run(sub)
}

// Stop cancels the loop, awaits it, releases the output device, and closes
// the remote publisher connection.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.tts != nil {
		e.tts.Stop()
	}
	if e.player != nil {
		e.player.Close()
	}
	if e.publisher != nil {
		e.publisher.Close()
	}
}

func (e *Engine) run(sub *bus.Subscription[events.Narration]) {
	defer e.wg.Done()
	defer e.narrationBus.Unsubscribe(sub)

	for {
		select {
		case <-e.ctx.Done():
			return
		case n, ok := <-sub.Recv():
			if !ok {
				return
			}
			e.handle(n)
		}
	}
}

// handle dispatches one Narration per the priority routing table (spec
// §4.4).
func (e *Engine) handle(n events.Narration) {
	switch n.Priority {
	case events.PriorityCritical:
		e.handleCritical(n)
	case events.PriorityLow:
		e.handleLow(n)
	default:
		e.handleNormal(n)
	}
}

func (e *Engine) handleCritical(n events.Narration) {
	if e.player != nil {
		e.player.Interrupt()
		e.player.PlayAlert(n.BlockReason)
	}
	pcm := e.synthesize(n.Text)
	if e.player != nil && pcm != nil {
		e.player.PlayImmediate(pcm)
	}
	if e.publisher != nil && pcm != nil {
		e.publisher.Publish(e.ctx, pcm)
	}
	if e.alerts != nil {
		e.alerts.Activate(n.SessionID, n.BlockReason, n.Text, n.Options)
	}
}

func (e *Engine) handleNormal(n events.Narration) {
	pcm := e.synthesize(n.Text)
	if pcm == nil {
		return
	}
	if e.player != nil {
		e.player.Enqueue(pcm, 1)
	}
	if e.publisher != nil {
		e.publisher.Publish(e.ctx, pcm)
	}
}

func (e *Engine) handleLow(n events.Narration) {
	if e.player != nil && e.player.Depth() > e.player.backlogThreshold {
		e.logger.Warn("speaker: dropping low-priority narration, backlog full", "session_id", n.SessionID)
		return
	}
	pcm := e.synthesize(n.Text)
	if pcm == nil {
		return
	}
	if e.player != nil {
		e.player.Enqueue(pcm, 2)
	}
	if e.publisher != nil {
		e.publisher.Publish(e.ctx, pcm)
	}
}

func (e *Engine) synthesize(text string) []int16 {
	if e.tts == nil {
		return nil
	}
	return e.tts.Synthesize(e.ctx, text)
}

// NarrateBlocking synthesizes and plays text immediately, then waits out its
// approximate playback duration before returning. The VoiceEngine uses this
// for its "Sending: {matched}" confirmation (spec §4.5 step 7), so that
// speech precedes keystroke injection and the microphone does not
// immediately capture our own voice on the next listen cycle.
func (e *Engine) NarrateBlocking(ctx context.Context, text string) {
	pcm := e.synthesize(text)
	if pcm == nil {
		return
	}
	if e.player != nil {
		e.player.PlayImmediate(pcm)
	}
	if e.publisher != nil {
		e.publisher.Publish(ctx, pcm)
	}

	duration := time.Duration(len(pcm)) * time.Second / time.Duration(e.player.sampleRateOrDefault())
	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}
}

// RepeatCallback implements the function the AlertManager invokes on every
// repeat-timer firing (spec §4.4: "interrupt + play_alert + synthesize +
// play_immediate + publish").
func (e *Engine) RepeatCallback(reason events.BlockReason, text string) {
	if e.player != nil {
		e.player.Interrupt()
		e.player.PlayAlert(reason)
	}
	pcm := e.synthesize(text)
	if pcm == nil {
		return
	}
	if e.player != nil {
		e.player.PlayImmediate(pcm)
	}
	if e.publisher != nil {
		e.publisher.Publish(e.ctx, pcm)
	}
}

// Status reports the composite degradation state (spec §4.4): active iff
// both TTS and device are available, disabled iff neither, degraded
// otherwise.
func (e *Engine) Status() State {
	ttsUp := e.tts != nil && e.tts.Available()
	deviceUp := e.player != nil && e.player.Available()

	switch {
	case ttsUp && deviceUp:
		return StateActive
	case !ttsUp && !deviceUp:
		return StateDisabled
	default:
		return StateDegraded
	}
}

// TTSAvailable reports the TTS client's last-known health, for /health.
func (e *Engine) TTSAvailable() bool {
	return e.tts != nil && e.tts.Available()
}

// AudioAvailable reports whether an output device is attached, for /health.
func (e *Engine) AudioAvailable() bool {
	return e.player != nil && e.player.Available()
}

// RemoteConnected reports whether the remote publisher currently holds an
// open connection, for /health.
func (e *Engine) RemoteConnected() bool {
	return e.publisher != nil && e.publisher.Connected()
}

// AttachPlayerDevice wires the Player's playback device to a shared malgo
// context, a thin passthrough so internal/app never needs the Player field.
func (e *Engine) AttachPlayerDevice(mctx *malgo.AllocatedContext) error {
	if e.player == nil {
		return nil
	}
	return e.player.AttachDevice(mctx)
}

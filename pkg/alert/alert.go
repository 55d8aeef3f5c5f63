// Package alert implements Echo's AlertManager: it subscribes to RawBus,
// tracks one ActiveAlert per session, and drives a per-alert repeat-timer
// state machine that calls back into the SpeakerEngine. The repeat callback
// is injected rather than imported directly, breaking the natural
// AlertManager<->SpeakerEngine cycle the same way the teacher's
// ManagedStream breaks its own cross-component cycles with registered
// callbacks instead of direct references.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
)

// DefaultRepeatInterval and DefaultMaxRepeats match spec §4.3's W_repeat/max
// defaults. A zero interval disables the repeat timer entirely (one-shot).
const (
	DefaultRepeatInterval = 30 * time.Second
	DefaultMaxRepeats     = 5
)

// RepeatCallback is invoked by a firing repeat timer. Registered by the
// SpeakerEngine; a callback that panics or is slow must never stop the
// manager's event loop, so callers should keep it fast and non-panicking.
type RepeatCallback func(reason events.BlockReason, text string)

// activeAlert is AlertManager-private per-session state (spec §3.1
// ActiveAlert). cancel stops the alert's own timer goroutine, and done is
// closed when that goroutine exits.
type activeAlert struct {
	sessionID    string
	blockReason  events.BlockReason
	narrationText string
	options      []string
	createdAt    time.Time
	repeatCount  int

	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the AlertManager component.
type Manager struct {
	rawBus *bus.Bus[events.RawEvent]
	logger logging.Logger

	repeatInterval time.Duration
	maxRepeats     int

	mu       sync.Mutex
	alerts   map[string]*activeAlert
	callback RepeatCallback

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an AlertManager. A zero repeatInterval disables repeats; a
// non-positive maxRepeats falls back to DefaultMaxRepeats.
func New(rawBus *bus.Bus[events.RawEvent], repeatInterval time.Duration, maxRepeats int, logger logging.Logger) *Manager {
	if maxRepeats <= 0 {
		maxRepeats = DefaultMaxRepeats
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Manager{
		rawBus:         rawBus,
		logger:         logger,
		repeatInterval: repeatInterval,
		maxRepeats:     maxRepeats,
		alerts:         make(map[string]*activeAlert),
	}
}

// SetRepeatCallback registers the function invoked on every repeat-timer
// firing. Must be called before Start to avoid a racy first firing; safe to
// call again later to rebind.
func (m *Manager) SetRepeatCallback(cb RepeatCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

// Start subscribes to RawBus and launches the consuming goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	sub := m.rawBus.Subscribe()
	m.wg.Add(1)
	go m.run(sub)
}

// Stop cancels the loop and every live repeat timer, then awaits them all
// (spec §3.2: "every timer task must be cancelled and awaited to completion
// during shutdown").
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	alerts := make([]*activeAlert, 0, len(m.alerts))
	for _, a := range m.alerts {
		alerts = append(alerts, a)
	}
	m.alerts = make(map[string]*activeAlert)
	m.mu.Unlock()

	for _, a := range alerts {
		a.cancel()
		<-a.done
	}
}

func (m *Manager) run(sub *bus.Subscription[events.RawEvent]) {
	defer m.wg.Done()
	defer m.rawBus.Unsubscribe(sub)

	for {
		select {
		case <-m.ctx.Done():
			return
		case e, ok := <-sub.Recv():
			if !ok {
				return
			}
			m.handle(e)
		}
	}
}

// handle clears any active alert for the session on a non-blocked event.
// Blocked events never arrive here with a reason to activate from; activation
// is driven by the SpeakerEngine via Activate, after a critical narration
// has actually played.
func (m *Manager) handle(e events.RawEvent) {
	if e.Kind == events.KindAgentBlocked {
		return
	}
	m.clear(e.SessionID)
}

// Activate replaces any existing alert for session_id (cancelling its
// timer) and starts a fresh repeat timer. Called by the SpeakerEngine after
// the critical narration for this block has been played.
func (m *Manager) Activate(sessionID string, reason events.BlockReason, text string, options []string) {
	m.mu.Lock()
	if old, ok := m.alerts[sessionID]; ok {
		old.cancel()
		delete(m.alerts, sessionID)
	}

	alertCtx, cancel := context.WithCancel(m.ctx)
	a := &activeAlert{
		sessionID:     sessionID,
		blockReason:   reason,
		narrationText: text,
		options:       options,
		createdAt:     time.Now(),
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	m.alerts[sessionID] = a
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runRepeatTimer(alertCtx, a)
}

// clear cancels and removes the active alert for a session, if any.
func (m *Manager) clear(sessionID string) {
	m.mu.Lock()
	a, ok := m.alerts[sessionID]
	if ok {
		delete(m.alerts, sessionID)
	}
	m.mu.Unlock()

	if ok {
		a.cancel()
	}
}

// runRepeatTimer is the state machine from spec §4.3: sleep W_repeat, fire
// the callback, increment count, stop at max, else sleep again.
// W_repeat == 0 disables the loop (one-shot alert, no repeats).
func (m *Manager) runRepeatTimer(ctx context.Context, a *activeAlert) {
	defer m.wg.Done()
	defer close(a.done)

	if m.repeatInterval <= 0 {
		<-ctx.Done()
		return
	}

	timer := time.NewTimer(m.repeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.fireCallback(a)

			a.repeatCount++
			if a.repeatCount >= m.maxRepeats {
				return
			}
			timer.Reset(m.repeatInterval)
		}
	}
}

// fireCallback invokes the registered callback, containing any panic so a
// misbehaving SpeakerEngine hook cannot kill the repeat loop (spec §4.3:
// "Callback exceptions are logged and do not stop the loop").
func (m *Manager) fireCallback(a *activeAlert) {
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("alert: repeat callback panicked", "session_id", a.sessionID, "panic", r)
		}
	}()
	cb(a.blockReason, a.narrationText)
}

// HasActiveAlert reports whether the session currently has an active alert.
func (m *Manager) HasActiveAlert(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.alerts[sessionID]
	return ok
}

// ActiveCount reports the number of currently active alerts, across all
// sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

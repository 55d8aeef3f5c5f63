// Package voice implements Echo's VoiceEngine: it subscribes to RawBus,
// and on an agent_blocked event with options, runs a single-flight listen
// cycle (capture -> transcribe -> match -> respond -> dispatch), emitting
// Response on ResponseBus.
package voice

import (
	"context"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
)

// Narrator is the subset of the SpeakerEngine the VoiceEngine drives for
// confirmation narration (spec §4.5). Accepting an interface avoids a
// direct dependency on pkg/speaker.
type Narrator interface {
	NarrateBlocking(ctx context.Context, text string)
}

// State is the VoiceEngine's composite degradation state, mirroring the
// SpeakerEngine's Status() (spec §4.4/§4.5 share the same active/degraded/
// disabled vocabulary).
type State string

const (
	StateActive   State = "active"
	StateDisabled State = "disabled"
	StateDegraded State = "degraded"
)

// Config holds the VoiceEngine's tunables (spec §4.5, defaults from
// internal/config).
type Config struct {
	ListenTimeout       time.Duration
	SilenceThreshold    float64
	SilenceDuration     time.Duration
	MaxRecordDuration   time.Duration
	ConfidenceThreshold float64
	SampleRate          int
}

// Engine is the VoiceEngine component.
type Engine struct {
	rawBus      *bus.Bus[events.RawEvent]
	responseBus *bus.Bus[events.Response]
	mic         *Microphone
	stt         *STTClient
	dispatcher  *Dispatcher
	narrator    Narrator
	cfg         Config
	logger      logging.Logger

	mu            sync.Mutex
	listenGen     int64
	activeSession string
	activeCancel  context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a VoiceEngine. narrator may be nil (no confirmation
// narration, per spec: "if available").
func New(rawBus *bus.Bus[events.RawEvent], responseBus *bus.Bus[events.Response], mic *Microphone, stt *STTClient, dispatcher *Dispatcher, narrator Narrator, cfg Config, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Engine{
		rawBus:      rawBus,
		responseBus: responseBus,
		mic:         mic,
		stt:         stt,
		dispatcher:  dispatcher,
		narrator:    narrator,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start subscribes to RawBus and launches the consuming goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	if e.stt != nil {
		e.stt.Start(e.ctx)
	}

	sub := e.rawBus.Subscribe()
	e.wg.Add(1)
	go e.run(sub)
}

// Stop cancels every in-flight listen task, the consuming loop, and awaits
// all of them.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.stt != nil {
		e.stt.Stop()
	}
	if e.mic != nil {
		e.mic.Close()
	}
}

func (e *Engine) run(sub *bus.Subscription[events.RawEvent]) {
	defer e.wg.Done()
	defer e.rawBus.Unsubscribe(sub)

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-sub.Recv():
			if !ok {
				return
			}
			e.handle(ev)
		}
	}
}

// handle implements the activation rule (spec §4.5): a blocked event with
// options starts a listen task, cancelling whatever listen task is
// currently active across every session first — listening is single-flight
// globally, since one shared microphone device can only serve one listen
// cycle at a time. Any other event for the session currently being
// listened to cancels that task.
func (e *Engine) handle(ev events.RawEvent) {
	if ev.Kind == events.KindAgentBlocked && len(ev.Options) > 0 {
		e.startListen(ev)
		return
	}
	e.cancelListen(ev.SessionID)
}

func (e *Engine) startListen(ev events.RawEvent) {
	e.mu.Lock()
	if e.activeCancel != nil {
		e.activeCancel()
	}
	listenCtx, cancel := context.WithCancel(e.ctx)
	e.activeSession = ev.SessionID
	e.activeCancel = cancel
	e.listenGen++
	gen := e.listenGen
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.finishListen(gen)
		e.runListenCycle(listenCtx, ev)
	}()
}

func (e *Engine) finishListen(gen int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Only clear state if no newer listen task has since replaced this one
	// (a replacement already overwrote activeSession/activeCancel and will
	// clean up itself when it finishes).
	if e.listenGen == gen {
		e.activeSession = ""
		e.activeCancel = nil
	}
}

func (e *Engine) cancelListen(sessionID string) {
	e.mu.Lock()
	var cancel context.CancelFunc
	if e.activeSession == sessionID && e.activeCancel != nil {
		cancel = e.activeCancel
		e.activeSession = ""
		e.activeCancel = nil
	}
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runListenCycle implements spec §4.5's eight-step listen cycle.
func (e *Engine) runListenCycle(ctx context.Context, ev events.RawEvent) {
	if e.mic == nil || e.stt == nil || e.dispatcher == nil {
		return
	}

	pcm := e.mic.CaptureUntilSilence(ctx, e.cfg.ListenTimeout, e.cfg.SilenceThreshold, e.cfg.SilenceDuration, e.cfg.MaxRecordDuration)
	if pcm == nil {
		return
	}

	transcript, ok := e.stt.Transcribe(ctx, pcm)
	if !ok {
		e.narrate(ctx, "I couldn't understand. Please repeat or type your response.")
		return
	}

	result := Match(transcript, ev.Options, ev.BlockReason)
	if result.Confidence < e.cfg.ConfidenceThreshold {
		e.narrate(ctx, "I didn't catch that clearly. Please repeat.")
		return
	}

	e.responseBus.Emit(events.Response{
		Text:        result.Text,
		Transcript:  transcript,
		SessionID:   ev.SessionID,
		MatchMethod: result.Method,
		Confidence:  result.Confidence,
		Timestamp:   time.Now(),
		Options:     ev.Options,
	})

	e.narrate(ctx, "Sending: "+result.Text)
	if !e.dispatcher.Dispatch(result.Text) {
		e.narrate(ctx, "Couldn't send response. Please type: "+result.Text+".")
	}
}

// STTAvailable reports the STT client's last-known health, for /health.
func (e *Engine) STTAvailable() bool {
	return e.stt != nil && e.stt.Available()
}

// MicAvailable reports whether a capture device is attached, for /health.
func (e *Engine) MicAvailable() bool {
	return e.mic != nil && e.mic.Available()
}

// DispatchAvailable reports whether a dispatch mechanism was detected, for
// /health.
func (e *Engine) DispatchAvailable() bool {
	return e.dispatcher != nil && e.dispatcher.Method() != ""
}

// ListeningCount reports whether a listen task is currently active (0 or 1:
// listening is single-flight globally), for /health's stt_listening.
func (e *Engine) ListeningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeCancel != nil {
		return 1
	}
	return 0
}

// AttachMicDevice wires the Microphone's capture device to a shared malgo
// context, a thin passthrough so internal/app never needs the mic field.
func (e *Engine) AttachMicDevice(mctx *malgo.AllocatedContext) error {
	if e.mic == nil {
		return nil
	}
	return e.mic.AttachDevice(mctx)
}

// Status reports the composite degradation state: active iff both STT and
// microphone are available, disabled iff neither, degraded otherwise.
func (e *Engine) Status() State {
	sttUp := e.STTAvailable()
	micUp := e.MicAvailable()

	switch {
	case sttUp && micUp:
		return StateActive
	case !sttUp && !micUp:
		return StateDisabled
	default:
		return StateDegraded
	}
}

func (e *Engine) narrate(ctx context.Context, text string) {
	if e.narrator == nil {
		return
	}
	e.narrator.NarrateBlocking(ctx, text)
}

// HandleManualResponse bypasses capture/STT/matching entirely: it emits a
// verbatim, full-confidence Response, narrates a confirmation, and
// dispatches (spec §4.5: "Manual response entry point"), so a caller such
// as the HTTP surface can resolve a block without voice. Returns false if no
// dispatch mechanism is available or dispatch failed.
func (e *Engine) HandleManualResponse(sessionID, text string) bool {
	e.responseBus.Emit(events.Response{
		Text:        text,
		Transcript:  text,
		SessionID:   sessionID,
		MatchMethod: events.MatchVerbatim,
		Confidence:  1.0,
		Timestamp:   time.Now(),
	})

	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	e.narrate(ctx, "Sending: "+text)
	if e.dispatcher == nil {
		e.narrate(ctx, "Couldn't send response. Please type: "+text+".")
		return false
	}
	if !e.dispatcher.Dispatch(text) {
		e.narrate(ctx, "Couldn't send response. Please type: "+text+".")
		return false
	}
	return true
}

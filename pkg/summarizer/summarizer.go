// Package summarizer implements Echo's Summarizer stage: it subscribes to
// RawBus, routes events by kind (template rendering, batching, or LLM
// fallback), and emits Narration on NarrationBus. Structurally this is the
// teacher's ManagedStream pattern (owned context/cancel, a single consuming
// goroutine, a Logger) narrowed to one RawBus subscription instead of a
// per-session managed audio stream.
package summarizer

import (
	"context"
	"sync"

	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
)

// Method re-exports events.Method for call sites that only import this
// package.
type Method = events.Method

// Summarizer is the single-consumer loop described in spec §4.2.
type Summarizer struct {
	rawBus       *bus.Bus[events.RawEvent]
	narrationBus *bus.Bus[events.Narration]
	llm          *LLMClient
	logger       logging.Logger

	batcher *EventBatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Summarizer. llm may be nil, in which case agent_message
// events always fall back to truncation.
func New(rawBus *bus.Bus[events.RawEvent], narrationBus *bus.Bus[events.Narration], llm *LLMClient, logger logging.Logger) *Summarizer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &Summarizer{
		rawBus:       rawBus,
		narrationBus: narrationBus,
		llm:          llm,
		logger:       logger,
	}
	s.batcher = NewEventBatcher(s.emitBatch)
	return s
}

// Start subscribes to RawBus and launches the consuming goroutine.
func (s *Summarizer) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.llm != nil {
		s.llm.Start(s.ctx)
	}

	sub := s.rawBus.Subscribe()
	s.wg.Add(1)
	go s.run(sub)
}

// Stop cancels the loop, flushes any pending batch, and waits for the
// goroutine to exit. Guarantees §3.2's "every long-running consumer task
// must be cancelled and awaited to completion during shutdown".
func (s *Summarizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.llm != nil {
		s.llm.Stop()
	}
}

func (s *Summarizer) run(sub *bus.Subscription[events.RawEvent]) {
	defer s.wg.Done()
	defer s.rawBus.Unsubscribe(sub)
	defer s.batcher.Flush() // final flush on shutdown, per spec §4.2

	for {
		select {
		case <-s.ctx.Done():
			return
		case e, ok := <-sub.Recv():
			if !ok {
				return
			}
			s.handle(e)
		}
	}
}

// handle routes one event. Per-event panics are not recoverable from a
// select loop in Go the way exceptions are in the source language, so each
// handler is kept defensive (nil-safe map access, etc.) rather than wrapped
// in a recover; a failing external call (LLM) degrades internally instead
// of propagating.
func (s *Summarizer) handle(e events.RawEvent) {
	switch e.Kind {
	case events.KindToolExecuted:
		s.batcher.Add(e)

	case events.KindAgentBlocked:
		s.batcher.Flush()
		s.emitCritical(e)

	case events.KindAgentMessage:
		s.batcher.Flush()
		s.emitLLM(e)

	case events.KindAgentStopped:
		s.batcher.Flush()
		s.emitTemplate(e, renderStopped(e), events.PriorityNormal)

	case events.KindSessionStart:
		s.batcher.Flush()
		s.emitTemplate(e, renderSessionStart(e), events.PriorityLow)

	case events.KindSessionEnd:
		s.batcher.Flush()
		s.emitTemplate(e, renderSessionEnd(e), events.PriorityLow)

	default:
		s.logger.Warn("summarizer: unrecognized event kind", "kind", e.Kind)
	}
}

func (s *Summarizer) emitBatch(b events.Batch) {
	if b.Empty() {
		return
	}
	last := b.Events[b.Len()-1]
	s.narrationBus.Emit(events.Narration{
		Text:          renderBatch(b),
		Priority:      events.PriorityNormal,
		SourceKind:    events.KindToolExecuted,
		SessionID:     last.SessionID,
		SourceEventID: last.ID,
		Method:        events.MethodTemplate,
	})
}

func (s *Summarizer) emitCritical(e events.RawEvent) {
	s.narrationBus.Emit(events.Narration{
		Text:          renderBlocked(e),
		Priority:      events.PriorityCritical,
		SourceKind:    e.Kind,
		SessionID:     e.SessionID,
		SourceEventID: e.ID,
		Method:        events.MethodTemplate,
		BlockReason:   e.BlockReason,
		Options:       e.Options,
	})
}

func (s *Summarizer) emitTemplate(e events.RawEvent, text string, priority events.Priority) {
	s.narrationBus.Emit(events.Narration{
		Text:          text,
		Priority:      priority,
		SourceKind:    e.Kind,
		SessionID:     e.SessionID,
		SourceEventID: e.ID,
		Method:        events.MethodTemplate,
	})
}

func (s *Summarizer) emitLLM(e events.RawEvent) {
	var text string
	var method events.Method

	if s.llm != nil {
		text, method = s.llm.Summarize(s.ctx, e.Text)
	} else {
		text, method = truncate150(e.Text), events.MethodTruncation
	}

	s.narrationBus.Emit(events.Narration{
		Text:          text,
		Priority:      events.PriorityNormal,
		SourceKind:    e.Kind,
		SessionID:     e.SessionID,
		SourceEventID: e.ID,
		Method:        method,
	})
}

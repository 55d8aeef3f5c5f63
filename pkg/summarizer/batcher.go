package summarizer

import (
	"sync"
	"time"

	"github.com/echo-dev/echo/pkg/events"
)

// Window is the EventBatcher's open-window duration (spec §4.2: W = 500ms).
const Window = 500 * time.Millisecond

// MaxBatchSize is the hard cap before a synchronous flush (spec §4.2: N=10).
const MaxBatchSize = 10

// FlushFunc is invoked with the accumulated batch, either on timer expiry or
// on an explicit flush. An empty batch must not invoke FlushFunc (flush is
// idempotent).
type FlushFunc func(events.Batch)

// EventBatcher is a single-writer accumulator for tool_executed events. All
// exported methods are safe to call from the Summarizer's single consuming
// goroutine; Flush may additionally be called from a shutdown path.
type EventBatcher struct {
	mu      sync.Mutex
	batch   events.Batch
	timer   *time.Timer
	onFlush FlushFunc
}

// NewEventBatcher creates a batcher that invokes onFlush on timer expiry.
func NewEventBatcher(onFlush FlushFunc) *EventBatcher {
	return &EventBatcher{onFlush: onFlush}
}

// Add appends a tool_executed event to the open batch. The first event opens
// the window and starts the one-shot timer; reaching MaxBatchSize flushes
// synchronously and returns true (the caller need not wait for the timer).
func (b *EventBatcher) Add(e events.RawEvent) (flushed bool) {
	b.mu.Lock()

	if b.batch.Empty() {
		b.startTimerLocked()
	}
	b.batch.Append(e)

	if b.batch.Len() >= MaxBatchSize {
		batch := b.batch
		b.batch.Reset()
		b.stopTimerLocked()
		b.mu.Unlock()
		b.onFlush(batch)
		return true
	}

	b.mu.Unlock()
	return false
}

// Flush forces an immediate flush, cancelling any pending timer. Idempotent:
// flushing an empty batch is a no-op and does not invoke onFlush.
func (b *EventBatcher) Flush() {
	b.mu.Lock()
	if b.batch.Empty() {
		b.mu.Unlock()
		return
	}
	batch := b.batch
	b.batch.Reset()
	b.stopTimerLocked()
	b.mu.Unlock()

	b.onFlush(batch)
}

func (b *EventBatcher) startTimerLocked() {
	b.timer = time.AfterFunc(Window, b.onTimerExpiry)
}

func (b *EventBatcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *EventBatcher) onTimerExpiry() {
	b.mu.Lock()
	if b.batch.Empty() {
		b.mu.Unlock()
		return
	}
	batch := b.batch
	b.batch.Reset()
	b.timer = nil
	b.mu.Unlock()

	b.onFlush(batch)
}

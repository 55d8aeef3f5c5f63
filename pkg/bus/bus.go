// Package bus implements Echo's generic fan-out bus: a typed, multi-subscriber
// broadcast channel with bounded per-subscriber queues and drop-on-full
// delivery. It generalizes the pack's internal/bus pub/sub design (a single
// concrete Event type keyed by topic prefix) into a Bus[T any] parametrized
// over Echo's three payload types (RawEvent, Narration, Response).
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/echo-dev/echo/internal/logging"
)

// DefaultCapacity is the default bounded queue depth per subscriber.
const DefaultCapacity = 256

// Subscription is a handle returned by Bus.Subscribe. Callers receive
// delivered items from Recv() and must call the bus's Unsubscribe when done.
type Subscription[T any] struct {
	id int
	ch chan T
}

// Recv returns the channel on which delivered items arrive. The channel is
// closed by Unsubscribe.
func (s *Subscription[T]) Recv() <-chan T {
	return s.ch
}

// Bus is a typed fan-out broadcaster. Zero value is not usable; use New.
type Bus[T any] struct {
	mu       sync.RWMutex
	subs     map[int]*Subscription[T]
	nextID   int
	capacity int
	logger   logging.Logger

	dropped         atomic.Int64
	lastDropWarning atomic.Int64
}

// New creates a Bus with the default per-subscriber capacity.
func New[T any](logger logging.Logger) *Bus[T] {
	return NewWithCapacity[T](DefaultCapacity, logger)
}

// NewWithCapacity creates a Bus with an explicit per-subscriber queue depth.
func NewWithCapacity[T any](capacity int, logger logging.Logger) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Bus[T]{
		subs:     make(map[int]*Subscription[T]),
		capacity: capacity,
		logger:   logger,
	}
}

// Subscribe creates a fresh bounded queue and registers it. The returned
// Subscription must be released with Unsubscribe, including on the
// subscriber's cancellation path — subscriptions are scoped resources.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription[T]{
		id: b.nextID,
		ch: make(chan T, b.capacity),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Pending items
// in the queue are discarded. Safe to call more than once; the second call
// is a no-op.
func (b *Bus[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		for drained := false; !drained; {
			select {
			case <-sub.ch:
			default:
				drained = true
			}
		}
		close(sub.ch)
	}
}

// Emit delivers a copy of event to every currently registered subscriber.
// Never blocks and never fails: a full subscriber queue drops that item for
// that subscriber only, logged at warn (throttled to exponential count
// thresholds so a sustained drop storm doesn't itself become an I/O storm).
func (b *Bus[T]) Emit(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			newCount := b.dropped.Add(1)
			b.maybeWarnDrop(newCount)
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedCount reports the cumulative number of items dropped across all
// subscribers due to a full queue.
func (b *Bus[T]) DroppedCount() int64 {
	return b.dropped.Load()
}

// dropThreshold returns the largest power of ten at or below count.
func dropThreshold(count int64) int64 {
	threshold := int64(1)
	for threshold*10 <= count {
		threshold *= 10
	}
	return threshold
}

func (b *Bus[T]) maybeWarnDrop(newCount int64) {
	threshold := dropThreshold(newCount)
	if newCount != threshold {
		return
	}
	last := b.lastDropWarning.Load()
	if threshold <= last {
		return
	}
	if b.lastDropWarning.CompareAndSwap(last, threshold) {
		b.logger.Warn("bus queue full, dropping item", "dropped_total", newCount)
	}
}

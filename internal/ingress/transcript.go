package ingress

import (
	"bufio"
	"container/list"
	"context"
	"encoding/json"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
)

// dedupLRUSize bounds the dedup key cache. Generous relative to the
// dedup window so short bursts across many sessions don't evict keys still
// within the window.
const dedupLRUSize = 4096

// transcriptRecord is one NDJSON line in the watched transcript file.
type transcriptRecord struct {
	Role      string  `json:"role"`
	Text      string  `json:"text"`
	SessionID string  `json:"session_id"`
	Timestamp float64 `json:"timestamp"`
}

// assistantRoles identifies records the watcher should emit as
// agent_message events.
var assistantRoles = map[string]bool{"assistant": true}

// dedupLRU is a small fixed-capacity least-recently-used key cache used to
// suppress transcript-sourced agent_message events that collide with an
// already-seen hook-derived event (spec §6.2, §9 open question: treat
// transcript-sourced messages as potentially duplicated until the window
// passes).
type dedupLRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// seenOrAdd reports whether key was already present, adding it if not.
func (d *dedupLRU) seenOrAdd(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		d.order.MoveToFront(el)
		return true
	}

	el := d.order.PushFront(key)
	d.index[key] = el

	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.index, oldest.Value.(string))
		}
	}
	return false
}

// dedupKey buckets a (session_id, timestamp) pair into a ~100ms window, per
// spec §9: "(session_id, floor(timestamp*10))".
func dedupKey(sessionID string, timestamp float64) string {
	bucket := int64(math.Floor(timestamp * 10))
	return sessionID + "#" + itoa(bucket)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TranscriptWatcher tails one or more append-only NDJSON transcript files,
// tracking a per-file byte offset so only new content is re-parsed, and
// emits agent_message RawEvents for assistant-authored records not already
// seen via a hook-derived event.
type TranscriptWatcher struct {
	rawBus *bus.Bus[events.RawEvent]
	dedup  *dedupLRU
	logger logging.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	offsets map[string]int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTranscriptWatcher constructs a watcher with no files (add them with
// Watch), polling for new content every pollInterval.
func NewTranscriptWatcher(rawBus *bus.Bus[events.RawEvent], pollInterval time.Duration, logger logging.Logger) *TranscriptWatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &TranscriptWatcher{
		rawBus:       rawBus,
		dedup:        newDedupLRU(dedupLRUSize),
		logger:       logger,
		pollInterval: pollInterval,
		offsets:      make(map[string]int64),
	}
}

// NoteHookEvent registers a hook-derived event's dedup key so a matching
// transcript record is suppressed when it is later observed.
func (w *TranscriptWatcher) NoteHookEvent(sessionID string, timestamp float64) {
	w.dedup.seenOrAdd(dedupKey(sessionID, timestamp))
}

// Watch adds a transcript file to the poll set.
func (w *TranscriptWatcher) Watch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.offsets[path]; !ok {
		w.offsets[path] = 0
	}
}

// Start launches the polling goroutine.
func (w *TranscriptWatcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run()
}

// Stop cancels the polling goroutine and awaits it.
func (w *TranscriptWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *TranscriptWatcher) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.pollAll()
		}
	}
}

func (w *TranscriptWatcher) pollAll() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.offsets))
	for p := range w.offsets {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, p := range paths {
		w.pollOne(p)
	}
}

func (w *TranscriptWatcher) pollOne(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	w.mu.Lock()
	offset := w.offsets[path]
	w.mu.Unlock()

	if _, err := f.Seek(offset, 0); err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var consumed int64
	for scanner.Scan() {
		line := scanner.Bytes()
		consumed += int64(len(line)) + 1 // +1 for the newline
		w.emitRecord(line)
	}

	w.mu.Lock()
	w.offsets[path] = offset + consumed
	w.mu.Unlock()
}

func (w *TranscriptWatcher) emitRecord(line []byte) {
	if len(line) == 0 {
		return
	}

	var rec transcriptRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		w.logger.Warn("ingress: malformed transcript record", "error", err)
		return
	}
	if !assistantRoles[rec.Role] {
		return
	}

	key := dedupKey(rec.SessionID, rec.Timestamp)
	if w.dedup.seenOrAdd(key) {
		return
	}

	w.rawBus.Emit(events.RawEvent{
		ID:        uuid.NewString(),
		Kind:      events.KindAgentMessage,
		SessionID: rec.SessionID,
		Timestamp: rec.Timestamp,
		Source:    events.SourceTranscript,
		Text:      rec.Text,
	})
}

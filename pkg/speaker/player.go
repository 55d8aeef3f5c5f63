package speaker

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/events"
)

// playbackItem is one queued PCM16 buffer, ordered by (priority, sequence)
// so that lower priority numbers run first and same-priority items preserve
// FIFO order (spec §4.4: "priority queue keyed by (priority_int,
// monotonic_seq)").
type playbackItem struct {
	priority int
	seq      int64
	pcm      []int16
}

// playbackQueue is a container/heap.Interface ordered by (priority, seq).
type playbackQueue []*playbackItem

func (q playbackQueue) Len() int { return len(q) }
func (q playbackQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q playbackQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *playbackQueue) Push(x interface{}) { *q = append(*q, x.(*playbackItem)) }
func (q *playbackQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// PriorityCritical is the reserved priority rank for the interrupt/immediate
// path. The engine plays critical audio via PlayImmediate; Enqueue still
// accepts this rank, and Interrupt keeps such queued items.
const PriorityCritical = 0

// Player schedules PCM16 playback by priority on a malgo playback device,
// with pre-emptive interruption and low-priority backlog shedding (spec
// §4.4).
type Player struct {
	sampleRate       int
	backlogThreshold int
	logger           logging.Logger

	mu       sync.Mutex
	queue    playbackQueue
	nextSeq  int64
	playing  []int16 // samples currently being streamed to the device
	cursor   int

	interrupting atomic.Bool

	device *malgo.Device
	tones  *ToneCache
}

// NewPlayer constructs a Player without an output device attached (graceful
// degradation path: playback is skipped but the queue still accepts items).
func NewPlayer(sampleRate, backlogThreshold int, logger logging.Logger) *Player {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Player{
		sampleRate:       sampleRate,
		backlogThreshold: backlogThreshold,
		logger:           logger,
		tones:            NewToneCache(sampleRate),
	}
}

// AttachDevice wires a malgo playback device. The data callback streams
// from the internal queue, filling any underrun with silence, mirroring the
// teacher's duplex-device output-buffer pattern.
func (p *Player) AttachDevice(mctx *malgo.AllocatedContext) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(p.sampleRate)

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: p.onSamples,
	})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}
	p.device = device
	return nil
}

// Close releases the output device, if attached.
func (p *Player) Close() {
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
}

// Available reports whether an output device is attached.
func (p *Player) Available() bool {
	return p.device != nil
}

// sampleRateOrDefault is nil-safe so callers holding a possibly-unset
// Player can still compute an approximate playback duration.
func (p *Player) sampleRateOrDefault() int {
	if p == nil || p.sampleRate <= 0 {
		return 16000
	}
	return p.sampleRate
}

func (p *Player) onSamples(pOutput, _ []byte, frameCount uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	needed := int(frameCount)
	written := 0
	for written < needed {
		if p.cursor >= len(p.playing) {
			if !p.advanceLocked() {
				break
			}
		}
		sample := p.playing[p.cursor]
		pOutput[written*2] = byte(sample)
		pOutput[written*2+1] = byte(sample >> 8)
		p.cursor++
		written++
	}
	for i := written; i < needed; i++ {
		pOutput[i*2] = 0
		pOutput[i*2+1] = 0
	}
}

// advanceLocked pulls the next queue item into the playing buffer. Returns
// false if the queue is empty.
func (p *Player) advanceLocked() bool {
	if p.queue.Len() == 0 {
		p.playing = nil
		p.cursor = 0
		return false
	}
	item := heap.Pop(&p.queue).(*playbackItem)
	p.playing = item.pcm
	p.cursor = 0
	return true
}

// Depth reports the number of items currently queued (not counting the item
// actively streaming), used by the backlog-shedding rule.
func (p *Player) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Enqueue accepts a buffer at the given priority rank. prio==0 (critical) is
// always accepted; prio==1 (normal) is always accepted; prio==2 (low) is
// accepted only while Depth() <= backlogThreshold (spec §4.4). Returns false
// if the item was dropped for backlog.
func (p *Player) Enqueue(pcm []int16, prio int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prio == 2 && p.queue.Len() > p.backlogThreshold {
		return false
	}

	p.nextSeq++
	heap.Push(&p.queue, &playbackItem{priority: prio, seq: p.nextSeq, pcm: pcm})
	return true
}

// PlayImmediate plays pcm directly, bypassing the queue, for the critical
// interrupt path only.
func (p *Player) PlayImmediate(pcm []int16) {
	p.mu.Lock()
	p.playing = pcm
	p.cursor = 0
	p.mu.Unlock()
}

// PlayAlert plays the cached tone for a block reason via the immediate path.
func (p *Player) PlayAlert(reason events.BlockReason) {
	p.PlayImmediate(p.tones.Get(reason))
}

// Interrupt aborts in-flight playback and drains every non-critical item
// from the queue, preserving critical items already queued (spec §4.4).
func (p *Player) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playing = nil
	p.cursor = 0

	kept := playbackQueue{}
	for p.queue.Len() > 0 {
		item := heap.Pop(&p.queue).(*playbackItem)
		if item.priority == PriorityCritical {
			kept = append(kept, item)
		}
	}
	for _, item := range kept {
		heap.Push(&p.queue, item)
	}
}

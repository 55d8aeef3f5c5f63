package voice

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// frameDuration is the small-frame size used during onset detection (spec
// §4.5: "read small frames (≈ 30 ms)").
const frameDuration = 30 * time.Millisecond

// Microphone is Echo's energy-based VAD capture device, adapted from the
// teacher's RMSVAD (pkg/orchestrator/vad.go) into a two-phase onset/record
// state machine driven by a malgo capture device instead of a push-style
// stream.Write callback.
type Microphone struct {
	sampleRate int

	mu      sync.Mutex
	frames  chan []int16
	device  *malgo.Device
}

// NewMicrophone constructs a Microphone at sampleRate (spec default 16kHz).
func NewMicrophone(sampleRate int) *Microphone {
	return &Microphone{sampleRate: sampleRate}
}

// AttachDevice wires a malgo capture device. Captured frames are pushed onto
// an internal channel for CaptureUntilSilence to consume.
func (m *Microphone) AttachDevice(mctx *malgo.AllocatedContext) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(frameDuration / time.Millisecond)

	m.mu.Lock()
	m.frames = make(chan []int16, 64)
	m.mu.Unlock()

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: m.onSamples,
	})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}
	m.device = device
	return nil
}

// Close releases the capture device, if attached.
func (m *Microphone) Close() {
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
}

// Available reports whether a capture device is attached.
func (m *Microphone) Available() bool {
	return m.device != nil
}

func (m *Microphone) onSamples(_, pInput []byte, frameCount uint32) {
	m.mu.Lock()
	ch := m.frames
	m.mu.Unlock()
	if ch == nil {
		return
	}

	samples := bytesToInt16LE(pInput)
	select {
	case ch <- samples:
	default:
		// capture buffer full; drop the frame rather than block the device
		// callback (spec §5: non-blocking guarantee extends to I/O threads).
	}
}

// CaptureUntilSilence runs the two-phase onset/record VAD state machine
// (spec §4.5) and returns the recorded PCM16 buffer, or nil if onset never
// occurred before listenTimeout elapsed.
func (m *Microphone) CaptureUntilSilence(ctx context.Context, listenTimeout time.Duration, silenceThreshold float64, silenceDuration, maxDuration time.Duration) []int16 {
	if !m.Available() {
		return nil
	}

	onsetCtx, cancel := context.WithTimeout(ctx, listenTimeout)
	defer cancel()

	if !m.waitForOnset(onsetCtx, silenceThreshold) {
		return nil
	}

	return m.record(ctx, silenceThreshold, silenceDuration, maxDuration)
}

// waitForOnset is phase 1: read frames until RMS exceeds the threshold, or
// the context times out.
func (m *Microphone) waitForOnset(ctx context.Context, threshold float64) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case frame, ok := <-m.frames:
			if !ok {
				return false
			}
			if rms(frame) > threshold {
				return true
			}
		}
	}
}

// record is phase 2: accumulate frames, stopping after a trailing silence
// window or a hard duration cap.
func (m *Microphone) record(ctx context.Context, threshold float64, silenceDuration, maxDuration time.Duration) []int16 {
	var buf []int16
	var silenceStart time.Time
	deadline := time.Now().Add(maxDuration)

	for {
		select {
		case <-ctx.Done():
			return finalizeBuf(buf)
		case frame, ok := <-m.frames:
			if !ok {
				return finalizeBuf(buf)
			}
			buf = append(buf, frame...)

			if rms(frame) > threshold {
				silenceStart = time.Time{}
			} else {
				if silenceStart.IsZero() {
					silenceStart = time.Now()
				}
				if time.Since(silenceStart) >= silenceDuration {
					return finalizeBuf(buf)
				}
			}

			if time.Now().After(deadline) {
				return finalizeBuf(buf)
			}
		}
	}
}

func finalizeBuf(buf []int16) []int16 {
	if len(buf) == 0 {
		return nil
	}
	return buf
}

// rms computes the root-mean-square of signed 16-bit samples normalized to
// [-1, 1], identical to the teacher's RMSVAD.calculateRMS.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func bytesToInt16LE(raw []byte) []int16 {
	n := len(raw) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	return out
}

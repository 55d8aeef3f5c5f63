package speaker

import (
	"math"
	"time"

	"github.com/echo-dev/echo/pkg/events"
)

// fadeDuration is the linear fade-in/fade-out applied to each non-silent
// segment to prevent audible clicks (spec §4.4).
const fadeDuration = 5 * time.Millisecond

// tone is one (frequency, duration) segment of an alert variant.
// frequency == 0 means silence.
type tone struct {
	frequencyHz float64
	seconds     float64
}

// toneTable reproduces spec §4.4's four-entry alert variant table exactly.
var toneTable = map[events.BlockReason][]tone{
	events.BlockPermissionPrompt: {
		{880, 0.12}, {0, 0.04}, {1320, 0.12}, {0, 0.04}, {880, 0.12}, {0, 0.04}, {1320, 0.12},
	},
	events.BlockQuestion: {
		{660, 0.15}, {0, 0.05}, {880, 0.15},
	},
	events.BlockIdlePrompt: {
		{440, 0.20}, {0, 0.05}, {550, 0.15},
	},
	events.BlockNone: {
		{880, 0.15}, {0, 0.05}, {1320, 0.15},
	},
}

// ToneCache holds pre-rendered PCM16 alert tones, keyed by block reason.
// Built once at startup so playback never pays synthesis cost.
type ToneCache struct {
	sampleRate int
	tones      map[events.BlockReason][]int16
}

// NewToneCache renders every variant in toneTable at sampleRate.
func NewToneCache(sampleRate int) *ToneCache {
	c := &ToneCache{
		sampleRate: sampleRate,
		tones:      make(map[events.BlockReason][]int16, len(toneTable)),
	}
	for reason, segments := range toneTable {
		c.tones[reason] = renderTone(segments, sampleRate)
	}
	return c
}

// Get returns the cached PCM for a block reason; unknown reasons fall back
// to BlockNone (spec §4.4: "Unknown reason ⇒ none").
func (c *ToneCache) Get(reason events.BlockReason) []int16 {
	if pcm, ok := c.tones[reason]; ok {
		return pcm
	}
	return c.tones[events.BlockNone]
}

// renderTone concatenates each segment's samples into one PCM16 buffer.
func renderTone(segments []tone, sampleRate int) []int16 {
	var out []int16
	for _, seg := range segments {
		out = append(out, renderSegment(seg, sampleRate)...)
	}
	return out
}

// renderSegment synthesizes one segment: a pure sine tone (or silence),
// float32 in [-1, 1], with a 5ms linear fade-in/out on non-silent segments,
// then scaled to int16 by 32767.
func renderSegment(seg tone, sampleRate int) []int16 {
	n := int(seg.seconds * float64(sampleRate))
	samples := make([]int16, n)

	if seg.frequencyHz == 0 {
		return samples // silence: all zero
	}

	fadeSamples := int(fadeDuration.Seconds() * float64(sampleRate))
	if fadeSamples*2 > n {
		fadeSamples = n / 2
	}

	angularFreq := 2 * math.Pi * seg.frequencyHz / float64(sampleRate)
	for i := 0; i < n; i++ {
		amp := 1.0
		if fadeSamples > 0 {
			if i < fadeSamples {
				amp = float64(i) / float64(fadeSamples)
			} else if i >= n-fadeSamples {
				amp = float64(n-1-i) / float64(fadeSamples)
			}
		}
		sample := amp * math.Sin(angularFreq*float64(i))
		samples[i] = floatToInt16(sample)
	}
	return samples
}

func floatToInt16(f float64) int16 {
	if f > 1 {
		f = 1
	}
	if f < -1 {
		f = -1
	}
	return int16(f * 32767)
}

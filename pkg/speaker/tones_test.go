package speaker

import (
	"testing"

	"github.com/echo-dev/echo/pkg/events"
)

func TestToneCacheCoversAllVariants(t *testing.T) {
	c := NewToneCache(16000)

	for _, reason := range []events.BlockReason{
		events.BlockPermissionPrompt, events.BlockQuestion, events.BlockIdlePrompt, events.BlockNone,
	} {
		pcm := c.Get(reason)
		if len(pcm) == 0 {
			t.Errorf("expected non-empty PCM for variant %q", reason)
		}
	}
}

func TestToneCacheUnknownReasonFallsBackToNone(t *testing.T) {
	c := NewToneCache(16000)

	unknown := c.Get(events.BlockReason("bogus"))
	none := c.Get(events.BlockNone)

	if len(unknown) != len(none) {
		t.Fatalf("expected unknown reason to fall back to none variant length %d, got %d", len(none), len(unknown))
	}
	for i := range unknown {
		if unknown[i] != none[i] {
			t.Fatalf("unknown-reason PCM diverges from none variant at sample %d", i)
			break
		}
	}
}

func TestRenderSegmentSilenceIsAllZero(t *testing.T) {
	pcm := renderSegment(tone{frequencyHz: 0, seconds: 0.05}, 16000)
	for i, s := range pcm {
		if s != 0 {
			t.Fatalf("expected silent segment to be all-zero, sample %d = %d", i, s)
		}
	}
}

func TestRenderSegmentLengthMatchesDuration(t *testing.T) {
	sampleRate := 16000
	pcm := renderSegment(tone{frequencyHz: 440, seconds: 0.1}, sampleRate)
	expected := int(0.1 * float64(sampleRate))
	if len(pcm) != expected {
		t.Fatalf("expected %d samples, got %d", expected, len(pcm))
	}
}

func TestRenderSegmentFadesInFromZero(t *testing.T) {
	pcm := renderSegment(tone{frequencyHz: 880, seconds: 0.12}, 16000)
	if pcm[0] != 0 {
		t.Errorf("expected first sample of a faded-in tone to be 0, got %d", pcm[0])
	}
}

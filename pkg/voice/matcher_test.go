package voice

import (
	"testing"

	"github.com/echo-dev/echo/pkg/events"
)

func TestMatchOrdinal(t *testing.T) {
	r := Match("the second one", nil, events.BlockQuestion)
	// "the second one" does not equal "second" exactly, so ordinal should
	// not fire on substrings — only on the normalized transcript itself.
	if r.Method == events.MatchOrdinal {
		t.Fatalf("ordinal match must require an exact normalized transcript, got %+v", r)
	}

	r = Match("second", []string{"opt-a", "opt-b", "opt-c"}, events.BlockQuestion)
	if r.Method != events.MatchOrdinal || r.Text != "opt-b" || r.Confidence != 0.95 {
		t.Fatalf("expected ordinal match to opt-b, got %+v", r)
	}
}

func TestMatchYesNo(t *testing.T) {
	r := Match("yeah", []string{"Allow", "Deny"}, events.BlockPermissionPrompt)
	if r.Method != events.MatchYesNo || r.Text != "Allow" {
		t.Fatalf("expected affirmative yes_no match, got %+v", r)
	}

	r = Match("nope", []string{"Allow", "Deny"}, events.BlockPermissionPrompt)
	if r.Method != events.MatchYesNo || r.Text != "Deny" {
		t.Fatalf("expected negative yes_no match, got %+v", r)
	}
}

func TestYesNoOnlyAppliesToTwoOptionPermissionPrompts(t *testing.T) {
	r := Match("yes", []string{"A", "B", "C"}, events.BlockPermissionPrompt)
	if r.Method == events.MatchYesNo {
		t.Fatalf("yes/no must not apply with more than two options, got %+v", r)
	}

	r = Match("yes", []string{"A", "B"}, events.BlockQuestion)
	if r.Method == events.MatchYesNo {
		t.Fatalf("yes/no must not apply outside permission_prompt, got %+v", r)
	}
}

func TestMatchDirectSubstring(t *testing.T) {
	r := Match("please delete the temp file", []string{"delete the temp file", "keep it"}, events.BlockQuestion)
	if r.Method != events.MatchDirect || r.Text != "delete the temp file" {
		t.Fatalf("expected direct substring match, got %+v", r)
	}
}

func TestMatchDirectPicksLongestOption(t *testing.T) {
	r := Match("delete all files now", []string{"delete", "delete all files"}, events.BlockQuestion)
	if r.Text != "delete all files" {
		t.Fatalf("expected the longest matching option, got %+v", r)
	}
}

func TestMatchFuzzyBelowThresholdFallsThrough(t *testing.T) {
	r := Match("banana", []string{"completely unrelated text"}, events.BlockQuestion)
	if r.Method == events.MatchFuzzy {
		t.Fatalf("expected fuzzy match to be rejected below threshold, got %+v", r)
	}
}

func TestMatchFuzzyAboveThreshold(t *testing.T) {
	r := Match("delete the fle", []string{"delete the file"}, events.BlockQuestion)
	if r.Method != events.MatchFuzzy {
		t.Fatalf("expected a fuzzy match for a near-exact transcript, got %+v", r)
	}
	if r.Confidence < fuzzyThreshold {
		t.Fatalf("fuzzy confidence must clear the threshold, got %v", r.Confidence)
	}
}

func TestMatchVerbatimWithNoOptions(t *testing.T) {
	r := Match("anything goes here", nil, events.BlockNone)
	if r.Method != events.MatchVerbatim || r.Text != "anything goes here" || r.Confidence != 1.0 {
		t.Fatalf("expected full-confidence verbatim match with no options, got %+v", r)
	}
}

func TestMatchVerbatimFallthroughIsLowConfidence(t *testing.T) {
	r := Match("completely unrelated", []string{"alpha", "beta"}, events.BlockQuestion)
	if r.Method != events.MatchVerbatim {
		t.Fatalf("expected verbatim fallthrough, got %+v", r)
	}
	if r.Confidence >= fuzzyThreshold {
		t.Fatalf("fallthrough verbatim confidence should read as a no-dispatch sentinel, got %v", r.Confidence)
	}
}

func TestSimilarityRatioIdentical(t *testing.T) {
	if ratio := similarityRatio("hello world", "hello world"); ratio != 1.0 {
		t.Fatalf("expected ratio 1.0 for identical strings, got %v", ratio)
	}
}

func TestSimilarityRatioEmptyStrings(t *testing.T) {
	if ratio := similarityRatio("", ""); ratio != 1.0 {
		t.Fatalf("expected ratio 1.0 for two empty strings, got %v", ratio)
	}
	if ratio := similarityRatio("abc", ""); ratio != 0 {
		t.Fatalf("expected ratio 0 against an empty string, got %v", ratio)
	}
}

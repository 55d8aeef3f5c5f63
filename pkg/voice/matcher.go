package voice

import (
	"strings"

	"github.com/echo-dev/echo/pkg/events"
)

// fuzzyThreshold is the minimum similarity ratio for a fuzzy match to count
// (spec §4.5).
const fuzzyThreshold = 0.6

// ordinalWords maps spoken ordinals (and their digit forms) to zero-based
// option indices, up to the tenth option.
var ordinalWords = map[string]int{
	"one": 0, "first": 0, "1": 0,
	"two": 1, "second": 1, "2": 1,
	"three": 2, "third": 2, "3": 2,
	"four": 3, "fourth": 3, "4": 3,
	"five": 4, "fifth": 4, "5": 4,
	"six": 5, "sixth": 5, "6": 5,
	"seven": 6, "seventh": 6, "7": 6,
	"eight": 7, "eighth": 7, "8": 7,
	"nine": 8, "ninth": 8, "9": 8,
	"ten": 9, "tenth": 9, "10": 9,
}

var affirmative = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "sure": true, "allow": true, "go ahead": true,
}

var negative = map[string]bool{
	"no": true, "nah": true, "nope": true, "deny": true, "reject": true,
}

// MatchResult is the ResponseMatcher's output.
type MatchResult struct {
	Text       string
	Confidence float64
	Method     events.MatchMethod
}

// Match is the pure priority-chain function from spec §4.5: ordinal, then
// yes/no, then direct substring, then fuzzy, then verbatim.
func Match(transcript string, options []string, blockReason events.BlockReason) MatchResult {
	normalized := strings.ToLower(strings.TrimSpace(transcript))

	if idx, ok := ordinalWords[normalized]; ok && idx < len(options) {
		return MatchResult{Text: options[idx], Confidence: 0.95, Method: events.MatchOrdinal}
	}

	if len(options) == 2 && blockReason == events.BlockPermissionPrompt {
		if affirmative[normalized] {
			return MatchResult{Text: options[0], Confidence: 0.9, Method: events.MatchYesNo}
		}
		if negative[normalized] {
			return MatchResult{Text: options[1], Confidence: 0.9, Method: events.MatchYesNo}
		}
	}

	if best, ok := directMatch(normalized, options); ok {
		return MatchResult{Text: best, Confidence: 0.85, Method: events.MatchDirect}
	}

	if best, ratio, ok := fuzzyMatch(normalized, options); ok {
		return MatchResult{Text: best, Confidence: ratio, Method: events.MatchFuzzy}
	}

	if len(options) == 0 {
		return MatchResult{Text: transcript, Confidence: 1.0, Method: events.MatchVerbatim}
	}
	return MatchResult{Text: transcript, Confidence: 0, Method: events.MatchVerbatim}
}

// directMatch returns the longest option that appears as a case-insensitive
// substring of the transcript.
func directMatch(normalized string, options []string) (string, bool) {
	var best string
	found := false
	for _, opt := range options {
		if strings.Contains(normalized, strings.ToLower(opt)) {
			if !found || len(opt) > len(best) {
				best = opt
				found = true
			}
		}
	}
	return best, found
}

// fuzzyMatch picks the option with the highest Ratcliff/Obershelp similarity
// ratio against the transcript, accepting only if it clears fuzzyThreshold.
func fuzzyMatch(normalized string, options []string) (string, float64, bool) {
	var best string
	bestRatio := 0.0
	for _, opt := range options {
		r := similarityRatio(normalized, strings.ToLower(opt))
		if r > bestRatio {
			bestRatio = r
			best = opt
		}
	}
	if bestRatio >= fuzzyThreshold {
		return best, bestRatio, true
	}
	return "", 0, false
}

// similarityRatio computes the Ratcliff/Obershelp similarity ratio: twice
// the total length of matching (recursively found) substrings, divided by
// the sum of the two string lengths.
func similarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	matches := matchingCharacters(a, b)
	return 2.0 * float64(matches) / float64(len(a)+len(b))
}

// matchingCharacters recursively finds the longest common substring, then
// recurses on the unmatched left and right remainders, summing matched
// lengths (the Ratcliff/Obershelp algorithm).
func matchingCharacters(a, b string) int {
	if a == "" || b == "" {
		return 0
	}

	aStart, bStart, length := longestCommonSubstring(a, b)
	if length == 0 {
		return 0
	}

	left := matchingCharacters(a[:aStart], b[:bStart])
	right := matchingCharacters(a[aStart+length:], b[bStart+length:])
	return length + left + right
}

// longestCommonSubstring returns the start indices in a and b, and the
// length, of the longest common substring (naive O(len(a)*len(b))).
func longestCommonSubstring(a, b string) (aStart, bStart, length int) {
	best := 0
	bestA, bestB := 0, 0

	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > best {
				best = k
				bestA, bestB = i, j
			}
		}
	}
	return bestA, bestB, best
}

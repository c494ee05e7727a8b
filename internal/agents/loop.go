package agents

import (
	"regexp"
	"strings"
)

// nearDuplicateJaccard is the word-set similarity above which two errors are the same failure.
const nearDuplicateJaccard = 0.8

//nolint:gochecknoglobals // Compiled patterns
var (
	uuidPattern  = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexPattern   = regexp.MustCompile(`\b0x[0-9a-f]+\b|\b[0-9a-f]{7,}\b`)
	digitPattern = regexp.MustCompile(`[0-9]+`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeError reduces an error entry to its stable shape: lowercased, ids
// and hex collapsed, digits replaced by #, whitespace collapsed.
func NormalizeError(s string) string {
	s = strings.ToLower(s)
	s = uuidPattern.ReplaceAllString(s, "<id>")
	s = hexPattern.ReplaceAllString(s, "<hex>")
	s = digitPattern.ReplaceAllString(s, "#")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NearDuplicate reports whether a and b describe the same failure.
func NearDuplicate(a, b string) bool {
	na, nb := NormalizeError(a), NormalizeError(b)
	if na == nb {
		return true
	}
	return jaccard(strings.Fields(na), strings.Fields(nb)) >= nearDuplicateJaccard
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, w := range a {
		set[w] |= 1
	}
	for _, w := range b {
		set[w] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

// DetectLoop reports whether the newest entry of history has at least
// threshold near-duplicates, itself included, among the last window entries.
func DetectLoop(history []string, window, threshold int) bool {
	if len(history) == 0 || threshold <= 0 {
		return false
	}
	if window <= 0 || window > len(history) {
		window = len(history)
	}
	recent := history[len(history)-window:]
	newest := recent[len(recent)-1]

	count := 0
	for _, e := range recent {
		if NearDuplicate(e, newest) {
			count++
		}
	}
	return count >= threshold
}

// Critical reports whether the reviewer must escalate to the strategist:
// a detected loop, or a history longer than historyCap.
func Critical(history []string, window, threshold, historyCap int) bool {
	if historyCap > 0 && len(history) > historyCap {
		return true
	}
	return DetectLoop(history, window, threshold)
}

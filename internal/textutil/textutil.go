// Package textutil provides rune-safe text truncation for the bounded
// digests stages feed into completion prompts.
package textutil

import "strings"

const ellipsis = "..."

// Truncate shortens s to at most max runes, appending an ellipsis when
// content was dropped. It prefers to cut at the last sentence end or newline
// inside the budget when doing so keeps at least 80% of it, so digests do
// not stop mid-sentence.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	truncated := string(runes[:max])
	cut := lastBoundary(truncated)
	if cut > max*8/10 {
		return truncated[:cut] + ellipsis
	}
	return truncated + ellipsis
}

// lastBoundary returns the byte offset just past the last sentence-ending
// punctuation or newline, or -1 when none exists.
func lastBoundary(s string) int {
	best := -1
	for _, sep := range []string{". ", ".\n", "。", "\n"} {
		if i := strings.LastIndex(s, sep); i >= 0 && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	return best
}

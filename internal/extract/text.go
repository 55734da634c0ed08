package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var reSpaces = regexp.MustCompile(`\s+`)

// CollapseWhitespace folds runs of whitespace into single spaces and
// trims the ends.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// Excerpt produces a display snippet of at most maxLen runes from the
// full body. When one of the terms occurs, the snippet is centered on
// the first occurrence; otherwise it is the leading slice of the body.
// Matching is case-insensitive.
func Excerpt(body string, terms []string, maxLen int) string {
	if maxLen <= 0 || body == "" {
		return ""
	}

	runes := []rune(body)
	if len(runes) <= maxLen {
		return body
	}

	start, end := 0, maxLen
	if at, length := firstMatch(body, terms); at >= 0 {
		matchStart := utf8.RuneCountInString(body[:at])
		half := (maxLen - length) / 2
		start = matchStart - half
		if start < 0 {
			start = 0
		}
		end = start + maxLen
		if end > len(runes) {
			end = len(runes)
			start = end - maxLen
		}
	}

	snippet := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(runes) {
		snippet += "…"
	}
	return snippet
}

// firstMatch returns the byte offset and rune length of the earliest
// case-insensitive occurrence of any term, or (-1, 0).
func firstMatch(body string, terms []string) (int, int) {
	lowered := strings.ToLower(body)
	best, bestLen := -1, 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		at := strings.Index(lowered, strings.ToLower(term))
		if at >= 0 && (best == -1 || at < best) {
			best = at
			bestLen = utf8.RuneCountInString(term)
		}
	}
	return best, bestLen
}

// Package parser turns free-form language model output into flashcards and quiz questions.
//
// Every function in this package is pure: no I/O, no shared state, and no errors.
// An empty result is the only failure signal and callers are expected to report it.
package parser

import (
	"strings"
	"unicode/utf8"
)

// Normalize strips "**" emphasis markers, collapses whitespace runs to a single space
// and trims the result. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(text, "**", "")), " ")
}

// textLen counts characters, not bytes.
func textLen(s string) int {
	return utf8.RuneCountInString(s)
}

// nonBlankLines returns trimmed lines longer than minLen characters.
func nonBlankLines(text string, minLen int) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if textLen(line) > minLen {
			lines = append(lines, line)
		}
	}
	return lines
}

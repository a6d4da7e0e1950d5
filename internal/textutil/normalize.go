// Package textutil holds the text cleanup shared by the answer pipeline:
// input normalization, the profanity mask and reply formatting.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	lower = cases.Lower(language.English)

	quoteReplacer = strings.NewReplacer(
		"‘", "'", "’", "'", "‛", "'", "′", "'",
		"“", `"`, "”", `"`,
	)
)

// Normalize folds a message for matching: NFKC, typographic quotes to ASCII,
// lowercase, trimmed.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = quoteReplacer.Replace(s)
	return strings.TrimSpace(lower.String(s))
}

// Words splits normalized text into word tokens. Apostrophes inside a word
// are kept ("what's"), other punctuation separates.
func Words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// CollapseWhitespace replaces every whitespace run with one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

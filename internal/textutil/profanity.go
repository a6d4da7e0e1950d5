package textutil

import (
	_ "embed"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Mask replaces every flagged word.
const Mask = "****"

//go:embed profanity.txt
var defaultWordList string

// Look-alike characters accepted for each letter.
var leet = map[rune]string{
	'a': "a@4",
	'b': "b8",
	'e': "e3",
	'g': "g9",
	'i': "i1!l",
	'l': "l1i",
	'o': "o0",
	's': "s5$",
	't': "t7",
	'z': "z2",
}

// Sanitizer masks profanity, including spaced-out and leetspeak variants.
type Sanitizer struct {
	re *regexp.Regexp
}

// NewSanitizer compiles the given words. Blank lines and lines starting with
// # are skipped. An empty list yields a no-op sanitizer.
func NewSanitizer(words []string) *Sanitizer {
	var patterns []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		tokens := strings.Fields(strings.ToLower(w))
		parts := make([]string, len(tokens))
		for i, tok := range tokens {
			parts[i] = tokenPattern(tok)
		}
		patterns = append(patterns, `\b`+strings.Join(parts, `\W{0,3}`)+`\b`)
	}
	if len(patterns) == 0 {
		return &Sanitizer{}
	}

	re, err := regexp.Compile(`(?i)` + strings.Join(patterns, "|"))
	if err != nil {
		// Fall back to literal whole-word matching.
		quoted := make([]string, 0, len(words))
		for _, w := range words {
			if w = strings.TrimSpace(w); w != "" && !strings.HasPrefix(w, "#") {
				quoted = append(quoted, `\b`+regexp.QuoteMeta(w)+`\b`)
			}
		}
		re = regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
	}
	return &Sanitizer{re: re}
}

// DefaultSanitizer uses the embedded word list.
func DefaultSanitizer() *Sanitizer {
	return NewSanitizer(strings.Split(defaultWordList, "\n"))
}

// Sanitize returns text with flagged words replaced by Mask.
func (s *Sanitizer) Sanitize(text string) string {
	if s == nil || s.re == nil {
		return text
	}
	return s.re.ReplaceAllString(text, Mask)
}

// tokenPattern lets every character repeat up to three times and be followed
// by up to two separators, so "f u c k" and "fuuuck" both match. Look-alikes
// are accepted only inside the word: the first and last characters must be
// the letters themselves, so prices such as "as $5" are left alone.
func tokenPattern(tok string) string {
	var b strings.Builder
	runes := []rune(tok)
	for i, r := range runes {
		class := charClass(r)
		if i == 0 || i == len(runes)-1 {
			class = literalClass(r)
		}
		b.WriteString("(?:")
		b.WriteString(class)
		b.WriteString("{1,3})")
		if i < len(runes)-1 {
			b.WriteString(`\W{0,2}`)
		}
	}
	return b.String()
}

func literalClass(r rune) string {
	return "[" + regexp.QuoteMeta(string(r)) + "]"
}

func charClass(r rune) string {
	if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
		return regexp.QuoteMeta(string(r))
	}
	chars, ok := leet[r]
	if !ok {
		return literalClass(r)
	}
	set := []rune(chars)
	slices.Sort(set)
	set = slices.Compact(set)
	return "[" + regexp.QuoteMeta(string(set)) + "]"
}

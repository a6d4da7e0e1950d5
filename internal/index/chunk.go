package index

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters, in bytes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators are tried in order; the first one present in a piece of text is
// used to split it, and oversized pieces recurse with the remaining ones.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts page text into overlapping chunks.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter returns a Splitter. Non-positive size or an overlap outside
// [0, size) fall back to the defaults.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/5)
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split returns the chunks of text. Chunks are trimmed, never empty, and at
// most Size bytes unless a single word is longer than that.
func (s Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.split(text, separators)
}

func (s Splitter) split(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range seps {
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text, s.Size)
	} else {
		pieces = splitKeep(text, sep)
	}

	var out, pending []string
	for _, p := range pieces {
		if len(p) < s.Size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending)...)
			pending = nil
		}
		if sep == "" || len(rest) == 0 {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
			continue
		}
		out = append(out, s.split(p, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending)...)
	}
	return out
}

// merge packs pieces into chunks of at most Size bytes, carrying up to
// Overlap bytes of trailing pieces into the next chunk.
func (s Splitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, p := range pieces {
		if total+len(p) > s.Size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for len(current) > 0 && (total > s.Overlap || total+len(p) > s.Size) {
				total -= len(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += len(p)
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitKeep splits text after each sep, keeping sep on the preceding piece.
func splitKeep(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitRunes cuts text into pieces of at most size bytes on rune boundaries.
func splitRunes(text string, size int) []string {
	var out []string
	for len(text) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(text)
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

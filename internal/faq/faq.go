// Package faq matches chat messages against the curated FAQ table using
// weighted keyword tiers.
//
// Each entry carries three keyword sets:
//   - core: at least one must match or the entry is skipped
//   - context: distinguishing phrases, +2 each, +2 more when two or more match
//   - optional: bonus phrases, +1 each
//
// Core phrases are worth 3 points. An entry is eligible at a score of 6.
package faq

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/qchat-dev/qchat-go/internal/textutil"
)

// Scoring weights.
const (
	CoreWeight          = 3
	ContextWeight       = 2
	OptionalWeight      = 1
	StrongContextBonus  = 2
	StrongContextCount  = 2
	MinimumScore        = 6
	DefaultRelevantMax  = 5
	DefaultRelevantScan = 50
)

//go:embed faq.yaml
var embeddedTable []byte

// Entry is one FAQ row. Answer is returned verbatim.
type Entry struct {
	Category string   `yaml:"category"`
	Question string   `yaml:"question"`
	Answer   string   `yaml:"answer"`
	Core     []string `yaml:"core"`
	Context  []string `yaml:"context"`
	Optional []string `yaml:"optional"`
}

// ScoredMatch is the winning entry for a message.
type ScoredMatch struct {
	Entry       *Entry
	Score       int
	CoreMatches int
}

type compiledEntry struct {
	Entry
	core     []*regexp.Regexp
	context  []*regexp.Regexp
	optional []*regexp.Regexp
	// haystack is the lowercased question and answer, used by Relevant.
	haystack string
}

// Table is an immutable, ordered FAQ table. It is safe for concurrent use.
type Table struct {
	entries []compiledEntry
}

var defaultTable = sync.OnceValues(func() (*Table, error) {
	return Parse(embeddedTable)
})

// Default returns the table shipped with the binary, parsed once.
func Default() (*Table, error) {
	return defaultTable()
}

// LoadFile parses a table from a YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read faq table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML FAQ table. Entries without an answer or
// without core keywords are rejected.
func Parse(data []byte) (*Table, error) {
	var raw []Entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode faq table: %w", err)
	}

	t := &Table{entries: make([]compiledEntry, 0, len(raw))}
	for i, e := range raw {
		if strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("faq entry %d (%q): empty answer", i, e.Question)
		}
		ce := compiledEntry{
			Entry:    e,
			core:     compileAll(e.Core),
			context:  compileAll(e.Context),
			optional: compileAll(e.Optional),
			haystack: strings.ToLower(e.Question + " " + e.Answer),
		}
		if len(ce.core) == 0 {
			return nil, fmt.Errorf("faq entry %d (%q): no core keywords", i, e.Question)
		}
		t.entries = append(t.entries, ce)
	}
	return t, nil
}

// compileAll turns keyword phrases into whole-word patterns. Blank phrases
// are skipped.
func compileAll(keywords []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		words := strings.Fields(strings.ToLower(kw))
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		out = append(out, regexp.MustCompile(`\b`+strings.Join(words, `\s+`)+`\b`))
	}
	return out
}

func countMatches(patterns []*regexp.Regexp, msg string) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(msg) {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i := range t.entries {
		out[i] = t.entries[i].Entry
	}
	return out
}

// Match returns the best-scoring eligible entry for message. Ties go to the
// entry with more core matches, then to the earlier entry.
func (t *Table) Match(message string) (ScoredMatch, bool) {
	msg := textutil.Normalize(message)
	if msg == "" {
		return ScoredMatch{}, false
	}

	var best ScoredMatch
	for i := range t.entries {
		e := &t.entries[i]

		core := countMatches(e.core, msg)
		if core == 0 {
			continue
		}
		context := countMatches(e.context, msg)
		score := core*CoreWeight + context*ContextWeight
		if context >= StrongContextCount {
			score += StrongContextBonus
		}
		score += countMatches(e.optional, msg) * OptionalWeight

		if score < MinimumScore {
			continue
		}
		if score > best.Score || (score == best.Score && core > best.CoreMatches) {
			best = ScoredMatch{Entry: &e.Entry, Score: score, CoreMatches: core}
		}
	}
	return best, best.Entry != nil
}

// Relevant returns up to limit entries, taken from the first scan entries,
// whose question or answer contains at least two of the message's words
// longer than three characters. Words are matched as substrings.
func (t *Table) Relevant(message string, limit, scan int) []Entry {
	if limit <= 0 {
		limit = DefaultRelevantMax
	}
	if scan <= 0 || scan > len(t.entries) {
		scan = len(t.entries)
	}

	var words []string
	for _, w := range strings.Fields(textutil.Normalize(message)) {
		if len([]rune(w)) > 3 {
			words = append(words, w)
		}
	}
	if len(words) < 2 {
		return nil
	}

	var out []Entry
	for i := range t.entries[:scan] {
		e := &t.entries[i]
		hits := 0
		for _, w := range words {
			if strings.Contains(e.haystack, w) {
				hits++
			}
		}
		if hits < 2 {
			continue
		}
		out = append(out, e.Entry)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// FormatContext renders entries for a prompt, or a fixed notice when there
// are none.
func FormatContext(entries []Entry) string {
	if len(entries) == 0 {
		return "No particularly relevant FAQs found."
	}
	var b strings.Builder
	for i, e := range entries {
		category := e.Category
		if category == "" {
			category = "General"
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "FAQ %d (%s):\nQ: %s\nA: %s\n", i+1, category, e.Question, e.Answer)
	}
	return b.String()
}

// Package urlrank picks which source pages are worth fetching for a message.
package urlrank

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/qchat-dev/qchat-go/internal/sliceutil"
	"github.com/qchat-dev/qchat-go/internal/textutil"
)

// CategoryBoost is added once per matching category.
const CategoryBoost = 10

//go:embed qu_docs.txt
var defaultList []byte

// category boosts URLs containing Segment when the message mentions any of
// Triggers.
type category struct {
	Triggers []string
	Segment  string
}

var categories = []category{
	{Triggers: []string{"menu", "dining", "eat", "food"}, Segment: "dining"},
	{Triggers: []string{"event", "events", "calendar", "happening"}, Segment: "event"},
	{Triggers: []string{"catalog", "course", "courses", "class", "classes"}, Segment: "catalog"},
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {},
	"has": {}, "have": {}, "his": {}, "how": {}, "its": {}, "may": {}, "who": {}, "did": {},
	"get": {}, "what": {}, "when": {}, "where": {}, "which": {}, "why": {}, "with": {},
	"this": {}, "that": {}, "there": {}, "their": {}, "they": {}, "them": {}, "from": {},
	"about": {}, "into": {}, "does": {}, "doing": {}, "will": {}, "would": {}, "should": {},
	"could": {}, "your": {}, "yours": {}, "my": {}, "mine": {}, "is": {}, "do": {},
	"tell": {}, "know": {}, "want": {}, "need": {}, "please": {}, "some": {}, "much": {},
	"many": {}, "more": {}, "most": {}, "than": {}, "then": {}, "also": {}, "just": {},
	"like": {}, "here": {}, "today": {}, "quinnipiac": {},
}

// Ranker scores candidate URLs against a message. It is safe for concurrent
// use.
type Ranker struct {
	urls []string

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Ranker over urls. A nil src seeds from the runtime.
func New(urls []string, src rand.Source) *Ranker {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Ranker{
		urls: sliceutil.Deduplicate(slices.Clone(urls), func(u string) string { return u }),
		rng:  rand.New(src),
	}
}

// URLs returns the candidate list.
func (r *Ranker) URLs() []string {
	return slices.Clone(r.urls)
}

// Rank ranks the Ranker's own candidate list.
func (r *Ranker) Rank(message string, topK int) []string {
	return r.RankCandidates(message, r.urls, topK)
}

// RankCandidates returns at most topK candidates ordered by descending score.
// Equal scores are ordered randomly. When nothing scores above zero a random
// sample of topK candidates is returned instead, so the result is empty only
// when candidates is empty or topK < 1.
func (r *Ranker) RankCandidates(message string, candidates []string, topK int) []string {
	if len(candidates) == 0 || topK < 1 {
		return nil
	}
	candidates = sliceutil.Deduplicate(slices.Clone(candidates), func(u string) string { return u })

	tokens := Tokenize(message)
	lowered := textutil.Normalize(message)

	type scored struct {
		url   string
		score int
	}
	var hits []scored
	for _, u := range candidates {
		if s := Score(lowered, tokens, u); s > 0 {
			hits = append(hits, scored{url: u, score: s})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(hits) == 0 {
		perm := r.rng.Perm(len(candidates))
		out := make([]string, 0, min(topK, len(candidates)))
		for _, i := range perm[:min(topK, len(perm))] {
			out = append(out, candidates[i])
		}
		return out
	}

	// Shuffle, then stable-sort: ties keep their random order.
	r.rng.Shuffle(len(hits), func(i, j int) { hits[i], hits[j] = hits[j], hits[i] })
	slices.SortStableFunc(hits, func(a, b scored) int { return b.score - a.score })

	out := make([]string, 0, min(topK, len(hits)))
	for _, h := range hits[:min(topK, len(hits))] {
		out = append(out, h.url)
	}
	return out
}

// Score counts message tokens present among the URL's path tokens and adds
// CategoryBoost for each category the message triggers and the URL belongs
// to. lowered is the normalized message.
func Score(lowered string, tokens []string, rawURL string) int {
	pathTokens := URLTokens(rawURL)
	set := make(map[string]struct{}, len(pathTokens))
	for _, t := range pathTokens {
		set[t] = struct{}{}
	}

	score := 0
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			score++
		}
	}

	lowerURL := strings.ToLower(rawURL)
	words := textutil.Words(lowered)
	for _, c := range categories {
		if !strings.Contains(lowerURL, c.Segment) {
			continue
		}
		if slices.ContainsFunc(words, func(w string) bool { return slices.Contains(c.Triggers, w) }) {
			score += CategoryBoost
		}
	}
	return score
}

// Tokenize returns the distinct lowercase words of message that are at least
// three characters long and not stopwords.
func Tokenize(message string) []string {
	var out []string
	for _, w := range textutil.Words(textutil.Normalize(message)) {
		w = strings.Trim(w, "'")
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if !slices.Contains(out, w) {
			out = append(out, w)
		}
	}
	return out
}

// URLTokens splits a URL's host and path into lowercase alphanumeric tokens.
// Query strings and fragments are ignored.
func URLTokens(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(u.Host+u.Path), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// DefaultList returns the built-in source URL list.
func DefaultList() []string {
	urls, _ := parseList(defaultList)
	return urls
}

// LoadList reads a URL list file: one http(s) URL per line, blank lines and
// # comments ignored, duplicates dropped. An empty path returns the
// built-in list.
func LoadList(path string) ([]string, error) {
	if path == "" {
		return DefaultList(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	urls, err := parseList(data)
	if err != nil {
		return nil, fmt.Errorf("parse url list %s: %w", path, err)
	}
	return urls, nil
}

func parseList(data []byte) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		s := strings.TrimSpace(scanner.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			return nil, fmt.Errorf("line %d: not an http(s) url: %q", line, s)
		}
		urls = append(urls, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sliceutil.Deduplicate(urls, func(u string) string { return u }), nil
}

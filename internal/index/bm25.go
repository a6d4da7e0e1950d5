package index

import (
	"fmt"
	"slices"
	"strings"

	bm25 "github.com/iwilltry42/bm25-go"

	"github.com/qchat-dev/qchat-go/internal/textutil"
)

// Standard Okapi parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// lexicalIndex scores chunk texts with BM25. It is immutable once built.
type lexicalIndex struct {
	okapi *bm25.BM25Okapi
	ids   []string
}

// lexicalHit is one BM25 match. Rank is 1-indexed.
type lexicalHit struct {
	ID    string
	Score float64
	Rank  int
}

func newLexicalIndex(records []chunkRecord) (*lexicalIndex, error) {
	if len(records) == 0 {
		return &lexicalIndex{}, nil
	}
	corpus := make([]string, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		corpus[i] = r.Text
		ids[i] = r.ID
	}
	okapi, err := bm25.NewBM25Okapi(corpus, tokenize, bm25K1, bm25B, nil)
	if err != nil {
		return nil, fmt.Errorf("build bm25 index: %w", err)
	}
	return &lexicalIndex{okapi: okapi, ids: ids}, nil
}

// Search returns up to topN chunks with a positive score, best first.
func (l *lexicalIndex) Search(query string, topN int) ([]lexicalHit, error) {
	if l == nil || l.okapi == nil || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	scores, err := l.okapi.GetScores(terms)
	if err != nil {
		return nil, fmt.Errorf("bm25 scoring: %w", err)
	}

	var hits []lexicalHit
	for i, score := range scores {
		if score > 0 && i < len(l.ids) {
			hits = append(hits, lexicalHit{ID: l.ids[i], Score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b lexicalHit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if topN > 0 && len(hits) > topN {
		hits = hits[:topN]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// tokenize lowercases text and splits it into word tokens for BM25.
func tokenize(text string) []string {
	words := textutil.Words(textutil.Normalize(text))
	out := words[:0]
	for _, w := range words {
		if w = strings.Trim(w, "'"); w != "" {
			out = append(out, w)
		}
	}
	return out
}

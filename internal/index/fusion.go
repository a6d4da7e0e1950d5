package index

import "slices"

// RRFConstant is k in the reciprocal rank fusion term w / (k + rank).
const RRFConstant = 60

// fusedHit is a chunk scored by both retrieval legs.
type fusedHit struct {
	ID         string
	Text       string
	SourceURL  string
	VectorSim  float32 // 0 when absent from the vector leg
	VectorRank int     // 0 when absent
	BM25Rank   int     // 0 when absent
	RRFScore   float64
}

// fuseRRF merges vector and BM25 rankings. bm25Weight is clamped to [0, 1]
// and the vector leg gets the remainder. Results are ordered by descending
// fused score; chunks present in both legs accumulate both terms.
func fuseRRF(vector []Chunk, vectorIDs []string, lexical []lexicalHit, records map[string]chunkRecord, bm25Weight float64, topN int) []fusedHit {
	bm25Weight = max(0, min(1, bm25Weight))
	vectorWeight := 1 - bm25Weight

	byID := make(map[string]*fusedHit, len(vector)+len(lexical))
	order := make([]string, 0, len(vector)+len(lexical))

	for i, c := range vector {
		rank := i + 1
		id := vectorIDs[i]
		byID[id] = &fusedHit{
			ID:         id,
			Text:       c.Text,
			SourceURL:  c.SourceURL,
			VectorSim:  c.Similarity,
			VectorRank: rank,
			RRFScore:   vectorWeight / float64(RRFConstant+rank),
		}
		order = append(order, id)
	}

	for _, h := range lexical {
		score := bm25Weight / float64(RRFConstant+h.Rank)
		if existing, ok := byID[h.ID]; ok {
			existing.BM25Rank = h.Rank
			existing.RRFScore += score
			continue
		}
		rec, ok := records[h.ID]
		if !ok {
			continue
		}
		byID[h.ID] = &fusedHit{
			ID:        h.ID,
			Text:      rec.Text,
			SourceURL: rec.URL,
			BM25Rank:  h.Rank,
			RRFScore:  score,
		}
		order = append(order, h.ID)
	}

	out := make([]fusedHit, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	slices.SortStableFunc(out, func(a, b fusedHit) int {
		switch {
		case a.RRFScore > b.RRFScore:
			return -1
		case a.RRFScore < b.RRFScore:
			return 1
		}
		return 0
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// toChunks converts fused hits to chunks. Hits found only by BM25 get the
// fused score scaled against the best hit as their similarity.
func toChunks(hits []fusedHit) []Chunk {
	if len(hits) == 0 {
		return nil
	}
	maxScore := hits[0].RRFScore
	out := make([]Chunk, len(hits))
	for i, h := range hits {
		sim := h.VectorSim
		if sim <= 0 && maxScore > 0 {
			sim = float32(h.RRFScore / maxScore)
		}
		out[i] = Chunk{Text: h.Text, SourceURL: h.SourceURL, Similarity: sim}
	}
	return out
}

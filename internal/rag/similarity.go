package rag

import (
	"math"
	"sort"
)

// CosineSimilarity returns dot(a,b)/(|a||b|). Either norm being zero yields
// 0.0. Vectors of different length also yield 0.0; callers that care filter
// mismatches beforehand.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// LinearSearcher scores every candidate. It keeps no index, so cost grows
// linearly with the corpus.
type LinearSearcher struct{}

func (LinearSearcher) Search(query []float32, candidates []EmbeddingRecord, threshold float64, limit int) []SearchResult {
	return Search(query, candidates, threshold, limit)
}

// Search returns at most limit candidates with similarity >= threshold,
// ordered by descending similarity. Ties keep candidate order. Candidates
// whose vector length differs from the query are skipped.
func Search(query []float32, candidates []EmbeddingRecord, threshold float64, limit int) []SearchResult {
	if limit <= 0 {
		return []SearchResult{}
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			continue
		}
		sim := CosineSimilarity(query, c.Vector)
		if sim < threshold {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:    c.ChunkID,
			Text:       c.Text,
			Similarity: sim,
			Metadata:   c.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Package rerank implements Maximal Marginal Relevance reranking (C10):
// trading off a candidate's relevance to the query against its novelty
// relative to what's already been selected, so the final list isn't
// dominated by near-duplicate chunks.
package rerank

import (
	"math"

	"github.com/causantic/causantic/internal/model"
)

// DefaultThreshold is the candidate-count floor below which Rerank returns
// the input unchanged: MMR's novelty tradeoff isn't worth the cost (or the
// risk of demoting a clearly-best match) over a handful of candidates.
const DefaultThreshold = 10

// DefaultLambda balances relevance against novelty when the caller doesn't
// override it.
const DefaultLambda = 0.7

// EmbeddingLookup returns a chunk's stored embedding, if it has one.
type EmbeddingLookup interface {
	Vector(id string) ([]float32, bool)
}

// Config tunes one Rerank call.
type Config struct {
	// Lambda is in [0, 1]; 1 = pure relevance, 0 = pure novelty. nil means
	// "use DefaultLambda" — a pointer so an explicit 0 (pure novelty) is
	// distinguishable from "not set".
	Lambda    *float64
	Threshold int // candidate count below which reranking is skipped
}

// Rerank iteratively selects the candidate maximizing
// lambda*relevance + (1-lambda)*novelty until every candidate has been
// placed. Scores and source tags are preserved; only order changes. Ties
// break by input order so the result is deterministic.
func Rerank(candidates []model.RankedChunk, embeddings EmbeddingLookup, queryEmbedding []float32, cfg Config) []model.RankedChunk {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(candidates) < threshold {
		return candidates
	}

	lambda := DefaultLambda
	if cfg.Lambda != nil {
		lambda = *cfg.Lambda
	}

	relevance := make([]float64, len(candidates))
	embedding := make([][]float32, len(candidates))
	for i, c := range candidates {
		vec, ok := embeddings.Vector(c.ChunkID)
		embedding[i] = vec
		if ok && len(queryEmbedding) > 0 {
			relevance[i] = 1 - angularDistance(vec, queryEmbedding)
		} else {
			relevance[i] = normalizeScore(c.Score, candidates)
		}
	}

	selected := make([]int, 0, len(candidates))
	remaining := make([]int, len(candidates))
	for i := range candidates {
		remaining[i] = i
	}

	for len(remaining) > 0 {
		bestPos := 0
		bestMMR := math.Inf(-1)

		for pos, idx := range remaining {
			novelty := maxCosineNovelty(embedding[idx], selected, embedding)
			mmr := lambda*relevance[idx] + (1-lambda)*novelty
			if mmr > bestMMR {
				bestMMR = mmr
				bestPos = pos
			}
		}

		chosen := remaining[bestPos]
		selected = append(selected, chosen)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	out := make([]model.RankedChunk, len(candidates))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}

// maxCosineNovelty is 1 - the highest cosine similarity between candidate
// and anything already selected. A candidate without an embedding, or with
// nothing selected yet, is maximally novel.
func maxCosineNovelty(candidate []float32, selected []int, embedding [][]float32) float64 {
	if len(candidate) == 0 || len(selected) == 0 {
		return 1
	}
	maxSim := 0.0
	for _, idx := range selected {
		other := embedding[idx]
		if len(other) == 0 {
			continue
		}
		sim := cosineSimilarity(candidate, other)
		if sim > maxSim {
			maxSim = sim
		}
	}
	return 1 - maxSim
}

func normalizeScore(score float64, candidates []model.RankedChunk) float64 {
	min, max := candidates[0].Score, candidates[0].Score
	for _, c := range candidates {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	if max == min {
		return 1
	}
	return (score - min) / (max - min)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func angularDistance(a, b []float32) float64 {
	cos := cosineSimilarity(a, b)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) / math.Pi
}

// Package fuse implements reciprocal-rank fusion across heterogeneous
// ranked lists (vector search, keyword search, cluster expansion, chain
// walking) into a single ranked list.
package fuse

import (
	"sort"

	"github.com/causantic/causantic/internal/model"
)

// DefaultK is the RRF rank-offset constant used unless a caller overrides it.
const DefaultK = 60

// Source is one ranked list of results to fuse, alongside the weight its
// contributions are scaled by.
type Source struct {
	Tag    model.SourceTag
	Weight float64
	Items  []model.RankedChunk // ordered best-first; rank is 0-based position
}

// Fuse merges any number of weighted, ranked sources into one list ordered
// by descending fused score. Ties break by first appearance across sources
// in the order they were passed in.
//
// For a source S with weight wS, the item at 0-based rank r contributes
// wS / (k + r + 1) to its chunk's fused score. When the same chunk id
// appears in more than one source, the fused item keeps the source tag of
// whichever single source contributed the most to its score; ties keep the
// earliest-listed source.
func Fuse(sources []Source, k int) []model.RankedChunk {
	if k <= 0 {
		k = DefaultK
	}

	type accumulator struct {
		chunk        *model.Chunk
		fusedScore   float64
		bestTag      model.SourceTag
		bestContrib  float64
		firstSeenIdx int
	}

	order := map[string]int{}
	acc := map[string]*accumulator{}
	nextOrder := 0

	for sourceIdx, src := range sources {
		for rank, item := range src.Items {
			contribution := src.Weight / float64(k+rank+1)

			a, ok := acc[item.ChunkID]
			if !ok {
				a = &accumulator{chunk: item.Chunk}
				acc[item.ChunkID] = a
				order[item.ChunkID] = nextOrder
				nextOrder++
				a.firstSeenIdx = sourceIdx
			}
			a.fusedScore += contribution

			if contribution > a.bestContrib {
				a.bestContrib = contribution
				a.bestTag = src.Tag
			} else if contribution == a.bestContrib && a.bestTag == "" {
				a.bestTag = src.Tag
			}
			if item.Chunk != nil {
				a.chunk = item.Chunk
			}
		}
	}

	ids := make([]string, 0, len(acc))
	for id := range acc {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ai, aj := acc[ids[i]], acc[ids[j]]
		if ai.fusedScore != aj.fusedScore {
			return ai.fusedScore > aj.fusedScore
		}
		return order[ids[i]] < order[ids[j]]
	})

	out := make([]model.RankedChunk, 0, len(ids))
	for _, id := range ids {
		a := acc[id]
		out = append(out, model.RankedChunk{
			ChunkID: id,
			Score:   a.fusedScore,
			Source:  a.bestTag,
			Chunk:   a.chunk,
		})
	}
	return out
}

// Package expand implements cluster-sibling expansion (C8): given a ranked
// seed list, it pulls in other members of the same clusters as the
// top-ranked seeds, scored by distance decay, and merges them back into the
// ranking.
package expand

import (
	"context"
	"sort"

	"github.com/causantic/causantic/internal/model"
)

// ClusterLookup is the subset of the Cluster Store the expander needs.
type ClusterLookup interface {
	ClustersForChunk(ctx context.Context, chunkID string) ([]model.ClusterMembership, error)
	Members(ctx context.Context, clusterID string) ([]model.ClusterMembership, error)
}

// Config tunes how aggressively the expander pulls in cluster siblings.
type Config struct {
	MaxClusters  int     // how many top seeds to expand from
	MaxSiblings  int     // how many siblings per cluster to pull in
	BoostFactor  float64 // scales sibling scores down from their parent seed
}

// Expand takes the top MaxClusters seeds by score, finds every cluster each
// belongs to, and pulls in up to MaxSiblings nearest other members of each
// cluster (by distance) not already present in seeds. Sibling score is
// parent_score * (1 - distance) * boostFactor. The returned list merges
// expansion items into seeds by chunk id, keeping the max score and the
// earlier (seed) source tag on collision.
func Expand(ctx context.Context, clusters ClusterLookup, seeds []model.RankedChunk, cfg Config) ([]model.RankedChunk, error) {
	if cfg.MaxClusters <= 0 || cfg.MaxSiblings <= 0 || len(seeds) == 0 {
		return seeds, nil
	}

	merged := make(map[string]model.RankedChunk, len(seeds))
	isSeed := make(map[string]bool, len(seeds))
	order := make([]string, 0, len(seeds))
	for _, s := range seeds {
		merged[s.ChunkID] = s
		isSeed[s.ChunkID] = true
		order = append(order, s.ChunkID)
	}

	ranked := make([]model.RankedChunk, len(seeds))
	copy(ranked, seeds)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	topSeeds := ranked
	if len(topSeeds) > cfg.MaxClusters {
		topSeeds = topSeeds[:cfg.MaxClusters]
	}

	for _, seed := range topSeeds {
		memberships, err := clusters.ClustersForChunk(ctx, seed.ChunkID)
		if err != nil {
			return nil, err
		}

		for _, membership := range memberships {
			siblings, err := clusters.Members(ctx, membership.ClusterID)
			if err != nil {
				return nil, err
			}
			sort.SliceStable(siblings, func(i, j int) bool { return siblings[i].Distance < siblings[j].Distance })

			taken := 0
			for _, sib := range siblings {
				if taken >= cfg.MaxSiblings {
					break
				}
				if sib.ChunkID == seed.ChunkID {
					continue
				}
				if isSeed[sib.ChunkID] {
					// Siblings already present in the seed list are skipped
					// entirely; their seed score and source tag stand.
					continue
				}
				taken++

				score := seed.Score * (1 - sib.Distance) * cfg.BoostFactor
				existing, exists := merged[sib.ChunkID]
				if !exists {
					merged[sib.ChunkID] = model.RankedChunk{
						ChunkID: sib.ChunkID,
						Score:   score,
						Source:  model.SourceCluster,
					}
					order = append(order, sib.ChunkID)
					continue
				}
				if score > existing.Score {
					existing.Score = score
					merged[sib.ChunkID] = existing
				}
			}
		}
	}

	out := make([]model.RankedChunk, len(order))
	for i, id := range order {
		out[i] = merged[id]
	}
	return out, nil
}

// Package walk implements the Chain Walker (C9): a greedy causal traversal
// of the typed chunk graph from a set of seed chunks, one chain per seed,
// under a shared token budget and a shared visited set so chains never
// overlap.
package walk

import (
	"context"
	"math"
	"sort"

	"github.com/causantic/causantic/internal/clock"
	"github.com/causantic/causantic/internal/model"
	"golang.org/x/sync/errgroup"
)

// Direction is which edge direction a walk follows.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// EdgeLookup is the subset of the Edge Store the walker needs.
type EdgeLookup interface {
	Forward(ctx context.Context, chunkID string) ([]*model.Edge, error)
	Backward(ctx context.Context, chunkID string) ([]*model.Edge, error)
}

// ChunkLookup is the subset of the Chunk Store the walker needs.
type ChunkLookup interface {
	Get(ctx context.Context, id string) (*model.Chunk, error)
}

// EmbeddingLookup returns a chunk's stored embedding, if it has one.
type EmbeddingLookup interface {
	Vector(id string) ([]float32, bool)
}

// Config tunes one Walk call.
type Config struct {
	Direction      Direction
	TokenBudget    int
	MaxDepth       int // 0 = unlimited
	ReferenceClock model.VectorClock
	Curve          clock.Curve
}

// Chain is one walked path starting at a seed chunk.
type Chain struct {
	ChunkIDs       []string
	Chunks         []*model.Chunk
	NodeScores     []float64 // per-node similarity to the query embedding
	AggregateScore float64
	MedianScore    float64
	TotalTokens    int
}

// Walk produces one chain per seed, in seed order: each seed's chain must
// finish claiming its chunks into the shared visited set before the next
// seed starts, so chains never overlap. Within a single chain, fetching
// the chunks it already picked is parallelized via errgroup (see
// hydrateChain), mirroring the teacher's parallelSearch fan-out pattern
// where the fanned-out work is independent.
func Walk(ctx context.Context, edges EdgeLookup, chunks ChunkLookup, embeddings EmbeddingLookup, queryEmbedding []float32, seeds []string, cfg Config) ([]Chain, error) {
	if len(seeds) == 0 || cfg.TokenBudget <= 0 {
		return nil, nil
	}

	visited := make(map[string]bool, len(seeds)*2)
	chains := make([]Chain, 0, len(seeds))
	remaining := cfg.TokenBudget

	for _, seed := range seeds {
		if remaining <= 0 {
			break
		}
		if visited[seed] {
			continue
		}

		ids, tokensUsed, err := buildChain(ctx, edges, chunks, seed, visited, remaining, cfg)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			visited[id] = true
		}
		if len(ids) == 0 {
			continue
		}
		remaining -= tokensUsed

		chain, err := hydrateChain(ctx, chunks, embeddings, queryEmbedding, ids)
		if err != nil {
			return nil, err
		}
		chains = append(chains, chain)
	}

	return chains, nil
}

// buildChain greedily extends a single chain from seed: at each step it
// looks up outgoing edges from the current endpoint and picks the single
// successor not already visited with the highest weight*decay score. It
// tracks token cost as it goes (deducting the seed's own tokens first) so
// the budget check happens during traversal, not after the fact.
func buildChain(ctx context.Context, edges EdgeLookup, chunks ChunkLookup, seed string, visited map[string]bool, budget int, cfg Config) ([]string, int, error) {
	seedChunk, err := chunks.Get(ctx, seed)
	if err != nil {
		return nil, 0, err
	}

	chain := []string{seed}
	localVisited := map[string]bool{seed: true}
	tokensUsed := seedChunk.ApproxTokens
	remaining := budget - tokensUsed
	current := seed
	depth := 0

	for {
		if cfg.MaxDepth > 0 && depth >= cfg.MaxDepth {
			break
		}
		if remaining <= 0 {
			break
		}

		var candidates []*model.Edge
		if cfg.Direction == Backward {
			candidates, err = edges.Backward(ctx, current)
		} else {
			candidates, err = edges.Forward(ctx, current)
		}
		if err != nil {
			return nil, 0, err
		}

		var best *model.Edge
		var bestScore float64
		for _, e := range candidates {
			next := e.TargetID
			if cfg.Direction == Backward {
				next = e.SourceID
			}
			if visited[next] || localVisited[next] {
				continue
			}
			score := e.InitialWeight * clock.DecayWeight(e.VectorClock, cfg.ReferenceClock, cfg.Curve)
			if best == nil || score > bestScore {
				best = e
				bestScore = score
			}
		}
		if best == nil {
			break
		}

		next := best.TargetID
		if cfg.Direction == Backward {
			next = best.SourceID
		}
		nextChunk, err := chunks.Get(ctx, next)
		if err != nil {
			return nil, 0, err
		}

		chain = append(chain, next)
		localVisited[next] = true
		tokensUsed += nextChunk.ApproxTokens
		remaining -= nextChunk.ApproxTokens
		current = next
		depth++
	}

	return chain, tokensUsed, nil
}

// hydrateChain fetches every chunk in a chain concurrently (the fetches are
// independent of each other and of the graph walk that produced the id
// list), mirroring the teacher's parallelSearch fan-out idiom, then scores
// each node against the query embedding in id order.
func hydrateChain(ctx context.Context, chunks ChunkLookup, embeddings EmbeddingLookup, queryEmbedding []float32, ids []string) (Chain, error) {
	fetched := make([]*model.Chunk, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			c, err := chunks.Get(gctx, id)
			if err != nil {
				return err
			}
			fetched[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Chain{}, err
	}

	result := Chain{ChunkIDs: ids, Chunks: fetched}
	for i, id := range ids {
		c := fetched[i]
		result.TotalTokens += c.ApproxTokens

		var score float64
		if vec, ok := embeddings.Vector(id); ok && len(queryEmbedding) > 0 {
			score = 1 - angularDistance(vec, queryEmbedding)
		}
		result.NodeScores = append(result.NodeScores, score)
		result.AggregateScore += score
	}

	result.MedianScore = median(result.NodeScores)
	return result, nil
}

// SelectBestChain picks the chain with the highest median score among
// those of length >= 2 chunks. Median, not mean, is used deliberately so a
// single weak link in an otherwise strong chain doesn't disqualify it.
func SelectBestChain(chains []Chain) (Chain, bool) {
	var best Chain
	found := false
	for _, c := range chains {
		if len(c.ChunkIDs) < 2 {
			continue
		}
		if !found || c.MedianScore > best.MedianScore {
			best = c
			found = true
		}
	}
	return best, found
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func angularDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) / math.Pi
}

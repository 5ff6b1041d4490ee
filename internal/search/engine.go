package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/causantic/causantic/internal/clock"
	"github.com/causantic/causantic/internal/embed"
	"github.com/causantic/causantic/internal/expand"
	"github.com/causantic/causantic/internal/fuse"
	"github.com/causantic/causantic/internal/model"
	"github.com/causantic/causantic/internal/rerank"
	"github.com/causantic/causantic/internal/store"
	"github.com/causantic/causantic/internal/walk"
)

// ErrNilDependency is returned by NewEngine when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// boundaryMarker separates chunk contents in the assembled text output.
const boundaryMarker = "\n---\n"

// previewLength is how many runes of a chunk's content are kept in its
// ResponseChunk preview.
const previewLength = 160

// ChunkLookup is the subset of the Chunk Store the assembler needs.
type ChunkLookup interface {
	Get(ctx context.Context, id string) (*model.Chunk, error)
}

// EdgeLookup is the subset of the Edge Store the assembler needs.
type EdgeLookup interface {
	Forward(ctx context.Context, chunkID string) ([]*model.Edge, error)
	Backward(ctx context.Context, chunkID string) ([]*model.Edge, error)
}

// ClusterLookup is the subset of the Cluster Store the assembler needs.
type ClusterLookup interface {
	ClustersForChunk(ctx context.Context, chunkID string) ([]model.ClusterMembership, error)
	Members(ctx context.Context, clusterID string) ([]model.ClusterMembership, error)
}

// Engine assembles query responses from the vector, keyword, cluster and
// edge stores plus an embedder. It holds no mutable query state itself; a
// single Engine value is safe to share and reuse across concurrent queries.
type Engine struct {
	vectors  store.VectorStore
	keywords store.KeywordStore
	chunks   ChunkLookup
	edges    EdgeLookup
	clusters ClusterLookup
	embedder embed.Embedder

	curve   clock.Curve
	cache   *lru.Cache[string, []float32]
	metrics Metrics
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithCache enables query-embedding memoization: repeated queries (common
// across recall/search/predict calls against the same discussion) skip the
// embedder entirely on a cache hit. size <= 0 falls back to a small default.
func WithCache(size int) Option {
	return func(e *Engine) {
		if size <= 0 {
			size = 256
		}
		c, _ := lru.New[string, []float32](size)
		e.cache = c
	}
}

// WithClock sets the decay curve used to weight chain-walker edges when a
// query's Options don't specify one of their own.
func WithClock(curve clock.Curve) Option {
	return func(e *Engine) { e.curve = curve }
}

// WithMetrics attaches an observer notified once per Query call.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires the five store/embedder dependencies into an Engine.
// vectors, keywords and chunks are required; edges and clusters may be nil
// if chain walking and cluster expansion are never requested, and embedder
// may be nil, in which case Query degrades to keyword-only search.
func NewEngine(vectors store.VectorStore, keywords store.KeywordStore, chunks ChunkLookup, edges EdgeLookup, clusters ClusterLookup, embedder embed.Embedder, opts ...Option) (*Engine, error) {
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if keywords == nil {
		return nil, fmt.Errorf("%w: keyword store is required", ErrNilDependency)
	}
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrNilDependency)
	}

	e := &Engine{
		vectors:  vectors,
		keywords: keywords,
		chunks:   chunks,
		edges:    edges,
		clusters: clusters,
		embedder: embedder,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Query runs the full assembler pipeline and returns an assembled Response.
func (e *Engine) Query(ctx context.Context, query string, opts Options) (model.Response, error) {
	start := time.Now()

	if opts.Mode == ModePredict {
		opts.ClusterExpansion = true
		opts.MaxTokens /= 2
	}
	if opts.MaxTokens <= 0 {
		return model.Response{}, nil
	}
	if opts.VectorSearchLimit <= 0 {
		opts.VectorSearchLimit = DefaultVectorSearchLimit
	}
	if opts.Range == "" {
		opts.Range = RangeShort
	}
	if opts.Curve.Kind == "" {
		opts.Curve = e.curve
	}

	queryEmbedding, degraded := e.embedQuery(ctx, query)

	seeds, totalConsidered, err := e.gatherSeeds(ctx, query, queryEmbedding, opts)
	if err != nil {
		return model.Response{}, err
	}
	if len(seeds) == 0 {
		resp := model.Response{Degraded: degraded, ElapsedMS: time.Since(start).Milliseconds()}
		e.observe(opts.Mode, start, 0, degraded)
		return resp, nil
	}

	ranked := seeds
	if opts.ClusterExpansion && e.clusters != nil {
		ranked, err = expand.Expand(ctx, e.clusters, ranked, expand.Config{
			MaxClusters: 5,
			MaxSiblings: 3,
			BoostFactor: 0.8,
		})
		if err != nil {
			return model.Response{}, err
		}
	}

	ranked = rerank.Rerank(ranked, e.vectors, queryEmbedding, rerank.Config{Lambda: opts.MMRLambda})

	if opts.ChainWalk && e.edges != nil {
		ranked, err = e.walkChains(ctx, seeds, ranked, queryEmbedding, opts)
		if err != nil {
			return model.Response{}, err
		}
	}

	ranked, err = e.hydrate(ctx, ranked)
	if err != nil {
		return model.Response{}, err
	}

	resp := assemble(ranked, opts.MaxTokens)
	resp.Degraded = degraded
	resp.TotalConsidered = totalConsidered
	resp.ElapsedMS = time.Since(start).Milliseconds()

	e.observe(opts.Mode, start, totalConsidered, degraded)
	return resp, nil
}

func (e *Engine) observe(mode Mode, start time.Time, totalConsidered int, degraded bool) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveQuery(mode, time.Since(start), totalConsidered, degraded)
}

// embedQuery computes (and, with WithCache, memoizes) the query embedding.
// A nil or unavailable embedder is not an error: the caller falls back to
// keyword-only search with Degraded set.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, bool) {
	if e.embedder == nil || !e.embedder.Available(ctx) {
		return nil, true
	}

	if e.cache != nil {
		key := e.cacheKey(query)
		if vec, ok := e.cache.Get(key); ok {
			return vec, false
		}
		vec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			return nil, true
		}
		e.cache.Add(key, vec)
		return vec, false
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, true
	}
	return vec, false
}

func (e *Engine) cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query + "\x00" + e.embedder.ModelName()))
	return hex.EncodeToString(sum[:])
}

// gatherSeeds runs vector and keyword top-k in parallel and RRF-fuses them.
// Step 2-3 of the pipeline.
func (e *Engine) gatherSeeds(ctx context.Context, query string, queryEmbedding []float32, opts Options) ([]model.RankedChunk, int, error) {
	var vecResults []*store.VectorResult
	var kwResults []*store.BM25Result

	g, gctx := errgroup.WithContext(ctx)
	if len(queryEmbedding) > 0 {
		g.Go(func() error {
			res, err := e.vectors.Search(gctx, queryEmbedding, opts.VectorSearchLimit)
			if err != nil {
				return err
			}
			vecResults = res
			return nil
		})
	}
	g.Go(func() error {
		res, err := e.keywords.SearchProject(gctx, query, opts.ProjectFilter, opts.VectorSearchLimit)
		if err != nil {
			return err
		}
		kwResults = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	vecSeeds, err := e.hydrateVector(ctx, vecResults, opts.ProjectFilter)
	if err != nil {
		return nil, 0, err
	}
	kwSeeds, err := e.hydrateKeyword(ctx, kwResults)
	if err != nil {
		return nil, 0, err
	}

	keywordWeight := 1.0
	if opts.Mode == ModeSearch {
		keywordWeight = 1.5
	}

	sources := []fuse.Source{{Tag: model.SourceKeyword, Weight: keywordWeight, Items: kwSeeds}}
	if len(vecSeeds) > 0 {
		sources = append([]fuse.Source{{Tag: model.SourceVector, Weight: 1.0, Items: vecSeeds}}, sources...)
	}

	fused := fuse.Fuse(sources, fuse.DefaultK)
	return fused, len(vecSeeds) + len(kwSeeds), nil
}

func (e *Engine) hydrateVector(ctx context.Context, results []*store.VectorResult, project string) ([]model.RankedChunk, error) {
	out := make([]model.RankedChunk, 0, len(results))
	for _, r := range results {
		c, err := e.chunks.Get(ctx, r.ID)
		if err != nil {
			continue
		}
		if project != "" && c.ProjectSlug != project {
			continue
		}
		out = append(out, model.RankedChunk{ChunkID: r.ID, Score: float64(r.Score), Source: model.SourceVector, Chunk: c})
	}
	return out, nil
}

// hydrateKeyword fetches each keyword hit's full chunk. Project scoping
// already happened server-side in the SearchProject call that produced
// results, so there's no post-hoc filter here.
func (e *Engine) hydrateKeyword(ctx context.Context, results []*store.BM25Result) ([]model.RankedChunk, error) {
	out := make([]model.RankedChunk, 0, len(results))
	for _, r := range results {
		c, err := e.chunks.Get(ctx, r.DocID)
		if err != nil {
			continue
		}
		out = append(out, model.RankedChunk{ChunkID: r.DocID, Score: r.Score, Source: model.SourceKeyword, Chunk: c})
	}
	return out, nil
}

// walkChains runs the Chain Walker from the pre-expansion seeds and splices
// the winning chain(s) into ranked: backward chains prepend (earlier
// context goes first), forward chains append. Step 6 of the pipeline.
func (e *Engine) walkChains(ctx context.Context, seeds []model.RankedChunk, ranked []model.RankedChunk, queryEmbedding []float32, opts Options) ([]model.RankedChunk, error) {
	seedIDs := make([]string, len(seeds))
	for i, s := range seeds {
		seedIDs[i] = s.ChunkID
	}

	present := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		present[r.ChunkID] = true
	}

	directions := []walk.Direction{walk.Backward}
	if opts.Range == RangeLong {
		directions = append(directions, walk.Forward)
	}

	cfg := walk.Config{
		TokenBudget:    opts.MaxTokens / 2,
		ReferenceClock: opts.ReferenceClock,
		Curve:          opts.Curve,
	}

	for _, dir := range directions {
		cfg.Direction = dir
		chains, err := walk.Walk(ctx, e.edges, e.chunks, e.vectors, queryEmbedding, seedIDs, cfg)
		if err != nil {
			return nil, err
		}
		best, ok := walk.SelectBestChain(chains)
		if !ok {
			continue
		}

		var extra []model.RankedChunk
		for i, id := range best.ChunkIDs {
			if present[id] {
				continue
			}
			present[id] = true
			extra = append(extra, model.RankedChunk{
				ChunkID: id,
				Score:   best.NodeScores[i],
				Source:  model.SourceGraph,
				Chunk:   best.Chunks[i],
			})
		}
		if len(extra) == 0 {
			continue
		}
		if dir == walk.Backward {
			ranked = append(extra, ranked...)
		} else {
			ranked = append(ranked, extra...)
		}
	}

	return ranked, nil
}

// hydrate fills in any chunk still missing its *model.Chunk (cluster
// expansion only knows chunk ids).
func (e *Engine) hydrate(ctx context.Context, ranked []model.RankedChunk) ([]model.RankedChunk, error) {
	out := make([]model.RankedChunk, len(ranked))
	for i, r := range ranked {
		if r.Chunk == nil {
			c, err := e.chunks.Get(ctx, r.ChunkID)
			if err != nil {
				continue
			}
			r.Chunk = c
		}
		out[i] = r
	}
	return out, nil
}

// assemble performs steps 7-8: accumulate chunks in order under the token
// budget, then produce the deterministic text and structured chunk list.
func assemble(ranked []model.RankedChunk, maxTokens int) model.Response {
	var (
		chunksOut  []model.ResponseChunk
		textParts  []string
		tokenCount int
	)

	for _, r := range ranked {
		if r.Chunk == nil {
			continue
		}
		if tokenCount+r.Chunk.ApproxTokens > maxTokens {
			break
		}
		tokenCount += r.Chunk.ApproxTokens

		textParts = append(textParts, r.Chunk.Content)
		chunksOut = append(chunksOut, model.ResponseChunk{
			ID:          r.ChunkID,
			SessionSlug: store.Slugify(r.Chunk.SessionID),
			Weight:      r.Score,
			Preview:     preview(r.Chunk.Content),
			SourceTag:   r.Source,
		})
	}

	return model.Response{
		Chunks:     chunksOut,
		Text:       strings.Join(textParts, boundaryMarker),
		TokenCount: tokenCount,
	}
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "…"
}

var (
	_ walk.ChunkLookup       = (ChunkLookup)(nil)
	_ walk.EmbeddingLookup   = (store.VectorStore)(nil)
	_ rerank.EmbeddingLookup = (store.VectorStore)(nil)
)

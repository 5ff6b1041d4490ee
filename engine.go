// Package causantic is the local-first long-term conversational memory
// engine: it ingests per-session transcripts into typed, causally-linked
// chunks and answers recall/search/predict/reconstruct queries against
// them. Engine is the single entry point; there is no package-level
// singleton, so a process may hold as many independently configured
// Engines as it needs.
package causantic

import (
	"context"
	"fmt"
	"time"

	"github.com/causantic/causantic/internal/archive"
	"github.com/causantic/causantic/internal/clock"
	"github.com/causantic/causantic/internal/config"
	"github.com/causantic/causantic/internal/embed"
	"github.com/causantic/causantic/internal/reconstruct"
	"github.com/causantic/causantic/internal/search"
	"github.com/causantic/causantic/internal/store"
)

// Engine wires the five stores, the embedder and the Search Assembler
// together behind the query API described in the project's external
// interface: Recall, Search, Predict, ListProjects, ListSessions and
// Reconstruct.
type Engine struct {
	db       *store.DB
	chunks   *store.SQLiteChunkStore
	edges    *store.SQLiteEdgeStore
	clusters *store.SQLiteClusterStore
	vectors  store.VectorStore
	keywords store.KeywordStore
	embedder embed.Embedder

	search *search.Engine
	curve  clock.Curve
	cfg    *config.Config
}

// New opens (or creates) the database and vector/keyword indexes named by
// cfg, wires them into a Search Assembler configured per cfg.Search and
// cfg.Decay, and returns a ready-to-query Engine. New always installs
// embed.NewStaticEmbedder(), so an Engine is usable standalone, without a
// model download, from the moment it's built; there is no way to supply a
// different embedder.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}

	db, err := store.Open(store.OpenOptions{Path: cfg.Store.DatabasePath, CacheSizeMB: cfg.Store.SQLiteCacheMB})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	chunks := store.NewSQLiteChunkStore(db)
	edges := store.NewSQLiteEdgeStore(db)
	clusters := store.NewSQLiteClusterStore(db)

	var keywordBasePath string
	if cfg.Store.DatabasePath != "" {
		keywordBasePath = cfg.Store.DatabasePath + ".keywords"
	}
	keywords, err := store.NewKeywordStore(keywordBasePath, store.DefaultBM25Config(), cfg.Store.KeywordBackend)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open keyword store: %w", err)
	}

	embedder := embed.NewStaticEmbedder()

	vectors, err := newVectorStore(cfg, embedder.Dimensions())
	if err != nil {
		db.Close()
		keywords.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	curve := curveFromConfig(cfg.Decay)

	searchEngine, err := search.NewEngine(vectors, keywords, chunks, edges, clusters, embedder,
		search.WithClock(curve),
		search.WithCache(cfg.Store.EmbeddingCacheSize),
	)
	if err != nil {
		db.Close()
		keywords.Close()
		vectors.Close()
		return nil, fmt.Errorf("build search engine: %w", err)
	}

	return &Engine{
		db:       db,
		chunks:   chunks,
		edges:    edges,
		clusters: clusters,
		vectors:  vectors,
		keywords: keywords,
		embedder: embedder,
		search:   searchEngine,
		curve:    curve,
		cfg:      cfg,
	}, nil
}

func newVectorStore(cfg *config.Config, dimensions int) (store.VectorStore, error) {
	vcfg := store.DefaultVectorStoreConfig(dimensions)
	if cfg.Store.VectorBackend == "hnsw" {
		return store.NewHNSWStore(vcfg)
	}
	return store.NewMatrixStore(vcfg), nil
}

// curveFromConfig builds the default decay curve the chain walker falls
// back to, selecting among the clock package's curve-family constructors
// by cfg.Decay.Curve.
func curveFromConfig(d config.DecayConfig) clock.Curve {
	r, k, alpha := d.R, d.K, d.Alpha
	if r == 0 {
		r = 0.85
	}
	if alpha == 0 {
		alpha = 1.0
	}

	var c clock.Curve
	switch clock.Kind(d.Curve) {
	case clock.KindLinear:
		c = clock.Linear(1.0, k)
	case clock.KindPowerLaw:
		c = clock.PowerLaw(1.0, k, alpha)
	case clock.KindExponential, "":
		c = clock.Exponential(1.0, r)
	default:
		c = clock.Exponential(1.0, r)
	}
	if d.MinWeight != 0 {
		c.MinWeight = d.MinWeight
	}
	return c
}

// Close releases the database and index handles. Safe to call once after
// the Engine is no longer needed.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.keywords.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Recall runs the balanced retrieval mode: default range is "short"
// (backward-only chain walking). Chain walking runs only when
// opts.ChainWalk is true; its zero value leaves it off.
func (e *Engine) Recall(ctx context.Context, query string, opts RecallOptions) (Response, error) {
	searchOpts := e.toSearchOptions(search.ModeRecall, opts.CommonQueryOptions)
	searchOpts.Range = rangeOrDefault(opts.Range, search.RangeShort)
	searchOpts.ChainWalk = opts.ChainWalk
	return e.search.Query(ctx, query, searchOpts)
}

// Search runs the lexical-biased retrieval mode: RRF weights keyword
// matches 1.5x relative to vector matches.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (Response, error) {
	searchOpts := e.toSearchOptions(search.ModeSearch, opts.CommonQueryOptions)
	searchOpts.Range = rangeOrDefault(opts.Range, search.RangeShort)
	searchOpts.ChainWalk = opts.ChainWalk
	return e.search.Query(ctx, query, searchOpts)
}

// Predict treats discussion as the query for the current, still-unfinished
// exchange: the assembler halves MaxTokens and always cluster-expands.
func (e *Engine) Predict(ctx context.Context, discussion string, opts PredictOptions) (Response, error) {
	searchOpts := e.toSearchOptions(search.ModePredict, opts.CommonQueryOptions)
	searchOpts.Range = rangeOrDefault(opts.Range, search.RangeShort)
	searchOpts.ChainWalk = opts.ChainWalk
	return e.search.Query(ctx, discussion, searchOpts)
}

func (e *Engine) toSearchOptions(mode search.Mode, common CommonQueryOptions) search.Options {
	opts := search.Options{
		Mode:              mode,
		ProjectFilter:     common.ProjectFilter,
		MaxTokens:         common.MaxTokens,
		VectorSearchLimit: common.VectorSearchLimit,
		MMRLambda:         common.MMRLambda,
		ClusterExpansion:  common.ClusterExpansion,
		ReferenceClock:    common.ReferenceClock,
		Curve:             common.Curve,
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = e.cfg.Search.MaxTokens
	}
	if opts.VectorSearchLimit == 0 {
		opts.VectorSearchLimit = e.cfg.Search.VectorSearchLimit
	}
	if opts.MMRLambda == nil {
		lambda := e.cfg.Search.MMRLambda
		opts.MMRLambda = &lambda
	}
	return opts
}

func rangeOrDefault(r string, def search.Range) search.Range {
	if r == "" {
		return def
	}
	return search.Range(r)
}

// ListProjects reports every project the chunk store has seen, with chunk
// counts and first/last activity timestamps.
func (e *Engine) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	return e.chunks.DistinctProjects(ctx)
}

// ListSessions reports every session within a project, optionally
// restricted to a time window via opts.From/To or opts.DaysBack.
func (e *Engine) ListSessions(ctx context.Context, project string, opts SessionListOptions) ([]SessionSummary, error) {
	from, to := opts.From, opts.To
	if opts.DaysBack > 0 {
		to = time.Now()
		from = to.AddDate(0, 0, -opts.DaysBack)
	}
	return e.chunks.SessionSummaries(ctx, project, from, to)
}

// Reconstruct rebuilds a chronological replay of a project's (or session's)
// chunks, truncated to opts.MaxTokens.
func (e *Engine) Reconstruct(ctx context.Context, opts ReconstructOptions) (ReconstructResult, error) {
	return reconstruct.Reconstruct(ctx, e.chunks, opts.toInternal())
}

// archiveSources exposes the store read-side for archive.Export.
func (e *Engine) archiveSources() archive.Sources {
	return archive.Sources{
		Chunks:   e.chunks,
		Edges:    e.edges,
		Clusters: e.clusters,
		Vectors:  e.vectors,
	}
}

// archiveSinks exposes the store write-side for archive.Import.
func (e *Engine) archiveSinks() archive.Sinks {
	return archive.Sinks{
		Chunks:   e.chunks,
		Edges:    e.edges,
		Clusters: e.clusters,
		Vectors:  e.vectors,
	}
}

// Export serializes this Engine's stores into a portable archive bundle.
func (e *Engine) Export(ctx context.Context, opts archive.ExportOptions) ([]byte, error) {
	return archive.Export(ctx, e.archiveSources(), opts)
}

// Import applies an archive bundle produced by Export (or a compatible
// producer) back into this Engine's stores.
func (e *Engine) Import(ctx context.Context, data []byte, opts archive.ImportOptions) (archive.ImportReport, error) {
	return archive.Import(ctx, e.archiveSinks(), data, opts)
}

// Package store implements the Chunk, Edge, Cluster, Vector and Keyword
// stores (C2-C6) on top of a single SQLite database file plus pluggable
// vector/keyword backends.
package store

import (
	"context"
)

// Document is a unit of text handed to a KeywordStore for indexing.
type Document struct {
	ID      string // Chunk ID
	Content string // Text content
	Project string // Project slug; empty indexes with no project scoping
}

// BM25Result is a single keyword search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats reports size/shape of a keyword index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// KeywordStore is the C5 store: lexical search via BM25. Two backends
// satisfy it: SQLite FTS5 (an index in its own database file, separate
// from the chunk tables) and Bleve
// (a standalone inverted index with a code-aware analyzer).
type KeywordStore interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	// SearchProject is Search scoped server-side to a single project: the
	// project filter is applied inside the query itself, not after the
	// top-limit window is cut, so a project's matches can't be pushed out
	// by unrelated higher-scoring hits from other projects. An empty
	// project behaves exactly like Search.
	SearchProject(ctx context.Context, query, project string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error

	AllIDs() ([]string, error)
	Stats() *IndexStats

	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config carries the settings passed to both KeywordStore backends.
// Each backend builds its stop-word map from StopWords; K1, B and
// MinTokenLength are not read by either backend.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64

	// StopWords is a list of words to filter out during tokenization
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2)
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords filters common programming keywords that would
// otherwise dominate BM25 term frequency in a transcript full of code.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

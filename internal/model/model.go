// Package model defines the persistent data types shared by every store and
// component of the retrieval engine: Chunk, Edge, Cluster and VectorClock.
package model

import (
	"sort"
	"time"
)

// VectorClock maps an agent id to a monotonically non-decreasing tick.
// It is serialized as a canonical JSON object sorted by key wherever it
// crosses a persistence or wire boundary.
type VectorClock map[string]int64

// Merge returns the pointwise maximum of a and b. Neither input is mutated.
func (a VectorClock) Merge(b VectorClock) VectorClock {
	out := make(VectorClock, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; !ok || v > existing {
			out[k] = v
		}
	}
	return out
}

// HopCount is Σ|a[k]-b[k]| over the union of keys, treating missing keys as 0.
func (a VectorClock) HopCount(b VectorClock) int64 {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	var total int64
	for k := range keys {
		d := a[k] - b[k]
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total
}

// Keys returns the clock's agent ids in sorted order, useful for canonical
// serialization and deterministic iteration.
func (a VectorClock) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EdgeType indicates the traversal direction an edge was recorded for.
type EdgeType string

const (
	EdgeForward  EdgeType = "forward"
	EdgeBackward EdgeType = "backward"
)

// ReferenceType classifies why an edge exists between two chunks.
type ReferenceType string

const (
	ReferenceWithinChain     ReferenceType = "within-chain"
	ReferenceFilePath        ReferenceType = "file-path"
	ReferenceCodeEntity      ReferenceType = "code-entity"
	ReferenceExplicitBackref ReferenceType = "explicit-backref"
	ReferenceErrorFragment   ReferenceType = "error-fragment"
	ReferenceToolOutput      ReferenceType = "tool-output"
	ReferenceCrossSession    ReferenceType = "cross-session"
	ReferenceAdjacent        ReferenceType = "adjacent"
)

// SourceTag identifies which retrieval path surfaced a chunk in a Response.
type SourceTag string

const (
	SourceVector  SourceTag = "vector"
	SourceKeyword SourceTag = "keyword"
	SourceCluster SourceTag = "cluster"
	SourceGraph   SourceTag = "graph"
)

// Chunk is a contiguous span of one session's transcript.
type Chunk struct {
	ID           string
	SessionID    string
	ProjectSlug  string
	ProjectPath  string // optional
	TurnIndices  []int  // ordered set of turn numbers covered, non-empty and sorted
	StartTime    time.Time
	EndTime      time.Time
	Content      string
	ApproxTokens int
	AgentID      string // optional
	VectorClock  VectorClock
	SpawnDepth   int // 0 = root
	CreatedAt    time.Time
}

// Validate checks the invariants spec'd for a Chunk.
func (c *Chunk) Validate() error {
	if len(c.TurnIndices) == 0 {
		return errInvalidChunk("turn_indices must be non-empty")
	}
	if !sort.IntsAreSorted(c.TurnIndices) {
		return errInvalidChunk("turn_indices must be sorted")
	}
	if c.StartTime.After(c.EndTime) {
		return errInvalidChunk("start_time must not be after end_time")
	}
	if len(c.VectorClock) == 0 {
		return errInvalidChunk("vector_clock must have at least one key")
	}
	if c.Content != "" && c.ApproxTokens <= 0 {
		return errInvalidChunk("approx_tokens must be > 0 when content is non-empty")
	}
	return nil
}

type chunkValidationError string

func (e chunkValidationError) Error() string { return string(e) }

func errInvalidChunk(msg string) error { return chunkValidationError(msg) }

// Edge is a directed typed reference between two chunks.
type Edge struct {
	ID             string
	SourceID       string
	TargetID       string
	EdgeType       EdgeType
	ReferenceType  ReferenceType
	InitialWeight  float64 // (0, 1]
	LinkCount      int     // >= 1
	CreatedAt      time.Time
	VectorClock    VectorClock
}

// Validate checks the invariants spec'd for an Edge.
func (e *Edge) Validate() error {
	if e.SourceID == e.TargetID {
		return errInvalidEdge("source_id must not equal target_id")
	}
	if e.InitialWeight <= 0 || e.InitialWeight > 1 {
		return errInvalidEdge("initial_weight must be in (0, 1]")
	}
	if e.LinkCount < 1 {
		return errInvalidEdge("link_count must be >= 1")
	}
	return nil
}

type edgeValidationError string

func (e edgeValidationError) Error() string { return string(e) }

func errInvalidEdge(msg string) error { return edgeValidationError(msg) }

// MergeKey returns the tuple edges collapse on: upserting an edge with the
// same (source, target, reference_type) bumps link_count instead of
// inserting a duplicate row.
func (e *Edge) MergeKey() [3]string {
	return [3]string{e.SourceID, e.TargetID, string(e.ReferenceType)}
}

// Cluster is a soft grouping of chunks by embedding proximity.
type Cluster struct {
	ID             string
	Name           string // optional
	Description    string // optional
	Centroid       []float32 // optional, same dim as embeddings
	ExemplarIDs    []string  // optional
	MembershipHash string    // for staleness detection
	CreatedAt      time.Time
	RefreshedAt    time.Time
}

// ClusterMembership is a row in the many-to-many chunk<->cluster table.
type ClusterMembership struct {
	ChunkID   string
	ClusterID string
	Distance  float64 // angular distance to centroid, in [0, 1]
}

// RankedChunk is a chunk surfaced by one retrieval path with its score and
// the source that produced it. It is the common currency the RRF fuser (C7),
// cluster expander (C8), chain walker (C9) and MMR reranker (C10) all pass
// between each other before the final Response is assembled.
type RankedChunk struct {
	ChunkID string
	Score   float64
	Source  SourceTag
	Chunk   *Chunk // populated once hydrated from the Chunk Store
}

// Response is returned by the engine's recall/search/predict query API.
type Response struct {
	Chunks          []ResponseChunk
	Text            string
	TokenCount      int
	TotalConsidered int
	ElapsedMS       int64
	Degraded        bool // true when the embedding model was unavailable
}

// ResponseChunk is one chunk surfaced inside a Response.
type ResponseChunk struct {
	ID          string
	SessionSlug string
	Weight      float64
	Preview     string
	SourceTag   SourceTag
}

// ProjectSummary is one row of list_projects().
type ProjectSummary struct {
	Slug       string
	ChunkCount int
	FirstSeen  time.Time
	LastSeen   time.Time
}

// SessionSummary is one row of list_sessions().
type SessionSummary struct {
	SessionID  string
	ProjectSlug string
	ChunkCount  int
	FirstSeen   time.Time
	LastSeen    time.Time
}

// ReconstructResult is returned by reconstruct().
type ReconstructResult struct {
	Chunks      []*Chunk
	Sessions    []SessionSummary
	TotalTokens int
	Truncated   bool
	TimeRangeStart time.Time
	TimeRangeEnd   time.Time
}

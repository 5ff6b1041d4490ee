package causantic

import (
	"time"

	"github.com/causantic/causantic/internal/clock"
	"github.com/causantic/causantic/internal/model"
	"github.com/causantic/causantic/internal/reconstruct"
)

// Response is the assembled output of Recall, Search and Predict: ordered
// chunks plus the deterministic text join and token accounting.
type Response = model.Response

// ProjectSummary is one row of ListProjects.
type ProjectSummary = model.ProjectSummary

// SessionSummary is one row of ListSessions.
type SessionSummary = model.SessionSummary

// ReconstructResult is returned by Reconstruct.
type ReconstructResult = model.ReconstructResult

// CommonQueryOptions is the configuration surface shared by Recall, Search
// and Predict: project scoping, budget, and the retrieval knobs the
// assembler tunes per step.
type CommonQueryOptions struct {
	ProjectFilter     string
	MaxTokens         int
	VectorSearchLimit int
	// MMRLambda is in [0, 1]; 1 = pure relevance, 0 = pure novelty. nil
	// means "use the configured default" — a pointer so an explicit 0
	// (pure novelty reranking) is distinguishable from "not set".
	MMRLambda        *float64
	ClusterExpansion bool
	ReferenceClock   model.VectorClock
	Curve            clock.Curve
}

// RecallOptions configures Recall: balanced retrieval, defaulting to a
// backward-only chain walk unless Range is set to "long".
type RecallOptions struct {
	CommonQueryOptions
	Range     string // "short" (default) or "long"
	ChainWalk bool
}

// SearchOptions configures Search: lexical-biased retrieval. Chain walking
// is opt-in, same as Recall.
type SearchOptions struct {
	CommonQueryOptions
	Range     string
	ChainWalk bool
}

// PredictOptions configures Predict: the assembler halves MaxTokens and
// always cluster-expands regardless of ClusterExpansion, so this struct
// only exposes the knobs that still vary per call.
type PredictOptions struct {
	CommonQueryOptions
	ChainWalk bool
	Range     string
}

// SessionListOptions restricts ListSessions to a time window. Zero values
// mean unrestricted.
type SessionListOptions struct {
	From, To time.Time
	DaysBack int
}

// ReconstructOptions selects exactly one window-resolution mode, mirroring
// internal/reconstruct.Options one field at a time rather than aliasing it
// directly, so the package boundary between the public API and C12's
// internals stays explicit.
type ReconstructOptions struct {
	SessionID        string
	From, To         time.Time
	DaysBack         int
	PreviousSession  bool
	CurrentSessionID string
	Project          string
	MaxTokens        int
	KeepNewest       bool
}

func (o ReconstructOptions) toInternal() reconstruct.Options {
	return reconstruct.Options{
		SessionID:        o.SessionID,
		From:             o.From,
		To:               o.To,
		DaysBack:         o.DaysBack,
		PreviousSession:  o.PreviousSession,
		CurrentSessionID: o.CurrentSessionID,
		Project:          o.Project,
		MaxTokens:        o.MaxTokens,
		KeepNewest:       o.KeepNewest,
	}
}

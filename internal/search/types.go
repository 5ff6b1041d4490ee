// Package search implements the Search Assembler: the orchestrator that
// turns a query into vector and keyword seeds, fuses, expands, reranks and
// optionally chain-walks them, then accumulates the result under a token
// budget.
package search

import (
	"time"

	"github.com/causantic/causantic/internal/clock"
	"github.com/causantic/causantic/internal/model"
)

// Mode selects which of the three query behaviors Query runs.
type Mode string

const (
	ModeRecall  Mode = "recall"
	ModeSearch  Mode = "search"
	ModePredict Mode = "predict"
)

// Range controls which edge directions the chain walker follows once
// chain_walk is enabled: short looks only backward (earlier context), long
// attempts both directions.
type Range string

const (
	RangeShort Range = "short"
	RangeLong  Range = "long"
)

// Default tuning knobs used when an Options field is left at its zero value.
const (
	DefaultVectorSearchLimit = 20
	DefaultMMRLambda         = 0.7
)

// Options is the configuration surface for one Query call.
type Options struct {
	Mode          Mode
	ProjectFilter string
	Range         Range

	MaxTokens         int
	VectorSearchLimit int
	// MMRLambda is in [0, 1]; 1 = pure relevance, 0 = pure novelty. nil
	// means "use DefaultMMRLambda" — a pointer so an explicit 0 (pure
	// novelty) is distinguishable from "not set".
	MMRLambda        *float64
	ClusterExpansion bool
	ChainWalk        bool

	// ReferenceClock and Curve feed the chain walker's edge decay weighting.
	// ReferenceClock is used exactly as given; a zero ReferenceClock is not
	// filled in from the project's chunks, and HopCount against an empty
	// clock sums the edge clock's own entries, so each edge is decayed by
	// its absolute clock values.
	ReferenceClock model.VectorClock
	Curve          clock.Curve
}

// Metrics receives lightweight observability callbacks from Query. It has
// no required backend; wire in whatever collector fits (structured
// logging, a counter, a test spy).
type Metrics interface {
	ObserveQuery(mode Mode, elapsed time.Duration, totalConsidered int, degraded bool)
}

// Package clock implements the vector clock hop-distance metric and the
// decay curve family used to weight graph edges and query results by how
// far they sit from a project's logical "now".
package clock

import (
	"math"

	"github.com/causantic/causantic/internal/model"
)

// Kind identifies a decay curve family. Curves are represented as a tagged
// variant rather than a polymorphic interface: the set of families is fixed
// by the spec, and a closed switch keeps Weight easy to reason about and
// trivial to serialize as configuration.
type Kind string

const (
	KindExponential   Kind = "exponential"
	KindLinear        Kind = "linear"
	KindDelayedLinear Kind = "delayed_linear"
	KindMultiLinear   Kind = "multi_linear"
	KindPowerLaw      Kind = "power_law"
)

// Tier is one independent hold/decay segment of a multi-linear curve.
type Tier struct {
	Weight float64 // w_i
	Hold   float64 // H_i, hops before this tier starts decaying
	Decay  float64 // k_i, per-hop decay rate once past Hold
}

// Curve is a decay curve from the spec's family, parameterized by Kind.
// Only the fields relevant to Kind are read by Weight.
type Curve struct {
	Kind Kind

	W0 float64 // initial weight, used by exponential/linear/delayed_linear/power_law

	R float64 // exponential: decay ratio per hop, in (0, 1)
	K float64 // linear/delayed_linear/power_law: decay rate
	H float64 // delayed_linear: hold region before decay starts
	Alpha float64 // power_law: exponent

	Tiers []Tier // multi_linear

	MinWeight float64 // cutoff below which the edge is effectively absent
}

// DefaultMinWeight is the cutoff used when a Curve leaves MinWeight unset.
const DefaultMinWeight = 0.01

// Weight evaluates the curve at the given non-negative hop distance.
func (c Curve) Weight(hops float64) float64 {
	if hops < 0 {
		hops = 0
	}

	var w float64
	switch c.Kind {
	case KindExponential:
		w = c.W0 * math.Pow(c.R, hops)
	case KindLinear:
		w = math.Max(0, c.W0-c.K*hops)
	case KindDelayedLinear:
		if hops < c.H {
			w = c.W0
		} else {
			w = math.Max(0, c.W0-c.K*(hops-c.H))
		}
	case KindMultiLinear:
		for _, tier := range c.Tiers {
			w += math.Max(0, tier.Weight-tier.Decay*math.Max(0, hops-tier.Hold))
		}
	case KindPowerLaw:
		w = c.W0 / math.Pow(1+c.K*hops, c.Alpha)
	default:
		w = 0
	}

	min := c.MinWeight
	if min == 0 {
		min = DefaultMinWeight
	}
	if w < min {
		return 0
	}
	return w
}

// DecayWeight merges hop-distance computation with curve evaluation: it is
// the weight an edge or chunk carries at query time, given the clock it was
// recorded with and the project's current reference clock.
func DecayWeight(recorded, reference model.VectorClock, c Curve) float64 {
	hops := float64(recorded.HopCount(reference))
	return c.Weight(hops)
}

// ReferenceClock folds a project's chunk vector clocks into the pointwise
// maximum that hop-distance decay treats as "now".
func ReferenceClock(clocks []model.VectorClock) model.VectorClock {
	ref := model.VectorClock{}
	for _, c := range clocks {
		ref = ref.Merge(c)
	}
	return ref
}

// Exponential builds the exponential curve family: w = w0 * r^hops.
func Exponential(w0, r float64) Curve {
	return Curve{Kind: KindExponential, W0: w0, R: r}
}

// Linear builds the linear curve family: w = max(0, w0 - k*hops).
func Linear(w0, k float64) Curve {
	return Curve{Kind: KindLinear, W0: w0, K: k}
}

// DelayedLinear builds a curve that holds at w0 until hop H, then decays
// linearly at rate k.
func DelayedLinear(w0, k, h float64) Curve {
	return Curve{Kind: KindDelayedLinear, W0: w0, K: k, H: h}
}

// MultiLinear builds a tiered curve summing independent hold/decay tiers.
func MultiLinear(tiers ...Tier) Curve {
	return Curve{Kind: KindMultiLinear, Tiers: tiers}
}

// PowerLaw builds the power-law curve family: w = w0 / (1 + k*hops)^alpha.
func PowerLaw(w0, k, alpha float64) Curve {
	return Curve{Kind: KindPowerLaw, W0: w0, K: k, Alpha: alpha}
}

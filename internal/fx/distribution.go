package fx

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// DistributionStrategy maps a group member to a phase offset in [0,1]
// (spec.md §3). DistinctSlots reports how many unique offsets the strategy
// produces for a given group size, used to stretch step-timed effects
// (spec.md §4.4 effectiveDivision).
type DistributionStrategy interface {
	Name() string
	Offset(memberIndex, groupSize int, normalizedPosition float64) float64
	DistinctSlots(groupSize int) int
}

// Linear spreads members evenly across one cycle: member i gets i/n.
type Linear struct{}

func (Linear) Name() string { return "LINEAR" }
func (Linear) Offset(i, n int, _ float64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(i) / float64(n)
}
func (Linear) DistinctSlots(n int) int {
	if n <= 0 {
		return 0
	}
	return n
}

// Unified gives every member the same phase: no spread.
type Unified struct{}

func (Unified) Name() string                                   { return "UNIFIED" }
func (Unified) Offset(_, _ int, _ float64) float64              { return 0 }
func (Unified) DistinctSlots(n int) int {
	if n <= 0 {
		return 0
	}
	return 1
}

// CenterOut radiates phase outward from the group's center.
type CenterOut struct{}

func (CenterOut) Name() string { return "CENTER_OUT" }
func (CenterOut) Offset(_, _ int, pos float64) float64 {
	return math.Abs(pos-0.5) * 2 / 2 // 0 at center, 0.5 at edges
}
func (CenterOut) DistinctSlots(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 1) / 2
}

// EdgesIn is the mirror of CenterOut: edges lead, center follows.
type EdgesIn struct{}

func (EdgesIn) Name() string { return "EDGES_IN" }
func (EdgesIn) Offset(i, n int, pos float64) float64 {
	return 0.5 - CenterOut{}.Offset(i, n, pos)
}
func (EdgesIn) DistinctSlots(n int) int { return CenterOut{}.DistinctSlots(n) }

// Reverse is Linear run backwards: member i gets (n-1-i)/n.
type Reverse struct{}

func (Reverse) Name() string { return "REVERSE" }
func (Reverse) Offset(i, n int, _ float64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n-1-i) / float64(n)
}
func (Reverse) DistinctSlots(n int) int { return Linear{}.DistinctSlots(n) }

// Split alternates odd/even members between two phase banks, 0 and 0.5.
type Split struct{}

func (Split) Name() string { return "SPLIT" }
func (Split) Offset(i, _ int, _ float64) float64 {
	if i%2 == 0 {
		return 0
	}
	return 0.5
}
func (Split) DistinctSlots(n int) int {
	if n <= 0 {
		return 0
	}
	if n == 1 {
		return 1
	}
	return 2
}

// PingPong bounces the normalized position back and forth across the cycle.
type PingPong struct{}

func (PingPong) Name() string { return "PING_PONG" }
func (PingPong) Offset(_, _ int, pos float64) float64 {
	folded := 1 - math.Abs(1-2*pos)
	return folded / 2
}
func (PingPong) DistinctSlots(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 1) / 2
}

// Positional uses normalizedPosition directly as the phase offset.
type Positional struct{}

func (Positional) Name() string { return "POSITIONAL" }
func (Positional) Offset(_, _ int, pos float64) float64 { return pos }
func (Positional) DistinctSlots(n int) int              { return Linear{}.DistinctSlots(n) }

// RandomStrategy assigns each member a stable pseudo-random offset derived
// from a seed and member index, so re-evaluating the same (seed, i, n)
// always yields the same offset.
type RandomStrategy struct {
	Seed int64
}

func (r RandomStrategy) Name() string { return "RANDOM" }
func (r RandomStrategy) Offset(i, _ int, _ float64) float64 {
	src := rand.New(rand.NewSource(r.Seed ^ int64(i)*2654435761))
	return src.Float64()
}
func (r RandomStrategy) DistinctSlots(n int) int {
	if n <= 0 {
		return 0
	}
	return n
}

// Custom wraps a caller-supplied offset function.
type Custom struct {
	FnName string
	Fn     func(memberIndex, groupSize int, normalizedPosition float64) float64
	Slots  func(groupSize int) int
}

func (c Custom) Name() string {
	if c.FnName != "" {
		return c.FnName
	}
	return "CUSTOM"
}
func (c Custom) Offset(i, n int, pos float64) float64 {
	if c.Fn == nil {
		return 0
	}
	return c.Fn(i, n, pos)
}
func (c Custom) DistinctSlots(n int) int {
	if c.Slots == nil {
		return n
	}
	return c.Slots(n)
}

// seedFromID derives a stable int64 seed from an opaque instance id, used
// by Flicker and other effects that need a deterministic pseudo-random
// stream keyed to the instance rather than global rand state.
func seedFromID(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}

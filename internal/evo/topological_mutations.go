package evo

import (
	"fmt"
	"math"
	"math/rand"

	"sigevo/internal/network"
)

// TopologicalMutationPolicy determines how many mutation operations are applied
// to each replicated child.
type TopologicalMutationPolicy interface {
	Name() string
	MutationCount(parent *network.Network, generation int, rng *rand.Rand) (int, error)
}

type ConstTopologicalMutations struct {
	Count int
}

func (ConstTopologicalMutations) Name() string {
	return "const"
}

func (p ConstTopologicalMutations) MutationCount(_ *network.Network, _ int, _ *rand.Rand) (int, error) {
	if p.Count <= 0 {
		return 0, fmt.Errorf("const topological mutation count must be > 0")
	}
	return p.Count, nil
}

// NCountLinearTopologicalMutations scales with the number of internal nodes.
type NCountLinearTopologicalMutations struct {
	Multiplier float64
	MaxCount   int
}

func (NCountLinearTopologicalMutations) Name() string {
	return "ncount_linear"
}

func (p NCountLinearTopologicalMutations) MutationCount(parent *network.Network, _ int, _ *rand.Rand) (int, error) {
	if p.Multiplier <= 0 {
		return 0, fmt.Errorf("linear multiplier must be > 0")
	}
	count := int(math.Round(float64(len(internals(parent))) * p.Multiplier))
	return clampCount(count, p.MaxCount), nil
}

// NCountExponentialTopologicalMutations draws uniformly from
// [1, internal^Power].
type NCountExponentialTopologicalMutations struct {
	Power    float64
	MaxCount int
}

func (NCountExponentialTopologicalMutations) Name() string {
	return "ncount_exponential"
}

func (p NCountExponentialTopologicalMutations) MutationCount(parent *network.Network, _ int, rng *rand.Rand) (int, error) {
	if p.Power <= 0 {
		return 0, fmt.Errorf("exponential power must be > 0")
	}
	if rng == nil {
		return 0, ErrRandomSource
	}
	limit := int(math.Round(math.Pow(float64(max(1, len(internals(parent)))), p.Power)))
	limit = clampCount(limit, p.MaxCount)
	return 1 + rng.Intn(limit), nil
}

func clampCount(count, maxCount int) int {
	if count < 1 {
		count = 1
	}
	if maxCount > 0 && count > maxCount {
		count = maxCount
	}
	return count
}

package evo

import (
	"context"
	"fmt"
	"math/rand"

	"sigevo/internal/network"
)

// Crossover blends two parents decision by decision. Each parent contributes
// at least one decision subgraph, and its lineage weight is the number of
// decisions it contributed.
type Crossover struct{}

func (Crossover) Name() string {
	return "crossover"
}

func (Crossover) Apply(ctx context.Context, rng *rand.Rand, first, second *network.Network, generation int) (*network.Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, ErrRandomSource
	}
	if first == nil || second == nil {
		return nil, fmt.Errorf("two parent networks are required")
	}
	decisions := first.DecisionCount()
	if decisions < 2 {
		return nil, fmt.Errorf("%w: crossover needs at least two decisions, got %d", ErrNoMutationChoice, decisions)
	}

	from := make([]int, decisions)
	for i := range from {
		from[i] = rng.Intn(2)
	}
	// Force a contribution from whichever parent got nothing.
	counts := [2]int{}
	for _, p := range from {
		counts[p]++
	}
	for p := range counts {
		if counts[p] == 0 {
			i := rng.Intn(decisions)
			counts[from[i]]--
			from[i] = p
			counts[p]++
		}
	}

	return network.Blend([]network.BlendParent{
		{Network: first, Weight: float64(counts[0])},
		{Network: second, Weight: float64(counts[1])},
	}, func(decision int) int { return from[decision] }, network.WithGeneration(generation))
}

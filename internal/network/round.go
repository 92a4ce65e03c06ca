package network

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"sigevo/internal/node"
	"sigevo/internal/scape"
)

// Choice is one decision's weight for a round.
type Choice struct {
	Decision int
	Weight   float64
	tie      uint64
}

// Fits reports whether env supplies exactly one value per sensor.
func (n *Network) Fits(env scape.Sensable) error {
	if slots := env.SensorSlots(); slots != len(n.sensors) {
		return fmt.Errorf("%w: environment=%d network=%d", ErrSensorCount, slots, len(n.sensors))
	}
	return nil
}

// RunRound advances one round: every member is reset for the round, sensors
// read env, decision weights are pulled, remaining members settle, then every
// member runs its post-round step. The returned choices are ordered by
// descending weight with NaN last; equal weights fall back to a hash of the
// genome, decision position and round.
func (n *Network) RunRound(env scape.Sensable) ([]Choice, error) {
	if err := n.Fits(env); err != nil {
		return nil, err
	}
	n.round++

	for _, m := range n.members {
		m.Before()
	}
	for i, s := range n.sensors {
		s.Set(env.Observe(i))
	}
	choices := make([]Choice, len(n.decisions))
	for i, d := range n.decisions {
		choices[i] = Choice{Decision: i, Weight: d.Weight(), tie: tieKey(n.hash, i, n.round)}
	}
	for _, m := range n.members {
		if p, ok := m.(node.Provider); ok {
			p.Compute()
		}
	}
	for _, m := range n.members {
		m.After()
	}

	slices.SortFunc(choices, compareChoices)
	return choices, nil
}

func compareChoices(a, b Choice) int {
	aNaN, bNaN := math.IsNaN(a.Weight), math.IsNaN(b.Weight)
	switch {
	case aNaN && !bNaN:
		return 1
	case bNaN && !aNaN:
		return -1
	case !aNaN && a.Weight != b.Weight:
		return cmp.Compare(b.Weight, a.Weight)
	}
	if a.tie != b.tie {
		return cmp.Compare(a.tie, b.tie)
	}
	return cmp.Compare(a.Decision, b.Decision)
}

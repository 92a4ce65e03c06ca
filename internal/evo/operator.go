// Package evo breeds populations of networks: mutation operators, crossover,
// parent selection and the generational population monitor.
package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"sigevo/internal/lineage"
	"sigevo/internal/network"
	"sigevo/internal/node"
)

var (
	ErrNoMutationChoice = errors.New("no mutation choice available")
	ErrRandomSource     = errors.New("random source is required")
)

// Operator derives a child from parent. parent is only read; the child is a
// fresh network descending from parent alone and stamped with generation.
type Operator interface {
	Name() string
	Apply(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int) (*network.Network, error)
}

type WeightedMutation struct {
	Operator Operator
	Weight   float64
}

// edit is the shape of a structural mutation: given a private working copy of
// the parent, return the substitutions to splice into the child.
type edit func(rng *rand.Rand, work *network.Network) (map[node.Node]node.Node, error)

// applyEdit clones parent into a private working copy, lets fn plan
// substitutions against it, and clones the copy again with them spliced in.
// Fresh nodes may be wired to the copy's nodes without touching parent.
func applyEdit(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int, fn edit) (*network.Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, ErrRandomSource
	}
	if parent == nil {
		return nil, fmt.Errorf("parent network is required")
	}

	work, err := parent.Clone()
	if err != nil {
		return nil, err
	}
	subs, err := fn(rng, work)
	if err != nil {
		return nil, err
	}
	return work.CloneWithMutation(
		network.WithSubstitutions(subs),
		network.WithParents(lineage.Parent{Lineage: parent.Lineage(), Weight: 1}),
		network.WithGeneration(generation),
	)
}

// internals lists the members of n that are neither sensors nor decisions,
// in canonical order.
func internals(n *network.Network) []node.Node {
	members := n.Nodes()
	return members[n.SensorCount()+n.DecisionCount():]
}

// providers lists every member that can feed a consumer.
func providers(n *network.Network) []node.Provider {
	var out []node.Provider
	for _, m := range n.Nodes() {
		if p, ok := m.(node.Provider); ok {
			out = append(out, p)
		}
	}
	return out
}

// wiredConsumers lists every member consumer with at least one input.
func wiredConsumers(n *network.Network) []node.Consumer {
	var out []node.Consumer
	for _, m := range n.Nodes() {
		if c, ok := m.(node.Consumer); ok && len(c.Inputs()) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// replacement returns an unwired stand-in for c: a fresh decision for a
// decision, a structural copy otherwise.
func replacement(c node.Consumer) node.Consumer {
	if _, ok := c.(*node.Decision); ok {
		return node.NewDecision()
	}
	return c.Clone().(node.Consumer)
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.Intn(len(items))]
}

package network

import (
	"errors"
	"fmt"

	"sigevo/internal/lineage"
	"sigevo/internal/node"
)

// BlendParent is one contributor to a crossover child.
type BlendParent struct {
	Network *Network
	Weight  float64
}

// Chooser picks, for each decision position, the index of the parent whose
// subgraph feeds it.
type Chooser func(decision int) int

// Blend breeds a child from parents sharing one layout. Decision i of the child
// is fed by a copy of the subgraph behind decision i of parent choose(i); nodes
// shared within one parent stay shared in the child, and every parent's
// sensors map onto the child's sensors by position. The child's lineage is a
// weighted blend of the parents' lineages unless WithParents overrides it, and
// its generation defaults to one past the oldest parent.
func Blend(parents []BlendParent, choose Chooser, opts ...Option) (*Network, error) {
	if len(parents) == 0 {
		return nil, fmt.Errorf("%w: blend needs at least one parent", ErrInvalidLayout)
	}
	if choose == nil {
		return nil, errors.New("blend chooser is required")
	}
	for i, p := range parents {
		if p.Network == nil {
			return nil, fmt.Errorf("%w: parent %d is nil", ErrInvalidLayout, i)
		}
	}
	first := parents[0].Network
	for i, p := range parents {
		if p.Network.SensorCount() != first.SensorCount() || p.Network.DecisionCount() != first.DecisionCount() {
			return nil, &StructureError{
				Genome:   p.Network.hash,
				Role:     RoleInternal,
				Position: -1,
				Err: fmt.Errorf("%w: parent %d has %d sensors and %d decisions, want %d and %d",
					ErrLayoutMismatch, i, p.Network.SensorCount(), p.Network.DecisionCount(), first.SensorCount(), first.DecisionCount()),
			}
		}
		if err := p.Network.Audit(); err != nil {
			return nil, err
		}
	}

	o := collectOptions(opts)
	dst := newShell(first.SensorCount(), first.DecisionCount())
	cloners := make([]*cloner, len(parents))
	var created []*cloner
	for d := range dst.decisions {
		pi := choose(d)
		if pi < 0 || pi >= len(parents) {
			return nil, fmt.Errorf("%w: decision %d chose parent %d of %d", ErrLayoutMismatch, d, pi, len(parents))
		}
		c := cloners[pi]
		if c == nil {
			c = newCloner(parents[pi].Network, dst, nil, false)
			for i, s := range c.src.sensors {
				c.mapped[s] = dst.sensors[i]
			}
			cloners[pi] = c
			created = append(created, c)
		}
		old := c.src.decisions[d]
		c.mapped[old] = dst.decisions[d]
		c.push(old)
		if err := c.drain(); err != nil {
			return nil, err
		}
	}

	var candidates []node.Node
	for _, c := range created {
		candidates = append(candidates, c.created...)
	}
	if err := dst.refresh(candidates); err != nil {
		return nil, err
	}
	for _, c := range created {
		if err := c.verify(); err != nil {
			return nil, err
		}
	}

	if !o.hasParents {
		o.parents = make([]lineage.Parent, len(parents))
		for i, p := range parents {
			o.parents[i] = lineage.Parent{Lineage: p.Network.lineage, Weight: p.Weight}
		}
	}
	if !o.hasGeneration {
		for _, p := range parents {
			o.generation = max(o.generation, p.Network.generation+1)
		}
	}
	if err := dst.seal(o); err != nil {
		return nil, err
	}
	return dst, nil
}

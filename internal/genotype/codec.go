// Package genotype converts networks to and from their persisted records and
// constructs seed genomes.
package genotype

import (
	"errors"
	"fmt"

	"sigevo/internal/model"
	"sigevo/internal/network"
	"sigevo/internal/node"
	"sigevo/internal/storage"
)

var (
	ErrInvalidGenome = errors.New("invalid genome record")
	ErrGenomeID      = errors.New("genome id does not match content hash")
)

// Encode records n node by node in canonical order. Inputs reference other
// records by index, so shared providers are written once and cycles are
// preserved.
func Encode(n *network.Network) model.Genome {
	members := n.Nodes()
	index := make(map[node.Node]int, len(members))
	for i, m := range members {
		index[m] = i
	}

	records := make([]model.NodeRecord, len(members))
	for i, m := range members {
		spec := m.Spec()
		rec := model.NodeRecord{
			Kind:      string(spec.Kind),
			Transform: spec.Transform,
			Params:    append([]float64(nil), spec.Params...),
		}
		if c, ok := m.(node.Consumer); ok {
			for _, in := range c.Inputs() {
				rec.Inputs = append(rec.Inputs, index[in])
			}
		}
		records[i] = rec
	}

	sensors := make([]int, n.SensorCount())
	for i := range sensors {
		sensors[i] = i
	}
	decisions := make([]int, n.DecisionCount())
	for i := range decisions {
		decisions[i] = n.SensorCount() + i
	}

	return model.Genome{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:         n.Hash().String(),
		Generation: n.Generation(),
		Nodes:      records,
		Sensors:    sensors,
		Decisions:  decisions,
	}
}

// Decode rebuilds a network from its record. The record's generation applies
// unless opts override it. A non-empty ID must match the rebuilt content hash.
func Decode(g model.Genome, opts ...network.Option) (*network.Network, error) {
	if err := validate(g); err != nil {
		return nil, err
	}

	wire := func(n *network.Network) error {
		nodes := make([]node.Node, len(g.Nodes))
		for i, s := range n.Sensors() {
			nodes[g.Sensors[i]] = s
		}
		for i, d := range n.Decisions() {
			nodes[g.Decisions[i]] = d
		}
		for i, rec := range g.Nodes {
			if nodes[i] != nil {
				continue
			}
			built, err := node.FromSpec(specOf(rec))
			if err != nil {
				return fmt.Errorf("%w: node %d: %v", ErrInvalidGenome, i, err)
			}
			nodes[i] = built
		}

		for i, rec := range g.Nodes {
			if len(rec.Inputs) == 0 {
				continue
			}
			c, ok := nodes[i].(node.Consumer)
			if !ok {
				return fmt.Errorf("%w: node %d (%s) cannot take inputs", ErrInvalidGenome, i, rec.Kind)
			}
			inputs := make([]node.Provider, len(rec.Inputs))
			for j, idx := range rec.Inputs {
				p, ok := nodes[idx].(node.Provider)
				if !ok {
					return fmt.Errorf("%w: node %d input %d references %s node %d", ErrInvalidGenome, i, j, g.Nodes[idx].Kind, idx)
				}
				inputs[j] = p
			}
			if err := c.SetInputs(inputs...); err != nil {
				return fmt.Errorf("%w: node %d: %v", ErrInvalidGenome, i, err)
			}
		}
		return nil
	}

	all := append([]network.Option{network.WithGeneration(g.Generation)}, opts...)
	n, err := network.Build(len(g.Sensors), len(g.Decisions), wire, all...)
	if err != nil {
		return nil, err
	}
	if n.Len() != len(g.Nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes unreachable from decisions", ErrInvalidGenome, len(g.Nodes)-n.Len(), len(g.Nodes))
	}
	if g.ID != "" && g.ID != n.Hash().String() {
		return nil, fmt.Errorf("%w: id=%s content=%s", ErrGenomeID, g.ID, n.Hash())
	}
	return n, nil
}

func validate(g model.Genome) error {
	if len(g.Decisions) == 0 {
		return fmt.Errorf("%w: no decisions", ErrInvalidGenome)
	}
	roles := make(map[int]node.Kind, len(g.Sensors)+len(g.Decisions))
	claim := func(idx int, kind node.Kind) error {
		if idx < 0 || idx >= len(g.Nodes) {
			return fmt.Errorf("%w: %s index %d out of range", ErrInvalidGenome, kind, idx)
		}
		if node.Kind(g.Nodes[idx].Kind) != kind {
			return fmt.Errorf("%w: %s index %d holds a %s node", ErrInvalidGenome, kind, idx, g.Nodes[idx].Kind)
		}
		if _, dup := roles[idx]; dup {
			return fmt.Errorf("%w: node %d listed twice in layout", ErrInvalidGenome, idx)
		}
		roles[idx] = kind
		return nil
	}
	for _, idx := range g.Sensors {
		if err := claim(idx, node.KindSensor); err != nil {
			return err
		}
	}
	for _, idx := range g.Decisions {
		if err := claim(idx, node.KindDecision); err != nil {
			return err
		}
	}

	for i, rec := range g.Nodes {
		kind := node.Kind(rec.Kind)
		if (kind == node.KindSensor || kind == node.KindDecision) && roles[i] != kind {
			return fmt.Errorf("%w: %s node %d is not part of the layout", ErrInvalidGenome, kind, i)
		}
		for _, idx := range rec.Inputs {
			if idx < 0 || idx >= len(g.Nodes) {
				return fmt.Errorf("%w: node %d input index %d out of range", ErrInvalidGenome, i, idx)
			}
		}
	}
	return nil
}

func specOf(rec model.NodeRecord) node.Spec {
	return node.Spec{
		Kind:      node.Kind(rec.Kind),
		Transform: rec.Transform,
		Params:    append([]float64(nil), rec.Params...),
	}
}

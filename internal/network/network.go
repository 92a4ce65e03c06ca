// Package network owns evolvable signal graphs: the node closure reachable from
// a genome's decisions, its cycle-safe cloner, crossover blending and the
// per-round evaluation protocol.
//
// A Network is confined to one goroutine while it runs rounds. Cloning only
// reads the source, so several goroutines may clone the same idle network at
// once; the clones share no mutable node state.
package network

import (
	"fmt"

	"sigevo/internal/lineage"
	"sigevo/internal/node"
)

type Network struct {
	sensors    []*node.Sensor
	decisions  []*node.Decision
	members    []node.Node
	memberSet  map[node.Node]struct{}
	round      int
	hash       lineage.Hash
	lineage    lineage.Lineage
	generation int
}

type options struct {
	parents       []lineage.Parent
	hasParents    bool
	generation    int
	hasGeneration bool
	substitutions map[node.Node]node.Node
	lineage       lineage.Lineage
}

type Option func(*options)

// WithParents sets the lineage parents of the network being born. Without it a
// built network is a root and a clone descends from its source alone.
func WithParents(parents ...lineage.Parent) Option {
	return func(o *options) {
		o.parents = append([]lineage.Parent(nil), parents...)
		o.hasParents = true
	}
}

// WithGeneration records the breeding generation that produced the network.
func WithGeneration(generation int) Option {
	return func(o *options) {
		o.generation = generation
		o.hasGeneration = true
	}
}

// WithLineage restores a previously derived lineage, for example one rebuilt
// from storage. Its hash must equal the content hash of the network. It takes
// precedence over WithParents.
func WithLineage(l lineage.Lineage) Option {
	return func(o *options) {
		o.lineage = l
	}
}

// WithSubstitutions splices replacement nodes into a clone. Keys are members of
// the source network. A replacement is either another member of the source
// (consumers of the key are rewired to it), or a fresh node. A fresh node that
// already has inputs brings its own wiring, and any fresh nodes among those
// inputs are adopted as well; a fresh consumer without inputs inherits the
// wiring of the node it replaces. Sensors and decisions may only be replaced by
// fresh, unowned nodes of the same kind.
func WithSubstitutions(subs map[node.Node]node.Node) Option {
	return func(o *options) {
		o.substitutions = subs
	}
}

func collectOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Wiring connects a freshly created network's decisions to providers built by
// the caller.
type Wiring func(n *Network) error

// Build creates a network with the given layout, lets wire connect its nodes,
// then derives the closure, content hash and lineage.
func Build(sensorCount, decisionCount int, wire Wiring, opts ...Option) (*Network, error) {
	if sensorCount < 0 || decisionCount < 1 {
		return nil, fmt.Errorf("%w: sensors=%d decisions=%d", ErrInvalidLayout, sensorCount, decisionCount)
	}
	o := collectOptions(opts)
	n := newShell(sensorCount, decisionCount)
	if wire != nil {
		if err := wire(n); err != nil {
			return nil, err
		}
	}
	if err := n.refresh(nil); err != nil {
		return nil, err
	}
	if err := n.seal(o); err != nil {
		return nil, err
	}
	return n, nil
}

func newShell(sensorCount, decisionCount int) *Network {
	n := &Network{
		sensors:   make([]*node.Sensor, sensorCount),
		decisions: make([]*node.Decision, decisionCount),
	}
	for i := range n.sensors {
		n.sensors[i] = node.NewSensor()
		n.sensors[i].Bind(n)
	}
	for i := range n.decisions {
		n.decisions[i] = node.NewDecision()
		n.decisions[i].Bind(n)
	}
	return n
}

// seal attaches the content hash and lineage. It runs once, at birth.
func (n *Network) seal(o options) error {
	n.hash = contentHash(n)
	n.generation = o.generation
	if o.lineage != nil {
		if o.lineage.Hash() != n.hash {
			return fmt.Errorf("%w: lineage %s, content %s", ErrHashMismatch, o.lineage.Hash(), n.hash)
		}
		n.lineage = o.lineage
		return nil
	}
	l, err := lineage.Derive(n.hash, o.parents...)
	if err != nil {
		return fmt.Errorf("derive lineage for %s: %w", n.hash, err)
	}
	n.lineage = l
	return nil
}

func (n *Network) SensorCount() int   { return len(n.sensors) }
func (n *Network) DecisionCount() int { return len(n.decisions) }
func (n *Network) Round() int         { return n.round }
func (n *Network) Hash() lineage.Hash { return n.hash }
func (n *Network) Generation() int    { return n.generation }

func (n *Network) Lineage() lineage.Lineage {
	return n.lineage
}

func (n *Network) Sensors() []*node.Sensor {
	return append([]*node.Sensor(nil), n.sensors...)
}

func (n *Network) Decisions() []*node.Decision {
	return append([]*node.Decision(nil), n.decisions...)
}

// Nodes returns the closure in canonical order: sensors, decisions, then every
// other member in breadth-first discovery order from the decisions' inputs.
func (n *Network) Nodes() []node.Node {
	return append([]node.Node(nil), n.members...)
}

func (n *Network) Len() int {
	return len(n.members)
}

func (n *Network) Contains(x node.Node) bool {
	_, ok := n.memberSet[x]
	return ok
}

// closure walks backward from the decisions with a work list and returns the
// reachable set in canonical order. Owned nodes must point back at n.
func (n *Network) closure() ([]node.Node, map[node.Node]struct{}, error) {
	order := make([]node.Node, 0, len(n.sensors)+len(n.decisions)+len(n.members))
	seen := make(map[node.Node]struct{}, cap(order))
	for i, s := range n.sensors {
		if s.Owner() != n {
			return nil, nil, structureError(n.hash, RoleSensor, i, s, ErrForeignNode)
		}
		seen[s] = struct{}{}
		order = append(order, s)
	}
	for i, d := range n.decisions {
		if d.Owner() != n {
			return nil, nil, structureError(n.hash, RoleDecision, i, d, ErrForeignNode)
		}
		seen[d] = struct{}{}
		order = append(order, d)
	}

	queue := make([]node.Provider, 0, len(n.decisions))
	for _, d := range n.decisions {
		if in := d.Input(); in != nil {
			queue = append(queue, in)
		}
	}
	for head := 0; head < len(queue); head++ {
		p := queue[head]
		if _, ok := seen[p]; ok {
			continue
		}
		if s, ok := p.(*node.Sensor); ok {
			return nil, nil, structureError(n.hash, RoleSensor, -1, s, ErrForeignNode)
		}
		seen[p] = struct{}{}
		order = append(order, p)
		if c, ok := p.(node.Consumer); ok {
			for _, in := range c.Inputs() {
				if _, ok := seen[in]; !ok {
					queue = append(queue, in)
				}
			}
		}
	}
	return order, seen, nil
}

// Audit recomputes the closure from scratch and checks it against the
// maintained membership.
func (n *Network) Audit() error {
	order, seen, err := n.closure()
	if err != nil {
		return err
	}
	for _, m := range order {
		if _, ok := n.memberSet[m]; !ok {
			return structureError(n.hash, RoleInternal, -1, m, fmt.Errorf("%w: reachable but not a member", ErrUnaccountedNode))
		}
	}
	for _, m := range n.members {
		if _, ok := seen[m]; !ok {
			return structureError(n.hash, RoleInternal, -1, m, fmt.Errorf("%w: member no longer reachable", ErrUnaccountedNode))
		}
	}
	return nil
}

// refresh recomputes membership and releases every consumer that dropped out
// of it, along with any stray consumer still attached to a member. candidates
// lists nodes that may have become unreachable.
func (n *Network) refresh(candidates []node.Node) error {
	order, seen, err := n.closure()
	if err != nil {
		return err
	}

	var stray []node.Consumer
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		if con, ok := c.(node.Consumer); ok {
			stray = append(stray, con)
		}
	}
	for _, m := range order {
		p, ok := m.(node.Provider)
		if !ok {
			continue
		}
		for _, con := range p.Consumers() {
			if _, ok := seen[con]; ok {
				continue
			}
			if d, ok := con.(*node.Decision); ok && d.Owner() != nil && d.Owner() != n {
				return structureError(n.hash, RoleDecision, -1, d, ErrForeignNode)
			}
			stray = append(stray, con)
		}
	}
	for _, con := range stray {
		con.Release()
	}

	n.members = order
	n.memberSet = seen
	return nil
}

// ResetForNewEpisode clears every node's history and restarts the round count.
// Rounds count within an episode, so a replayed episode sees the same
// tie-break keys.
func (n *Network) ResetForNewEpisode() {
	for _, m := range n.members {
		m.Reset()
	}
	n.round = 0
}

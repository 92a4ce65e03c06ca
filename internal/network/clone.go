package network

import (
	"errors"
	"fmt"

	"sigevo/internal/lineage"
	"sigevo/internal/node"
)

type visit uint8

const (
	unseen visit = iota
	inProgress
	finished
)

// cloner copies one source network's nodes into a target. Work is an explicit
// stack; a node is queued at most once (unseen -> inProgress) and processed at
// most once (inProgress -> finished), so cycles and deep chains never recurse.
type cloner struct {
	src    *Network
	dst    *Network
	subs   map[node.Node]node.Node
	follow bool

	mapped  map[node.Node]node.Node
	state   map[node.Node]visit
	adopted map[node.Node]struct{}
	inherit map[node.Node]node.Node
	created []node.Node
	work    []node.Node
}

func newCloner(src, dst *Network, subs map[node.Node]node.Node, followConsumers bool) *cloner {
	return &cloner{
		src:     src,
		dst:     dst,
		subs:    subs,
		follow:  followConsumers,
		mapped:  make(map[node.Node]node.Node, len(src.members)),
		state:   make(map[node.Node]visit, len(src.members)),
		adopted: make(map[node.Node]struct{}),
		inherit: make(map[node.Node]node.Node),
	}
}

// Clone is CloneWithMutation without substitutions.
func (n *Network) Clone(opts ...Option) (*Network, error) {
	return n.CloneWithMutation(opts...)
}

// CloneWithMutation returns an independent network isomorphic to n's closure,
// with any substitutions spliced in. Unless overridden by options, the clone
// descends from n alone and keeps n's generation. n is only read, apart from
// back-references held by fresh replacement nodes, which are moved onto the
// clone.
func (n *Network) CloneWithMutation(opts ...Option) (*Network, error) {
	o := collectOptions(opts)
	if err := n.Audit(); err != nil {
		return nil, err
	}
	if err := n.checkSubstitutions(o.substitutions); err != nil {
		return nil, err
	}

	dst := newShell(len(n.sensors), len(n.decisions))
	c := newCloner(n, dst, o.substitutions, true)
	c.seedLayout()
	if err := c.drain(); err != nil {
		return nil, err
	}
	for _, m := range n.members {
		if c.state[m] != unseen {
			continue
		}
		c.push(m)
		if err := c.drain(); err != nil {
			return nil, err
		}
	}

	if err := dst.refresh(c.created); err != nil {
		return nil, c.attribute(err)
	}
	if err := c.verify(); err != nil {
		return nil, err
	}
	if !o.hasParents {
		o.parents = []lineage.Parent{{Lineage: n.lineage, Weight: 1}}
	}
	if !o.hasGeneration {
		o.generation = n.generation
	}
	if err := dst.seal(o); err != nil {
		return nil, err
	}
	return dst, nil
}

func (n *Network) checkSubstitutions(subs map[node.Node]node.Node) error {
	for old, rep := range subs {
		role, pos := n.roleOf(old)
		if !n.Contains(old) {
			return structureError(n.hash, role, pos, old, fmt.Errorf("%w: substituted node is not a member", ErrUnaccountedNode))
		}
		if rep == nil {
			return structureError(n.hash, role, pos, old, fmt.Errorf("%w: nil replacement", ErrLayoutMismatch))
		}
		mismatch := func(reason string) error {
			return structureError(n.hash, role, pos, old, fmt.Errorf("%w: %s replacement %s", ErrLayoutMismatch, rep.Kind(), reason))
		}
		switch old.(type) {
		case *node.Sensor:
			if s, ok := rep.(*node.Sensor); !ok || s.Owner() != nil {
				return mismatch("must be an unowned sensor")
			}
			continue
		case *node.Decision:
			if d, ok := rep.(*node.Decision); !ok || d.Owner() != nil {
				return mismatch("must be an unowned decision")
			}
			continue
		}

		if _, ok := rep.(node.Provider); !ok {
			return mismatch("is not a provider")
		}
		if n.Contains(rep) {
			if _, chained := subs[rep]; chained {
				return mismatch("is itself substituted")
			}
			continue
		}
		switch rep.(type) {
		case *node.Sensor, *node.Decision:
			return mismatch("cannot stand in for an internal node")
		}
	}
	return nil
}

func (n *Network) roleOf(x node.Node) (Role, int) {
	switch x.(type) {
	case *node.Sensor:
		for i, s := range n.sensors {
			if s == x {
				return RoleSensor, i
			}
		}
		return RoleSensor, -1
	case *node.Decision:
		for i, d := range n.decisions {
			if d == x {
				return RoleDecision, i
			}
		}
		return RoleDecision, -1
	}
	return RoleInternal, -1
}

// seedLayout maps sensors and decisions positionally and queues them.
func (c *cloner) seedLayout() {
	for i, s := range c.src.sensors {
		target := c.dst.sensors[i]
		if rep, ok := c.subs[s]; ok {
			target = rep.(*node.Sensor)
			target.Bind(c.dst)
			c.dst.sensors[i] = target
			c.adopted[target] = struct{}{}
		}
		c.mapped[s] = target
		c.push(s)
	}
	for i, d := range c.src.decisions {
		target := c.dst.decisions[i]
		if rep, ok := c.subs[d]; ok {
			target = rep.(*node.Decision)
			target.Bind(c.dst)
			c.dst.decisions[i] = target
			c.adopt(target, d)
		}
		c.mapped[d] = target
		c.push(d)
	}
}

func (c *cloner) push(x node.Node) {
	if c.state[x] != unseen {
		return
	}
	c.state[x] = inProgress
	c.work = append(c.work, x)
}

func (c *cloner) drain() error {
	for len(c.work) > 0 {
		x := c.work[len(c.work)-1]
		c.work = c.work[:len(c.work)-1]
		if err := c.process(x); err != nil {
			role, pos := c.src.roleOf(x)
			return structureError(c.src.hash, role, pos, x, err)
		}
		c.state[x] = finished
	}
	return nil
}

// adopt moves a fresh node into the target as itself. replaced is the source
// node it stands in for, or nil for a fresh input of another fresh node.
func (c *cloner) adopt(fresh, replaced node.Node) {
	if _, ok := c.adopted[fresh]; ok {
		return
	}
	c.adopted[fresh] = struct{}{}
	c.mapped[fresh] = fresh
	if replaced != nil {
		c.inherit[fresh] = replaced
	}
	c.created = append(c.created, fresh)
	c.push(fresh)
}

// counterpart returns the target node standing for x, creating it on first
// use. Non-members are only legal as inputs of adopted fresh nodes.
func (c *cloner) counterpart(x node.Node, fromFresh bool) (node.Node, error) {
	if m, ok := c.mapped[x]; ok {
		return m, nil
	}
	if rep, ok := c.subs[x]; ok {
		if c.src.Contains(rep) {
			m, err := c.counterpart(rep, false)
			if err != nil {
				return nil, err
			}
			c.mapped[x] = m
			c.push(rep)
			return m, nil
		}
		c.mapped[x] = rep
		c.adopt(rep, x)
		return rep, nil
	}
	if c.src.Contains(x) {
		clone := x.Clone()
		c.mapped[x] = clone
		c.created = append(c.created, clone)
		return clone, nil
	}
	if !fromFresh {
		return nil, fmt.Errorf("%w: input %s is outside the source closure", ErrUnaccountedNode, x.Kind())
	}
	switch x.(type) {
	case *node.Sensor, *node.Decision:
		return nil, fmt.Errorf("%w: fresh %s wired into a replacement", ErrForeignNode, x.Kind())
	}
	c.adopt(x, nil)
	return x, nil
}

func (c *cloner) process(x node.Node) error {
	_, isAdopted := c.adopted[x]
	target, err := c.counterpart(x, isAdopted)
	if err != nil {
		return err
	}

	if p, ok := x.(node.Provider); ok && c.follow && !isAdopted {
		for _, con := range p.Consumers() {
			if c.src.Contains(con) {
				c.push(con)
			}
		}
	}

	if rep, ok := c.subs[x]; ok && rep != x {
		// The replacement carries the wiring.
		return nil
	}
	into, ok := target.(node.Consumer)
	if !ok {
		return nil
	}

	var inputs []node.Provider
	fromFresh := false
	if con, ok := x.(node.Consumer); ok {
		inputs = con.Inputs()
		fromFresh = isAdopted
	}
	if isAdopted && len(inputs) == 0 {
		if old, ok := c.inherit[x].(node.Consumer); ok {
			inputs = old.Inputs()
			fromFresh = false
		}
	}

	wired := make([]node.Provider, len(inputs))
	for i, in := range inputs {
		m, err := c.counterpart(in, fromFresh)
		if err != nil {
			return err
		}
		p, ok := m.(node.Provider)
		if !ok {
			return fmt.Errorf("%w: input %d maps to non-provider %s", ErrLayoutMismatch, i, m.Kind())
		}
		wired[i] = p
		if c.src.Contains(in) {
			c.push(in)
		}
	}
	if err := into.SetInputs(wired...); err != nil {
		return fmt.Errorf("%w: %w", ErrLayoutMismatch, err)
	}
	return nil
}

// attribute reports target-side structure errors against the source genome,
// since the target has no hash yet.
func (c *cloner) attribute(err error) error {
	var se *StructureError
	if errors.As(err, &se) {
		se.Genome = c.src.hash
	}
	return err
}

// verify checks that the target holds no source node.
func (c *cloner) verify() error {
	for _, m := range c.dst.members {
		if c.src.Contains(m) {
			role, pos := c.src.roleOf(m)
			return structureError(c.src.hash, role, pos, m, fmt.Errorf("%w: source node leaked into clone", ErrUnaccountedNode))
		}
	}
	return nil
}

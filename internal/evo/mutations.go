package evo

import (
	"context"
	"errors"
	"math/rand"
	"slices"

	"sigevo/internal/network"
	"sigevo/internal/node"
)

// relay is a node that both consumes and provides, so it can be spliced into
// an existing edge.
type relay interface {
	node.Provider
	node.Consumer
}

// spliceInput inserts a fresh relay on a random input edge. The consumer of
// that edge is replaced by a fresh copy wired through the relay.
func spliceInput(rng *rand.Rand, work *network.Network, newRelay func(*rand.Rand) (relay, error)) (map[node.Node]node.Node, error) {
	consumers := wiredConsumers(work)
	if len(consumers) == 0 {
		return nil, ErrNoMutationChoice
	}
	c := pick(rng, consumers)
	inputs := c.Inputs()
	k := rng.Intn(len(inputs))

	r, err := newRelay(rng)
	if err != nil {
		return nil, err
	}
	if err := r.SetInputs(inputs[k]); err != nil {
		return nil, err
	}
	rewired := slices.Clone(inputs)
	rewired[k] = r

	rep := replacement(c)
	if err := rep.SetInputs(rewired...); err != nil {
		return nil, err
	}
	return map[node.Node]node.Node{c: rep}, nil
}

// AddFunction splices a random single-input function node into an edge.
type AddFunction struct{}

func (AddFunction) Name() string {
	return "add_function"
}

func (AddFunction) Apply(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int) (*network.Network, error) {
	return applyEdit(ctx, rng, parent, generation, func(rng *rand.Rand, work *network.Network) (map[node.Node]node.Node, error) {
		return spliceInput(rng, work, func(rng *rand.Rand) (relay, error) {
			return node.NewFunction(pick(rng, node.TransformsAccepting(1)))
		})
	})
}

// AddDelay splices a one-round delay into an edge.
type AddDelay struct {
	// Initial is the delay's output before it has seen any input.
	Initial float64
}

func (AddDelay) Name() string {
	return "add_delay"
}

func (o AddDelay) Apply(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int) (*network.Network, error) {
	return applyEdit(ctx, rng, parent, generation, func(rng *rand.Rand, work *network.Network) (map[node.Node]node.Node, error) {
		return spliceInput(rng, work, func(*rand.Rand) (relay, error) {
			return node.NewDelay(o.Initial), nil
		})
	})
}

// RewireInput points a random input edge at a different provider. The new
// source may lie downstream, which closes a cycle.
type RewireInput struct{}

func (RewireInput) Name() string {
	return "rewire_input"
}

func (RewireInput) Apply(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int) (*network.Network, error) {
	return applyEdit(ctx, rng, parent, generation, func(rng *rand.Rand, work *network.Network) (map[node.Node]node.Node, error) {
		consumers := wiredConsumers(work)
		if len(consumers) == 0 {
			return nil, ErrNoMutationChoice
		}
		c := pick(rng, consumers)
		inputs := c.Inputs()
		k := rng.Intn(len(inputs))

		var candidates []node.Provider
		for _, p := range providers(work) {
			if p != inputs[k] {
				candidates = append(candidates, p)
			}
		}
		if len(candidates) == 0 {
			return nil, ErrNoMutationChoice
		}
		rewired := slices.Clone(inputs)
		rewired[k] = pick(rng, candidates)

		rep := replacement(c)
		if err := rep.SetInputs(rewired...); err != nil {
			return nil, err
		}
		return map[node.Node]node.Node{c: rep}, nil
	})
}

// AddInput appends a random provider to a variadic function.
type AddInput struct{}

func (AddInput) Name() string {
	return "add_input"
}

func (AddInput) Apply(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int) (*network.Network, error) {
	return applyEdit(ctx, rng, parent, generation, func(rng *rand.Rand, work *network.Network) (map[node.Node]node.Node, error) {
		var open []*node.Function
		for _, m := range internals(work) {
			f, ok := m.(*node.Function)
			if !ok {
				continue
			}
			if _, hi := f.Arity(); len(f.Inputs()) < hi {
				open = append(open, f)
			}
		}
		if len(open) == 0 {
			return nil, ErrNoMutationChoice
		}
		f := pick(rng, open)
		rep := f.Clone().(*node.Function)
		if err := rep.SetInputs(append(f.Inputs(), pick(rng, providers(work)))...); err != nil {
			return nil, err
		}
		return map[node.Node]node.Node{f: rep}, nil
	})
}

// SwapTransform replaces a function's transform with another one accepting the
// same number of inputs. The wiring is kept.
type SwapTransform struct{}

func (SwapTransform) Name() string {
	return "swap_transform"
}

func (SwapTransform) Apply(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int) (*network.Network, error) {
	return applyEdit(ctx, rng, parent, generation, func(rng *rand.Rand, work *network.Network) (map[node.Node]node.Node, error) {
		type option struct {
			fn    *node.Function
			names []string
		}
		var options []option
		for _, m := range internals(work) {
			f, ok := m.(*node.Function)
			if !ok {
				continue
			}
			names := slices.DeleteFunc(node.TransformsAccepting(len(f.Inputs())), func(name string) bool {
				return name == f.Transform()
			})
			if len(names) > 0 {
				options = append(options, option{fn: f, names: names})
			}
		}
		if len(options) == 0 {
			return nil, ErrNoMutationChoice
		}
		chosen := pick(rng, options)
		rep, err := node.NewFunction(pick(rng, chosen.names))
		if err != nil {
			return nil, err
		}
		return map[node.Node]node.Node{chosen.fn: rep}, nil
	})
}

// PerturbParam shifts the parameter of a constant, wave or delay node by a
// uniform delta in [-MaxDelta, MaxDelta].
type PerturbParam struct {
	MaxDelta float64
}

func (PerturbParam) Name() string {
	return "perturb_param"
}

func (o PerturbParam) Apply(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int) (*network.Network, error) {
	if o.MaxDelta <= 0 {
		return nil, errors.New("max delta must be > 0")
	}
	return applyEdit(ctx, rng, parent, generation, func(rng *rand.Rand, work *network.Network) (map[node.Node]node.Node, error) {
		var params []node.Node
		for _, m := range internals(work) {
			switch m.(type) {
			case *node.Constant, *node.Wave, *node.Delay:
				params = append(params, m)
			}
		}
		if len(params) == 0 {
			return nil, ErrNoMutationChoice
		}
		target := pick(rng, params)
		delta := (rng.Float64()*2 - 1) * o.MaxDelta

		var rep node.Node
		switch x := target.(type) {
		case *node.Constant:
			rep = node.NewConstant(x.Value + delta)
		case *node.Wave:
			rep = node.NewWave(x.Frequency + delta)
		case *node.Delay:
			rep = node.NewDelay(x.Initial + delta)
		}
		return map[node.Node]node.Node{target: rep}, nil
	})
}

// BypassNode removes an internal relay by wiring its consumers straight to
// one of its inputs.
type BypassNode struct{}

func (BypassNode) Name() string {
	return "bypass_node"
}

func (BypassNode) Apply(ctx context.Context, rng *rand.Rand, parent *network.Network, generation int) (*network.Network, error) {
	return applyEdit(ctx, rng, parent, generation, func(rng *rand.Rand, work *network.Network) (map[node.Node]node.Node, error) {
		type option struct {
			relay node.Node
			to    []node.Provider
		}
		var options []option
		for _, m := range internals(work) {
			c, ok := m.(node.Consumer)
			if !ok {
				continue
			}
			var to []node.Provider
			for _, in := range c.Inputs() {
				if node.Node(in) != m {
					to = append(to, in)
				}
			}
			if len(to) > 0 {
				options = append(options, option{relay: m, to: to})
			}
		}
		if len(options) == 0 {
			return nil, ErrNoMutationChoice
		}
		chosen := pick(rng, options)
		return map[node.Node]node.Node{chosen.relay: pick(rng, chosen.to)}, nil
	})
}

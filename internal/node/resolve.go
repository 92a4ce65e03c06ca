package node

// deferred consumers read their inputs after the round (in After) instead of
// pulling them while the round resolves. They break cycles without recursion.
type deferred interface {
	deferInputs()
}

// Resolve computes p for the current round with an explicit stack. Inputs are
// resolved before their consumers; an input met while it is still computing is
// a cycle and contributes its previous round output.
func Resolve(p Provider) float64 {
	if core := p.providerCore(); core.state == stateFinal {
		return core.output
	}

	type frame struct {
		p        Provider
		expanded bool
	}
	stack := []frame{{p: p}}
	var values []float64
	for len(stack) > 0 {
		top := len(stack) - 1
		current := stack[top]
		core := current.p.providerCore()
		if core.state == stateFinal {
			stack = stack[:top]
			continue
		}

		inputs := pulledInputs(current.p)
		if !current.expanded {
			if core.state == stateComputing {
				stack = stack[:top]
				continue
			}
			core.state = stateComputing
			stack[top].expanded = true
			for i := len(inputs) - 1; i >= 0; i-- {
				if inputs[i].providerCore().state == stateStale {
					stack = append(stack, frame{p: inputs[i]})
				}
			}
			continue
		}

		values = values[:0]
		for _, in := range inputs {
			values = append(values, in.providerCore().value())
		}
		core.settle(current.p.Evaluate(values))
		stack = stack[:top]
	}
	return p.providerCore().output
}

func pulledInputs(p Provider) []Provider {
	if _, ok := p.(deferred); ok {
		return nil
	}
	c, ok := p.(Consumer)
	if !ok {
		return nil
	}
	return c.consumerCore().inputs
}

// invalidate marks start and every provider downstream of it stale. Nodes that
// are already stale stop the walk.
func invalidate(start *ProviderCore) {
	stack := []*ProviderCore{start}
	for len(stack) > 0 {
		core := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if core.state == stateStale {
			continue
		}
		if core.state == stateFinal {
			core.previous = core.output
		}
		core.state = stateStale
		for _, con := range core.consumers {
			if p, ok := con.(Provider); ok {
				stack = append(stack, p.providerCore())
			}
		}
	}
}

package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"sigevo/internal/network"
)

var (
	ErrOperatorExists       = errors.New("operator already registered")
	ErrOperatorNotFound     = errors.New("operator not found")
	ErrOperatorIncompatible = errors.New("operator incompatible with network")
)

// CompatibilityFn reports why an operator cannot apply to a network.
type CompatibilityFn func(n *network.Network) error

type OperatorSpec struct {
	Name       string
	Operator   Operator
	Compatible CompatibilityFn
}

type registeredOperator struct {
	operator   Operator
	compatible CompatibilityFn
}

var operatorRegistry = struct {
	mu sync.RWMutex
	m  map[string]registeredOperator
}{
	m: make(map[string]registeredOperator),
}

func init() {
	registerBuiltins()
}

func registerBuiltins() {
	for _, spec := range []OperatorSpec{
		{Name: AddFunction{}.Name(), Operator: AddFunction{}, Compatible: hasWiredConsumer},
		{Name: AddDelay{}.Name(), Operator: AddDelay{}, Compatible: hasWiredConsumer},
		{Name: RewireInput{}.Name(), Operator: RewireInput{}, Compatible: hasWiredConsumer},
		{Name: AddInput{}.Name(), Operator: AddInput{}},
		{Name: SwapTransform{}.Name(), Operator: SwapTransform{}},
		{Name: PerturbParam{}.Name(), Operator: PerturbParam{MaxDelta: 1}},
		{Name: BypassNode{}.Name(), Operator: BypassNode{}, Compatible: hasInternals},
	} {
		if err := RegisterOperatorWithSpec(spec); err != nil {
			panic(err)
		}
	}
}

// RegisterOperator registers an operator without a compatibility check.
func RegisterOperator(name string, op Operator) error {
	return RegisterOperatorWithSpec(OperatorSpec{Name: name, Operator: op})
}

// RegisterOperatorWithSpec registers an operator with compatibility metadata.
func RegisterOperatorWithSpec(spec OperatorSpec) error {
	if spec.Name == "" {
		return errors.New("operator name is required")
	}
	if spec.Operator == nil {
		return errors.New("operator is required")
	}

	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()

	if _, exists := operatorRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, spec.Name)
	}

	operatorRegistry.m[spec.Name] = registeredOperator{
		operator:   spec.Operator,
		compatible: spec.Compatible,
	}
	return nil
}

// ResolveOperator returns a registered operator. When n is non-nil the
// operator's compatibility check must also pass.
func ResolveOperator(name string, n *network.Network) (Operator, error) {
	operatorRegistry.mu.RLock()
	entry, ok := operatorRegistry.m[name]
	operatorRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	if n != nil && entry.compatible != nil {
		if err := entry.compatible(n); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrOperatorIncompatible, name, err)
		}
	}
	return entry.operator, nil
}

func ListOperators() []string {
	operatorRegistry.mu.RLock()
	defer operatorRegistry.mu.RUnlock()

	names := make([]string, 0, len(operatorRegistry.m))
	for name := range operatorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MutationPolicy resolves weights keyed by operator name into a policy.
func MutationPolicy(weights map[string]float64) ([]WeightedMutation, error) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	policy := make([]WeightedMutation, 0, len(names))
	for _, name := range names {
		op, err := ResolveOperator(name, nil)
		if err != nil {
			return nil, err
		}
		if weights[name] < 0 {
			return nil, fmt.Errorf("mutation weight for %s must be >= 0", name)
		}
		if weights[name] == 0 {
			continue
		}
		policy = append(policy, WeightedMutation{Operator: op, Weight: weights[name]})
	}
	if len(policy) == 0 {
		return nil, errors.New("mutation policy has no positive weights")
	}
	return policy, nil
}

func hasWiredConsumer(n *network.Network) error {
	if len(wiredConsumers(n)) == 0 {
		return errors.New("requires at least one wired consumer")
	}
	return nil
}

func hasInternals(n *network.Network) error {
	if len(internals(n)) == 0 {
		return errors.New("requires at least one internal node")
	}
	return nil
}

func resetOperatorRegistryForTests() {
	operatorRegistry.mu.Lock()
	operatorRegistry.m = make(map[string]registeredOperator)
	operatorRegistry.mu.Unlock()
	registerBuiltins()
}

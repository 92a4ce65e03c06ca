package evo

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"sigevo/internal/network"
)

type noopOperator struct{}

func (noopOperator) Name() string { return "noop" }

func (noopOperator) Apply(_ context.Context, _ *rand.Rand, parent *network.Network, _ int) (*network.Network, error) {
	return parent, nil
}

func TestRegisterAndResolveOperator(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("noop", noopOperator{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	op, err := ResolveOperator("noop", newChain(t))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if op.Name() != "noop" {
		t.Fatalf("unexpected operator: %s", op.Name())
	}
}

func TestBuiltinOperatorsRegistered(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	for _, op := range builtinOperators() {
		resolved, err := ResolveOperator(op.Name(), nil)
		if err != nil {
			t.Fatalf("resolve %s: %v", op.Name(), err)
		}
		if resolved.Name() != op.Name() {
			t.Fatalf("resolved %s for %s", resolved.Name(), op.Name())
		}
	}
}

func TestRegisterOperatorDuplicate(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("add_function", noopOperator{}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got: %v", err)
	}
}

func TestRegisterOperatorValidation(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("", noopOperator{}); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterOperator("nil", nil); err == nil {
		t.Fatal("expected nil operator error")
	}
}

func TestResolveOperatorNotFound(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	_, err := ResolveOperator("missing", nil)
	if !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got: %v", err)
	}
}

func TestResolveOperatorCompatibility(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	direct, err := network.Build(1, 1, func(n *network.Network) error {
		return n.Decisions()[0].SetInputs(n.Sensors()[0])
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if _, err := ResolveOperator(BypassNode{}.Name(), direct); !errors.Is(err, ErrOperatorIncompatible) {
		t.Fatalf("expected ErrOperatorIncompatible, got: %v", err)
	}
	if _, err := ResolveOperator(BypassNode{}.Name(), newChain(t)); err != nil {
		t.Fatalf("expected bypass to fit the chain, got: %v", err)
	}
}

func TestListOperatorsSorted(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("a-op", noopOperator{}); err != nil {
		t.Fatalf("register a-op: %v", err)
	}

	names := ListOperators()
	if !slices.IsSorted(names) {
		t.Fatalf("expected sorted names: %+v", names)
	}
	if !slices.Contains(names, "a-op") || !slices.Contains(names, "add_function") {
		t.Fatalf("unexpected operator list: %+v", names)
	}
	if len(names) != len(builtinOperators())+1 {
		t.Fatalf("expected %d operators, got %d", len(builtinOperators())+1, len(names))
	}
}

func TestMutationPolicyFromWeights(t *testing.T) {
	policy, err := MutationPolicy(map[string]float64{
		"perturb_param":  1,
		"add_function":   2,
		"swap_transform": 0,
	})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if len(policy) != 2 {
		t.Fatalf("expected 2 weighted mutations, got %d", len(policy))
	}
	if policy[0].Operator.Name() != "add_function" || policy[0].Weight != 2 {
		t.Fatalf("unexpected first entry: %s %f", policy[0].Operator.Name(), policy[0].Weight)
	}
	if policy[1].Operator.Name() != "perturb_param" || policy[1].Weight != 1 {
		t.Fatalf("unexpected second entry: %s %f", policy[1].Operator.Name(), policy[1].Weight)
	}

	if _, err := MutationPolicy(map[string]float64{"missing": 1}); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
	if _, err := MutationPolicy(map[string]float64{"add_function": -1}); err == nil {
		t.Fatal("expected negative weight error")
	}
	if _, err := MutationPolicy(map[string]float64{"add_function": 0}); err == nil {
		t.Fatal("expected error without positive weights")
	}
}

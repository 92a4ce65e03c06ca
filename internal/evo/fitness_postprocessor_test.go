package evo

import (
	"context"
	"math/rand"
	"testing"
)

func TestNoopFitnessPostprocessorCopies(t *testing.T) {
	in := []ScoredGenome{{Network: newChain(t), Fitness: 1}}
	out := NoopFitnessPostprocessor{}.Process(in)
	out[0].Fitness = 2
	if in[0].Fitness != 1 {
		t.Fatal("expected postprocessor to return a copy")
	}
}

func TestSizeProportionalPenalizesLargerNetworks(t *testing.T) {
	small := newChain(t)
	large, err := AddFunction{}.Apply(context.Background(), rand.New(rand.NewSource(1)), small, 1)
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	direct := newConstantOnly(t)

	out := SizeProportionalPostprocessor{}.Process([]ScoredGenome{
		{Network: small, Fitness: 1},
		{Network: large, Fitness: 1},
		{Network: direct, Fitness: 1},
	})
	if out[1].Fitness >= out[0].Fitness {
		t.Fatalf("expected larger network to score lower: small=%f large=%f", out[0].Fitness, out[1].Fitness)
	}
	if out[2].Fitness != 1 {
		t.Fatalf("expected a single internal node to leave fitness unchanged, got %f", out[2].Fitness)
	}
}

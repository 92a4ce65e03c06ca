package tuning

import (
	"context"
	"math/rand"
	"testing"

	"sigevo/internal/network"
	"sigevo/internal/node"
)

func newConstantNet(t *testing.T, value float64) *network.Network {
	t.Helper()
	n, err := network.Build(0, 1, func(n *network.Network) error {
		return n.Decisions()[0].SetInputs(node.NewConstant(value))
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return n
}

func constantOf(n *network.Network) float64 {
	return n.Decisions()[0].Input().(*node.Constant).Value
}

// peakAtThree rewards constants close to 3.
func peakAtThree(_ context.Context, n *network.Network) (float64, error) {
	delta := constantOf(n) - 3
	return 1 - delta*delta, nil
}

func TestExoselfImprovesFitness(t *testing.T) {
	original := newConstantNet(t, 1)
	tuner := Exoself{Attempts: 60, Steps: 2, StepSize: 0.5}

	tuned, fitness, report, err := tuner.Tune(context.Background(), rand.New(rand.NewSource(1)), original, 4, peakAtThree)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if !report.Improved() || fitness <= report.BaselineFitness {
		t.Fatalf("expected improvement: report=%+v fitness=%f", report, fitness)
	}
	if report.BaselineFitness != -3 {
		t.Fatalf("baseline fitness = %f, want -3", report.BaselineFitness)
	}
	if report.AttemptsExecuted != 60 || report.CandidateEvaluations != 61 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.AcceptedCandidates+report.RejectedCandidates != report.AttemptsExecuted {
		t.Fatalf("accepted + rejected != executed: %+v", report)
	}
	if constantOf(original) != 1 {
		t.Fatalf("original mutated: %f", constantOf(original))
	}
	if tuned.Generation() != 4 {
		t.Fatalf("tuned generation = %d, want 4", tuned.Generation())
	}
	parents := tuned.Lineage().Parents()
	if len(parents) != 1 || parents[0].Lineage.Hash() != original.Hash() {
		t.Fatalf("tuned network should descend from the original alone")
	}
	if got, _ := peakAtThree(context.Background(), tuned); got != fitness {
		t.Fatalf("reported fitness %f does not match network %f", fitness, got)
	}
	if err := tuned.Audit(); err != nil {
		t.Fatalf("audit: %v", err)
	}
}

func TestExoselfDeterministic(t *testing.T) {
	tuner := Exoself{Attempts: 20, Steps: 3, StepSize: 0.3, AnnealingFactor: 0.5}
	run := func() float64 {
		tuned, _, _, err := tuner.Tune(context.Background(), rand.New(rand.NewSource(9)), newConstantNet(t, 0), 1, peakAtThree)
		if err != nil {
			t.Fatalf("tune: %v", err)
		}
		return constantOf(tuned)
	}
	if a, b := run(), run(); a != b {
		t.Fatalf("same seed diverged: %f vs %f", a, b)
	}
}

func TestExoselfStopsAtGoal(t *testing.T) {
	tuner := Exoself{Attempts: 50, Steps: 1, StepSize: 0.1, GoalFitness: 1}
	n := newConstantNet(t, 3)
	tuned, fitness, report, err := tuner.Tune(context.Background(), rand.New(rand.NewSource(1)), n, 1, peakAtThree)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if tuned != n || fitness != 1 || report.AttemptsExecuted != 0 {
		t.Fatalf("expected no attempts once the goal is met: report=%+v", report)
	}
}

func TestExoselfWithoutParams(t *testing.T) {
	n, err := network.Build(1, 1, func(n *network.Network) error {
		return n.Decisions()[0].SetInputs(n.Sensors()[0])
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	calls := 0
	fitness := func(context.Context, *network.Network) (float64, error) {
		calls++
		return 0.5, nil
	}
	tuned, got, report, err := Exoself{Attempts: 10, Steps: 1, StepSize: 1}.Tune(context.Background(), rand.New(rand.NewSource(1)), n, 1, fitness)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if tuned != n || got != 0.5 || calls != 1 || report.Improved() {
		t.Fatalf("expected untouched network: calls=%d report=%+v", calls, report)
	}
}

func TestExoselfValidation(t *testing.T) {
	n := newConstantNet(t, 1)
	rng := rand.New(rand.NewSource(1))
	ctx := context.Background()
	cases := map[string]Exoself{
		"steps":       {Attempts: 1, StepSize: 1},
		"step size":   {Attempts: 1, Steps: 1},
		"attempts":    {Attempts: -1, Steps: 1, StepSize: 1},
		"range":       {Attempts: 1, Steps: 1, StepSize: 1, PerturbationRange: -1},
		"annealing":   {Attempts: 1, Steps: 1, StepSize: 1, AnnealingFactor: -1},
		"improvement": {Attempts: 1, Steps: 1, StepSize: 1, MinImprovement: -1},
	}
	for name, tuner := range cases {
		if _, _, _, err := tuner.Tune(ctx, rng, n, 1, peakAtThree); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	valid := Exoself{Attempts: 1, Steps: 1, StepSize: 1}
	if _, _, _, err := valid.Tune(ctx, nil, n, 1, peakAtThree); err == nil {
		t.Fatal("expected random source error")
	}
	if _, _, _, err := valid.Tune(ctx, rng, nil, 1, peakAtThree); err == nil {
		t.Fatal("expected network error")
	}
	if _, _, _, err := valid.Tune(ctx, rng, n, 1, nil); err == nil {
		t.Fatal("expected fitness error")
	}
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, _, err := valid.Tune(canceled, rng, n, 1, peakAtThree); err == nil {
		t.Fatal("expected context error")
	}
}

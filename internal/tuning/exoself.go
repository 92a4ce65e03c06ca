// Package tuning refines the parameters of a single network by hill climbing,
// leaving its structure untouched.
package tuning

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"sigevo/internal/lineage"
	"sigevo/internal/network"
	"sigevo/internal/node"
)

var ErrNoParams = errors.New("network has no tunable parameters")

type FitnessFn func(ctx context.Context, n *network.Network) (float64, error)

type Report struct {
	AttemptsPlanned      int     `json:"attempts_planned"`
	AttemptsExecuted     int     `json:"attempts_executed"`
	CandidateEvaluations int     `json:"candidate_evaluations"`
	AcceptedCandidates   int     `json:"accepted_candidates"`
	RejectedCandidates   int     `json:"rejected_candidates"`
	BaselineFitness      float64 `json:"baseline_fitness"`
	BestFitness          float64 `json:"best_fitness"`
}

// Improved reports whether tuning found a better network than the baseline.
func (r Report) Improved() bool {
	return r.AcceptedCandidates > 0
}

// Exoself perturbs the constant, wave and delay parameters of a network and
// keeps a candidate when it beats the best fitness so far by more than
// MinImprovement. Step s of a candidate moves one parameter by up to
// StepSize * PerturbationRange * AnnealingFactor^s.
type Exoself struct {
	Attempts          int
	Steps             int
	StepSize          float64
	PerturbationRange float64
	AnnealingFactor   float64
	MinImprovement    float64
	GoalFitness       float64
}

func (Exoself) Name() string {
	return "exoself_hillclimb"
}

func (e Exoself) validate() error {
	switch {
	case e.Attempts < 0:
		return errors.New("attempts must be >= 0")
	case e.Steps <= 0:
		return errors.New("steps must be > 0")
	case e.StepSize <= 0:
		return errors.New("step size must be > 0")
	case e.PerturbationRange < 0:
		return errors.New("perturbation range must be >= 0")
	case e.AnnealingFactor < 0:
		return errors.New("annealing factor must be >= 0")
	case e.MinImprovement < 0:
		return errors.New("min improvement must be >= 0")
	}
	return nil
}

// Tune climbs from n and returns the best network found with its fitness. An
// improved network descends from n alone and carries generation; otherwise n
// itself is returned. n is only read.
func (e Exoself) Tune(ctx context.Context, rng *rand.Rand, n *network.Network, generation int, fitness FitnessFn) (*network.Network, float64, Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, Report{}, err
	}
	if rng == nil {
		return nil, 0, Report{}, errors.New("random source is required")
	}
	if n == nil {
		return nil, 0, Report{}, errors.New("network is required")
	}
	if fitness == nil {
		return nil, 0, Report{}, errors.New("fitness function is required")
	}
	if err := e.validate(); err != nil {
		return nil, 0, Report{}, err
	}
	perturbationRange := e.PerturbationRange
	if perturbationRange == 0 {
		perturbationRange = 1
	}
	annealing := e.AnnealingFactor
	if annealing == 0 {
		annealing = 1
	}

	report := Report{AttemptsPlanned: e.Attempts}
	bestFitness, err := fitness(ctx, n)
	if err != nil {
		return nil, 0, Report{}, err
	}
	report.CandidateEvaluations++
	report.BaselineFitness = bestFitness
	report.BestFitness = bestFitness
	if countParams(n) == 0 {
		return n, bestFitness, report, nil
	}

	best := n
	for a := 0; a < e.Attempts; a++ {
		if e.GoalFitness > 0 && bestFitness >= e.GoalFitness {
			break
		}
		candidate, err := e.perturb(ctx, rng, best, perturbationRange, annealing)
		if err != nil {
			return nil, 0, Report{}, err
		}
		candidateFitness, err := fitness(ctx, candidate)
		if err != nil {
			return nil, 0, Report{}, err
		}
		report.AttemptsExecuted++
		report.CandidateEvaluations++
		if candidateFitness > bestFitness+e.MinImprovement {
			best, bestFitness = candidate, candidateFitness
			report.AcceptedCandidates++
		} else {
			report.RejectedCandidates++
		}
	}
	report.BestFitness = bestFitness
	if best == n {
		return n, bestFitness, report, nil
	}

	// Intermediate candidates never reach an index, so the result is
	// reparented onto n directly.
	tuned, err := best.Clone(
		network.WithParents(lineage.Parent{Lineage: n.Lineage(), Weight: 1}),
		network.WithGeneration(generation),
	)
	if err != nil {
		return nil, 0, Report{}, err
	}
	return tuned, bestFitness, report, nil
}

func (e Exoself) perturb(ctx context.Context, rng *rand.Rand, base *network.Network, perturbationRange, annealing float64) (*network.Network, error) {
	work, err := base.Clone()
	if err != nil {
		return nil, err
	}
	params := paramNodes(work)
	if len(params) == 0 {
		return nil, ErrNoParams
	}

	values := make(map[node.Node]float64, e.Steps)
	for s := 0; s < e.Steps; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target := params[rng.Intn(len(params))]
		current, ok := values[target]
		if !ok {
			current = param(target)
		}
		spread := e.StepSize * perturbationRange * math.Pow(annealing, float64(s))
		values[target] = current + (rng.Float64()*2-1)*spread
	}

	subs := make(map[node.Node]node.Node, len(values))
	for target, v := range values {
		switch target.(type) {
		case *node.Constant:
			subs[target] = node.NewConstant(v)
		case *node.Wave:
			subs[target] = node.NewWave(v)
		case *node.Delay:
			subs[target] = node.NewDelay(v)
		}
	}
	return work.CloneWithMutation(
		network.WithSubstitutions(subs),
		network.WithParents(lineage.Parent{Lineage: base.Lineage(), Weight: 1}),
	)
}

func paramNodes(n *network.Network) []node.Node {
	members := n.Nodes()
	var out []node.Node
	for _, m := range members[n.SensorCount()+n.DecisionCount():] {
		switch m.(type) {
		case *node.Constant, *node.Wave, *node.Delay:
			out = append(out, m)
		}
	}
	return out
}

func countParams(n *network.Network) int {
	return len(paramNodes(n))
}

func param(m node.Node) float64 {
	switch x := m.(type) {
	case *node.Constant:
		return x.Value
	case *node.Wave:
		return x.Frequency
	case *node.Delay:
		return x.Initial
	}
	return 0
}

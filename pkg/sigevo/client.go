// Package sigevo is the programmatic entry point for breeding signal networks
// and inspecting the runs a store holds.
package sigevo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sigevo/internal/config"
	"sigevo/internal/evo"
	"sigevo/internal/genotype"
	"sigevo/internal/lineage"
	"sigevo/internal/model"
	"sigevo/internal/scape"
	"sigevo/internal/stats"
	"sigevo/internal/storage"
	"sigevo/internal/tuning"
)

var ErrNotFound = errors.New("not found")

type Options struct {
	// Store is used as is when set; otherwise one is opened from StoreKind
	// and DBPath.
	Store     storage.Store
	StoreKind string
	DBPath    string

	Logger *zap.Logger
	// Registerer receives the evolution metrics. Nil keeps them private.
	Registerer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	logger  *zap.Logger
	metrics *evo.Metrics
}

type RunSummary struct {
	RunID       string
	Scape       string
	Generations int
	BestFitness float64
	BestGenome  string
	Discarded   int
	LineageSize int
	Elapsed     time.Duration
}

type KinshipReport struct {
	A, B string
	// AB is how much of A's ancestry B shares; BA the reverse.
	AB, BA float64
}

type AuditReport struct {
	Genome    string
	Nodes     int
	Sensors   int
	Decisions int
}

// New opens and initializes the store.
func New(ctx context.Context, opts Options) (*Client, error) {
	store := opts.Store
	if store == nil {
		var err error
		if store, err = storage.NewStore(opts.StoreKind, opts.DBPath); err != nil {
			return nil, err
		}
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		store:   store,
		logger:  logger,
		metrics: evo.NewMetrics(opts.Registerer),
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Run seeds a population sized for the configured scape, evolves it and
// persists the run under cfg.RunID.
func (c *Client) Run(ctx context.Context, cfg *config.Config) (RunSummary, error) {
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	env, err := scape.New(cfg.Scape)
	if err != nil {
		return RunSummary{}, err
	}
	policy, err := evo.MutationPolicy(cfg.MutationWeights)
	if err != nil {
		return RunSummary{}, err
	}
	initial, err := genotype.SeedPopulation(rand.New(rand.NewSource(cfg.Seed)), cfg.Population, env.SensorSlots(), env.Actions())
	if err != nil {
		return RunSummary{}, fmt.Errorf("seed population: %w", err)
	}

	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Scape:                env,
		MutationPolicy:       policy,
		Selector:             selectorFromConfig(cfg),
		MateSelector:         evo.KinshipTournament{TournamentSize: cfg.TournamentSize, Bias: cfg.KinshipBias},
		Postprocessor:        postprocessorFromConfig(cfg),
		TopologicalMutations: topologicalPolicyFromConfig(cfg),
		PopulationSize:       cfg.Population,
		EliteCount:           cfg.EliteCount,
		Generations:          cfg.Generations,
		Workers:              cfg.Workers,
		Seed:                 cfg.Seed,
		CrossoverRate:        cfg.CrossoverRate,
		Tuner:                tunerFromConfig(cfg),
		Logger:               c.logger,
		Metrics:              c.metrics,
		Store:                c.store,
		RunID:                cfg.RunID,
	})
	if err != nil {
		return RunSummary{}, err
	}

	started := time.Now()
	result, err := monitor.Run(ctx, initial)
	if err != nil {
		return RunSummary{}, err
	}
	best, _ := result.Best()
	summary := RunSummary{
		RunID:       cfg.RunID,
		Scape:       env.Name(),
		Generations: len(result.BestByGeneration),
		BestFitness: best.Fitness,
		BestGenome:  best.Network.Hash().String(),
		Discarded:   result.Discarded,
		LineageSize: result.Lineage.Len(),
		Elapsed:     time.Since(started),
	}
	c.logger.Info("run complete", zap.String("run_id", summary.RunID), zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (c *Client) Lineage(ctx context.Context, runID string) ([]model.LineageRecord, error) {
	records, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lineage for run %s", ErrNotFound, runID)
	}
	return records, nil
}

// Kinship rebuilds the run's lineage and scores two of its genomes against
// each other.
func (c *Client) Kinship(ctx context.Context, runID, a, b string) (KinshipReport, error) {
	records, err := c.Lineage(ctx, runID)
	if err != nil {
		return KinshipReport{}, err
	}
	index, err := lineage.Rebuild(records)
	if err != nil {
		return KinshipReport{}, err
	}
	var found [2]lineage.Lineage
	for i, raw := range []string{a, b} {
		h, err := lineage.ParseHash(raw)
		if err != nil {
			return KinshipReport{}, err
		}
		entry, ok := index.Get(h)
		if !ok {
			return KinshipReport{}, fmt.Errorf("%w: genome %s in run %s", ErrNotFound, raw, runID)
		}
		found[i] = entry.Lineage
	}
	return KinshipReport{
		A:  found[0].Hash().String(),
		B:  found[1].Hash().String(),
		AB: found[0].KinshipAgainst(found[1]),
		BA: found[1].KinshipAgainst(found[0]),
	}, nil
}

func (c *Client) FitnessHistory(ctx context.Context, runID string) ([]float64, error) {
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fitness history for run %s", ErrNotFound, runID)
	}
	return history, nil
}

func (c *Client) Diagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, error) {
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: diagnostics for run %s", ErrNotFound, runID)
	}
	return diagnostics, nil
}

func (c *Client) TopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, error) {
	top, ok, err := c.store.GetTopGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: top genomes for run %s", ErrNotFound, runID)
	}
	return top, nil
}

func (c *Client) Genome(ctx context.Context, id string) (model.Genome, error) {
	genome, ok, err := c.store.GetGenome(ctx, id)
	if err != nil {
		return model.Genome{}, err
	}
	if !ok {
		return model.Genome{}, fmt.Errorf("%w: genome %s", ErrNotFound, id)
	}
	return genome, nil
}

// Audit decodes a stored genome and checks its structure.
func (c *Client) Audit(ctx context.Context, id string) (AuditReport, error) {
	genome, err := c.Genome(ctx, id)
	if err != nil {
		return AuditReport{}, err
	}
	n, err := genotype.Decode(genome)
	if err != nil {
		return AuditReport{}, err
	}
	if err := n.Audit(); err != nil {
		return AuditReport{}, err
	}
	return AuditReport{
		Genome:    n.Hash().String(),
		Nodes:     n.Len(),
		Sensors:   n.SensorCount(),
		Decisions: n.DecisionCount(),
	}, nil
}

// Export writes the run's artifacts under dir and records it in dir's run
// index.
func (c *Client) Export(ctx context.Context, runID, dir string) (string, error) {
	artifacts, err := stats.Collect(ctx, c.store, runID)
	if err != nil {
		if errors.Is(err, stats.ErrRunNotFound) {
			return "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return "", err
	}
	runDir, err := stats.WriteRunArtifacts(dir, artifacts)
	if err != nil {
		return "", err
	}
	if err := stats.AppendRunIndex(dir, stats.IndexEntry(artifacts, time.Now())); err != nil {
		return "", err
	}
	c.logger.Debug("exported run", zap.String("run_id", runID), zap.String("dir", runDir))
	return runDir, nil
}

func selectorFromConfig(cfg *config.Config) evo.Selector {
	if cfg.Selection == "elite" {
		return evo.EliteSelector{}
	}
	return evo.TournamentSelector{TournamentSize: cfg.TournamentSize}
}

func postprocessorFromConfig(cfg *config.Config) evo.FitnessPostprocessor {
	if cfg.Postprocessor == "size_proportional" {
		return evo.SizeProportionalPostprocessor{}
	}
	return evo.NoopFitnessPostprocessor{}
}

func topologicalPolicyFromConfig(cfg *config.Config) evo.TopologicalMutationPolicy {
	switch cfg.TopologicalPolicy {
	case "ncount_linear":
		return evo.NCountLinearTopologicalMutations{Multiplier: cfg.TopologicalParam, MaxCount: cfg.TopologicalMutations}
	case "ncount_exponential":
		return evo.NCountExponentialTopologicalMutations{Power: cfg.TopologicalParam, MaxCount: cfg.TopologicalMutations}
	}
	return evo.ConstTopologicalMutations{Count: cfg.TopologicalMutations}
}

func tunerFromConfig(cfg *config.Config) evo.ChampionTuner {
	if !cfg.Tuning.Enabled {
		return nil
	}
	t := cfg.Tuning
	return tuning.Exoself{
		Attempts:          t.Attempts,
		Steps:             t.Steps,
		StepSize:          t.StepSize,
		PerturbationRange: t.PerturbationRange,
		AnnealingFactor:   t.AnnealingFactor,
		MinImprovement:    t.MinImprovement,
	}
}

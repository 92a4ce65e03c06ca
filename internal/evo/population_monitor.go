package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sigevo/internal/agent"
	"sigevo/internal/genotype"
	"sigevo/internal/lineage"
	"sigevo/internal/model"
	"sigevo/internal/network"
	"sigevo/internal/scape"
	"sigevo/internal/storage"
	"sigevo/internal/tuning"
)

var ErrPopulationExtinct = errors.New("every genome in the generation was discarded")

const (
	defaultBreedAttempts = 8
	defaultTopGenomes    = 10

	opSeed  = "seed"
	opCarry = "carry"
	opTune  = "tune"
)

// ChampionTuner refines the parameters of a generation's best genome before
// the next generation is bred from it.
type ChampionTuner interface {
	Name() string
	Tune(ctx context.Context, rng *rand.Rand, n *network.Network, generation int, fitness tuning.FitnessFn) (*network.Network, float64, tuning.Report, error)
}

type RunResult struct {
	RunID                 string
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalPopulation       []ScoredGenome
	Lineage               *lineage.Index
	Discarded             int
}

// Best is the top ranked genome of the final generation.
func (r RunResult) Best() (ScoredGenome, bool) {
	if len(r.FinalPopulation) == 0 {
		return ScoredGenome{}, false
	}
	return r.FinalPopulation[0], true
}

type MonitorConfig struct {
	Scape                scape.Scape
	MutationPolicy       []WeightedMutation
	Selector             Selector
	MateSelector         KinshipTournament
	Postprocessor        FitnessPostprocessor
	TopologicalMutations TopologicalMutationPolicy
	PopulationSize       int
	EliteCount           int
	Generations          int
	Workers              int
	Seed                 int64
	// CrossoverRate is the probability that a child starts as a crossover of
	// two parents before its mutations are applied.
	CrossoverRate   float64
	BreedAttempts   int
	MaxKinshipPairs int
	TopGenomes      int
	// Tuner, when set, hill-climbs the champion of every generation and
	// replaces it with the tuned network if that ranks higher.
	Tuner ChampionTuner

	Logger  *zap.Logger
	Metrics *Metrics
	// Store, when set, receives the run's genomes, lineage and history once
	// the last generation has been ranked.
	Store storage.Store
	RunID string
}

type PopulationMonitor struct {
	cfg     MonitorConfig
	rng     *rand.Rand
	logger  *zap.Logger
	metrics *Metrics
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Scape == nil {
		return nil, fmt.Errorf("scape is required")
	}
	if len(cfg.MutationPolicy) == 0 {
		return nil, fmt.Errorf("mutation policy is required")
	}
	positivePolicyWeight := false
	for i, item := range cfg.MutationPolicy {
		if item.Operator == nil {
			return nil, fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return nil, fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
		if item.Weight > 0 {
			positivePolicyWeight = true
		}
	}
	if !positivePolicyWeight {
		return nil, fmt.Errorf("mutation policy requires at least one positive weight")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount <= 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [1, population size]")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 {
		return nil, fmt.Errorf("crossover rate must be in [0, 1]")
	}
	if cfg.MateSelector.Bias < 0 || cfg.MateSelector.Bias > 1 {
		return nil, fmt.Errorf("kinship bias must be in [0, 1]")
	}
	if cfg.Store != nil && cfg.RunID == "" {
		return nil, fmt.Errorf("run id is required when a store is configured")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BreedAttempts <= 0 {
		cfg.BreedAttempts = defaultBreedAttempts
	}
	if cfg.TopGenomes <= 0 {
		cfg.TopGenomes = defaultTopGenomes
	}
	if cfg.Selector == nil {
		cfg.Selector = EliteSelector{}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = NoopFitnessPostprocessor{}
	}
	if cfg.TopologicalMutations == nil {
		cfg.TopologicalMutations = ConstTopologicalMutations{Count: 1}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	return &PopulationMonitor{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		logger:  cfg.Logger.With(zap.String("scape", cfg.Scape.Name()), zap.String("run_id", cfg.RunID)),
		metrics: cfg.Metrics,
	}, nil
}

// Run evolves initial for the configured number of generations. Genomes that
// fail with a structural error are discarded and counted; any other error
// aborts the run.
func (m *PopulationMonitor) Run(ctx context.Context, initial []*network.Network) (RunResult, error) {
	if len(initial) != m.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}
	seen := make(map[*network.Network]struct{}, len(initial))
	for i, n := range initial {
		if n == nil {
			return RunResult{}, fmt.Errorf("initial population member %d is nil", i)
		}
		if _, dup := seen[n]; dup {
			return RunResult{}, fmt.Errorf("initial population member %d appears twice", i)
		}
		seen[n] = struct{}{}
	}

	index := lineage.NewIndex()
	for _, n := range initial {
		index.Add(lineage.Entry{Lineage: n.Lineage(), Generation: n.Generation(), Operation: opSeed})
	}

	population := slices.Clone(initial)
	result := RunResult{
		RunID:                 m.cfg.RunID,
		BestByGeneration:      make([]float64, 0, m.cfg.Generations),
		GenerationDiagnostics: make([]model.GenerationDiagnostics, 0, m.cfg.Generations),
		Lineage:               index,
	}
	var (
		stats  breedStats
		scored []ScoredGenome
	)

	for gen := 0; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		var (
			discarded int
			err       error
		)
		scored, discarded, err = m.evaluatePopulation(ctx, population)
		if err != nil {
			return RunResult{}, err
		}
		result.Discarded += discarded
		if len(scored) == 0 {
			return RunResult{}, fmt.Errorf("%w: generation %d", ErrPopulationExtinct, gen)
		}

		scored = m.cfg.Postprocessor.Process(scored)
		slices.SortStableFunc(scored, func(a, b ScoredGenome) int {
			switch {
			case a.Fitness > b.Fitness:
				return -1
			case a.Fitness < b.Fitness:
				return 1
			}
			return 0
		})
		if m.cfg.Tuner != nil {
			if err := m.tuneChampion(ctx, scored, index, gen); err != nil {
				return RunResult{}, err
			}
		}
		for _, item := range scored {
			index.SetFitness(item.Network.Hash(), item.Fitness)
		}

		lineages := make([]lineage.Lineage, len(scored))
		for i, item := range scored {
			lineages[i] = item.Network.Lineage()
		}
		kinship := MeanKinship(lineages, m.cfg.MaxKinshipPairs, rand.New(rand.NewSource(m.cfg.Seed^int64(gen))))
		diag := summarizeGeneration(scored, gen, discarded, stats, kinship)
		result.BestByGeneration = append(result.BestByGeneration, diag.BestFitness)
		result.GenerationDiagnostics = append(result.GenerationDiagnostics, diag)

		m.metrics.BestFitness.Set(diag.BestFitness)
		m.metrics.MeanKinship.Set(diag.MeanKinship)
		m.metrics.Generation.Set(float64(gen))
		m.logger.Info("generation ranked",
			zap.Int("generation", gen),
			zap.Float64("best_fitness", diag.BestFitness),
			zap.Float64("mean_fitness", diag.MeanFitness),
			zap.Float64("mean_kinship", diag.MeanKinship),
			zap.Int("distinct_genomes", diag.DistinctGenomes),
			zap.Int("discarded", discarded),
		)

		if gen == m.cfg.Generations-1 {
			break
		}
		population, stats, err = m.nextGeneration(ctx, scored, index, gen+1)
		if err != nil {
			return RunResult{}, err
		}
	}

	result.FinalPopulation = scored
	if m.cfg.Store != nil {
		if err := m.persist(ctx, result); err != nil {
			return RunResult{}, err
		}
	}
	return result, nil
}

func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []*network.Network) ([]ScoredGenome, int, error) {
	type outcome struct {
		scored ScoredGenome
		ok     bool
	}
	outcomes := make([]outcome, len(population))

	var (
		mu        sync.Mutex
		discarded int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, n := range population {
		g.Go(func() error {
			fitness, trace, err := m.evaluateGenome(gctx, n)
			if err != nil {
				reason := discardReason(err)
				if reason == "" {
					return fmt.Errorf("evaluate genome %s: %w", n.Hash(), err)
				}
				m.metrics.Discarded.WithLabelValues(reason).Inc()
				m.logger.Warn("genome discarded",
					zap.String("genome", n.Hash().String()),
					zap.String("reason", reason),
					zap.Error(err),
				)
				mu.Lock()
				discarded++
				mu.Unlock()
				return nil
			}
			m.metrics.Evaluated.Inc()
			outcomes[i] = outcome{scored: ScoredGenome{Network: n, Fitness: float64(fitness), Trace: trace}, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	scored := make([]ScoredGenome, 0, len(population))
	for _, o := range outcomes {
		if o.ok {
			scored = append(scored, o.scored)
		}
	}
	return scored, discarded, nil
}

// tuneChampion replaces scored[0] with its tuned descendant when the tuned
// network still ranks first after postprocessing.
func (m *PopulationMonitor) tuneChampion(ctx context.Context, scored []ScoredGenome, index *lineage.Index, generation int) error {
	champion := scored[0]
	fitness := func(ctx context.Context, n *network.Network) (float64, error) {
		f, _, err := m.evaluateGenome(ctx, n)
		return float64(f), err
	}
	tuned, _, report, err := m.cfg.Tuner.Tune(ctx, m.rng, champion.Network, generation, fitness)
	if err != nil {
		return fmt.Errorf("tune champion %s: %w", champion.Network.Hash(), err)
	}
	m.metrics.Evaluated.Add(float64(report.CandidateEvaluations))
	if !report.Improved() || tuned == champion.Network {
		return nil
	}

	raw, trace, err := m.evaluateGenome(ctx, tuned)
	if err != nil {
		return fmt.Errorf("evaluate tuned champion: %w", err)
	}
	m.metrics.Evaluated.Inc()
	candidate := m.cfg.Postprocessor.Process([]ScoredGenome{{Network: tuned, Fitness: float64(raw), Trace: trace}})[0]
	if candidate.Fitness <= champion.Fitness {
		return nil
	}
	index.Add(lineage.Entry{Lineage: tuned.Lineage(), Generation: generation, Operation: opTune})
	scored[0] = candidate
	m.metrics.Tuned.Inc()
	m.logger.Debug("champion tuned",
		zap.String("tuner", m.cfg.Tuner.Name()),
		zap.String("from", champion.Network.Hash().String()),
		zap.String("to", tuned.Hash().String()),
		zap.Float64("fitness", candidate.Fitness),
		zap.Int("accepted", report.AcceptedCandidates),
	)
	return nil
}

func (m *PopulationMonitor) evaluateGenome(ctx context.Context, n *network.Network) (scape.Fitness, scape.Trace, error) {
	runner, err := agent.NewRunner(n.Hash().String(), n)
	if err != nil {
		return 0, nil, err
	}
	return runner.Evaluate(ctx, m.cfg.Scape)
}

// discardReason classifies errors that drop a single genome rather than the
// run. It returns "" for errors that must abort.
func discardReason(err error) string {
	switch {
	case network.IsStructural(err):
		return "structure"
	case errors.Is(err, network.ErrSensorCount), errors.Is(err, agent.ErrActionMismatch):
		return "incompatible"
	}
	return ""
}

func (m *PopulationMonitor) nextGeneration(ctx context.Context, ranked []ScoredGenome, index *lineage.Index, generation int) ([]*network.Network, breedStats, error) {
	next := make([]*network.Network, 0, m.cfg.PopulationSize)
	var stats breedStats

	// Elites move on unchanged: same network, same lineage.
	eliteCount := min(m.cfg.EliteCount, len(ranked))
	for i := 0; i < eliteCount; i++ {
		next = append(next, ranked[i].Network)
		stats.elites++
	}

	for len(next) < m.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, breedStats{}, err
		}
		child, operation, err := m.breed(ctx, ranked, eliteCount, generation)
		if err != nil {
			return nil, breedStats{}, err
		}
		index.Add(lineage.Entry{Lineage: child.Lineage(), Generation: generation, Operation: operation})
		next = append(next, child)
		switch {
		case operation == opCarry:
		case strings.HasPrefix(operation, Crossover{}.Name()):
			stats.crossover++
		default:
			stats.mutation++
		}
	}
	return next, stats, nil
}

// breed produces one child. Failed attempts are retried with fresh random
// choices; when every attempt fails the parent is carried over as a clone
// sharing its lineage.
func (m *PopulationMonitor) breed(ctx context.Context, ranked []ScoredGenome, eliteCount, generation int) (*network.Network, string, error) {
	parent, err := m.cfg.Selector.PickParent(m.rng, ranked, eliteCount)
	if err != nil {
		return nil, "", err
	}

	for attempt := 0; attempt < m.cfg.BreedAttempts; attempt++ {
		child, operation, err := m.breedFrom(ctx, parent, ranked, generation)
		if err == nil {
			return child, operation, nil
		}
		if reason := breedFailure(err); reason != "" {
			m.metrics.Discarded.WithLabelValues(reason).Inc()
			m.logger.Debug("breeding attempt failed",
				zap.String("parent", parent.Network.Hash().String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		return nil, "", err
	}

	child, err := parent.Network.Clone(network.WithLineage(parent.Network.Lineage()))
	if err != nil {
		return nil, "", err
	}
	return child, opCarry, nil
}

func (m *PopulationMonitor) breedFrom(ctx context.Context, parent ScoredGenome, ranked []ScoredGenome, generation int) (*network.Network, string, error) {
	current := parent.Network
	parents := []lineage.Parent{{Lineage: parent.Network.Lineage(), Weight: 1}}
	var operations []string

	if m.crossover(parent, ranked) {
		mate, err := m.cfg.MateSelector.PickMate(m.rng, parent, ranked)
		if err != nil {
			return nil, "", err
		}
		crossed, err := Crossover{}.Apply(ctx, m.rng, parent.Network, mate.Network, generation)
		if err != nil {
			return nil, "", err
		}
		current = crossed
		parents = crossed.Lineage().Parents()
		operations = append(operations, Crossover{}.Name())
	}

	count, err := m.cfg.TopologicalMutations.MutationCount(parent.Network, generation, m.rng)
	if err != nil {
		return nil, "", err
	}
	if count <= 0 {
		return nil, "", fmt.Errorf("invalid mutation count from policy: %d", count)
	}
	for step := 0; step < count; step++ {
		operator := m.chooseMutation()
		mutated, err := operator.Apply(ctx, m.rng, current, generation)
		if errors.Is(err, ErrNoMutationChoice) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		current = mutated
		operations = append(operations, operator.Name())
	}
	if len(operations) == 0 {
		return nil, "", ErrNoMutationChoice
	}
	for _, p := range parents {
		if current.Hash() == p.Lineage.Hash() {
			return nil, "", fmt.Errorf("%w: child is identical to a parent", ErrNoMutationChoice)
		}
	}

	// Intermediate steps are not kept, so the child descends directly from
	// the breeding parents.
	if len(operations) > 1 {
		current, err = current.Clone(network.WithParents(parents...), network.WithGeneration(generation))
		if err != nil {
			return nil, "", err
		}
	}
	return current, strings.Join(operations, "+"), nil
}

func (m *PopulationMonitor) crossover(parent ScoredGenome, ranked []ScoredGenome) bool {
	if m.cfg.CrossoverRate <= 0 || len(ranked) < 2 || parent.Network.DecisionCount() < 2 {
		return false
	}
	return m.rng.Float64() < m.cfg.CrossoverRate
}

func breedFailure(err error) string {
	switch {
	case network.IsStructural(err):
		return "structure"
	case errors.Is(err, ErrNoMutationChoice):
		return "no_choice"
	}
	return ""
}

func (m *PopulationMonitor) chooseMutation() Operator {
	total := 0.0
	for _, item := range m.cfg.MutationPolicy {
		total += item.Weight
	}
	pick := m.rng.Float64() * total
	acc := 0.0
	for _, item := range m.cfg.MutationPolicy {
		acc += item.Weight
		if pick < acc {
			return item.Operator
		}
	}
	return m.cfg.MutationPolicy[len(m.cfg.MutationPolicy)-1].Operator
}

func (m *PopulationMonitor) persist(ctx context.Context, result RunResult) error {
	store := m.cfg.Store
	versions := model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}

	ids := make([]string, 0, len(result.FinalPopulation))
	top := make([]model.TopGenomeRecord, 0, m.cfg.TopGenomes)
	stored := make(map[lineage.Hash]struct{}, len(result.FinalPopulation))
	for i, item := range result.FinalPopulation {
		id := item.Network.Hash().String()
		ids = append(ids, id)
		if i < m.cfg.TopGenomes {
			top = append(top, model.TopGenomeRecord{Rank: i + 1, Fitness: item.Fitness, GenomeID: id})
		}
		if _, ok := stored[item.Network.Hash()]; ok {
			continue
		}
		stored[item.Network.Hash()] = struct{}{}
		if err := store.SaveGenome(ctx, genotype.Encode(item.Network)); err != nil {
			return fmt.Errorf("save genome %s: %w", id, err)
		}
	}

	if err := store.SavePopulation(ctx, model.Population{
		VersionedRecord: versions,
		ID:              m.cfg.RunID,
		GenomeIDs:       ids,
		Generation:      m.cfg.Generations - 1,
	}); err != nil {
		return fmt.Errorf("save population: %w", err)
	}
	if err := store.SaveLineage(ctx, m.cfg.RunID, result.Lineage.Records()); err != nil {
		return fmt.Errorf("save lineage: %w", err)
	}
	if err := store.SaveFitnessHistory(ctx, m.cfg.RunID, result.BestByGeneration); err != nil {
		return fmt.Errorf("save fitness history: %w", err)
	}
	if err := store.SaveGenerationDiagnostics(ctx, m.cfg.RunID, result.GenerationDiagnostics); err != nil {
		return fmt.Errorf("save diagnostics: %w", err)
	}
	if err := store.SaveTopGenomes(ctx, m.cfg.RunID, top); err != nil {
		return fmt.Errorf("save top genomes: %w", err)
	}

	summary := model.RunSummary{
		VersionedRecord: versions,
		RunID:           m.cfg.RunID,
		Scape:           m.cfg.Scape.Name(),
		Seed:            m.cfg.Seed,
		Generations:     m.cfg.Generations,
		Discarded:       result.Discarded,
	}
	if best, ok := result.Best(); ok {
		summary.BestFitness = best.Fitness
		summary.BestGenomeID = best.Network.Hash().String()
	}
	if err := store.SaveRunSummary(ctx, summary); err != nil {
		return fmt.Errorf("save run summary: %w", err)
	}
	m.logger.Info("run persisted", zap.Int("genomes", len(stored)), zap.Int("lineage_records", result.Lineage.Len()))
	return nil
}

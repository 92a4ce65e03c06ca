package evo

import (
	"fmt"
	"math/rand"

	"sigevo/internal/network"
	"sigevo/internal/scape"
)

type ScoredGenome struct {
	Network *network.Network
	Fitness float64
	Trace   scape.Trace
}

// Selector chooses parents from ranked genomes for replication.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (ScoredGenome, error)
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (ScoredGenome, error) {
	if rng == nil {
		return ScoredGenome{}, ErrRandomSource
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return ScoredGenome{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)], nil
}

// TournamentSelector samples candidates and picks the best fitness among them.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (ScoredGenome, error) {
	if rng == nil {
		return ScoredGenome{}, ErrRandomSource
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return ScoredGenome{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}

	poolSize := s.PoolSize
	if poolSize <= 0 {
		poolSize = eliteCount * 2
	}
	poolSize = min(max(poolSize, eliteCount), len(ranked))
	tournamentSize := min(defaultTournament(s.TournamentSize), poolSize)

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.Intn(poolSize)]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best, nil
}

// KinshipTournament picks a mate for first. Candidates compete on
// fitness * (1 - Bias*kinship), where kinship is how much of first's ancestry
// the candidate shares, so related mates are penalized.
type KinshipTournament struct {
	TournamentSize int
	Bias           float64
}

func (KinshipTournament) Name() string {
	return "kinship_tournament"
}

func (s KinshipTournament) PickMate(rng *rand.Rand, first ScoredGenome, ranked []ScoredGenome) (ScoredGenome, error) {
	if rng == nil {
		return ScoredGenome{}, ErrRandomSource
	}
	if s.Bias < 0 || s.Bias > 1 {
		return ScoredGenome{}, fmt.Errorf("kinship bias must be in [0, 1], got %f", s.Bias)
	}
	pool := make([]ScoredGenome, 0, len(ranked))
	for _, candidate := range ranked {
		if candidate.Network != first.Network {
			pool = append(pool, candidate)
		}
	}
	if len(pool) == 0 {
		return ScoredGenome{}, fmt.Errorf("%w: no mate candidates besides the first parent", ErrNoMutationChoice)
	}

	// Entrants are drawn without replacement, so a tournament as large as the
	// pool sees every candidate.
	size := min(defaultTournament(s.TournamentSize), len(pool))
	var (
		best      ScoredGenome
		bestScore float64
	)
	for i, pick := range rng.Perm(len(pool))[:size] {
		candidate := pool[pick]
		score := s.Score(first, candidate)
		if i == 0 || score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best, nil
}

// Score is the tournament score of candidate as a mate for first.
func (s KinshipTournament) Score(first, candidate ScoredGenome) float64 {
	kinship := first.Network.Lineage().KinshipAgainst(candidate.Network.Lineage())
	return candidate.Fitness * (1 - s.Bias*kinship)
}

func defaultTournament(size int) int {
	if size <= 0 {
		return 3
	}
	return size
}

package evo

import (
	"math/rand"

	"sigevo/internal/lineage"
	"sigevo/internal/model"
)

const defaultMaxKinshipPairs = 2048

// breedStats counts how the members of a generation were produced.
type breedStats struct {
	elites    int
	crossover int
	mutation  int
}

func summarizeGeneration(scored []ScoredGenome, generation, discarded int, stats breedStats, meanKinship float64) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		Generation:     generation,
		MeanKinship:    meanKinship,
		Discarded:      discarded,
		CrossoverCount: stats.crossover,
		MutationCount:  stats.mutation,
		EliteCount:     stats.elites,
	}
	if len(scored) == 0 {
		return diag
	}

	var fitness, nodes, generations float64
	minFitness := scored[0].Fitness
	distinct := make(map[lineage.Hash]struct{}, len(scored))
	for _, item := range scored {
		fitness += item.Fitness
		minFitness = min(minFitness, item.Fitness)
		nodes += float64(item.Network.Len())
		generations += item.Network.Lineage().Generations()
		distinct[item.Network.Hash()] = struct{}{}
	}
	count := float64(len(scored))

	diag.BestFitness = scored[0].Fitness
	diag.MeanFitness = fitness / count
	diag.MinFitness = minFitness
	diag.DistinctGenomes = len(distinct)
	diag.MeanNodeCount = nodes / count
	diag.MeanGenerations = generations / count
	return diag
}

// MeanKinship averages KinshipAgainst over ordered pairs of distinct members.
// When there are more than maxPairs pairs, maxPairs of them are sampled with
// rng.
func MeanKinship(lineages []lineage.Lineage, maxPairs int, rng *rand.Rand) float64 {
	n := len(lineages)
	if n < 2 {
		return 0
	}
	if maxPairs <= 0 {
		maxPairs = defaultMaxKinshipPairs
	}

	pairs := n * (n - 1)
	if pairs <= maxPairs || rng == nil {
		total := 0.0
		for i := range lineages {
			for j := range lineages {
				if i != j {
					total += lineages[i].KinshipAgainst(lineages[j])
				}
			}
		}
		return total / float64(pairs)
	}

	total := 0.0
	for k := 0; k < maxPairs; k++ {
		i := rng.Intn(n)
		j := rng.Intn(n - 1)
		if j >= i {
			j++
		}
		total += lineages[i].KinshipAgainst(lineages[j])
	}
	return total / float64(maxPairs)
}

package storage

import (
	"context"
	"reflect"
	"testing"

	"sigevo/internal/model"
)

func versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// exerciseStore checks the save/get contract every backend honors.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	genome := model.Genome{
		VersionedRecord: versioned(),
		ID:              "00000000000000aa",
		Generation:      2,
		Nodes: []model.NodeRecord{
			{Kind: "sensor"},
			{Kind: "decision", Inputs: []int{2}},
			{Kind: "delay", Params: []float64{0.5}, Inputs: []int{0}},
		},
		Sensors:   []int{0},
		Decisions: []int{1},
	}
	if err := store.SaveGenome(ctx, genome); err != nil {
		t.Fatalf("save genome: %v", err)
	}
	loadedGenome, ok, err := store.GetGenome(ctx, genome.ID)
	if err != nil || !ok {
		t.Fatalf("get genome: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(genome, loadedGenome) {
		t.Fatalf("unexpected genome loaded: %+v", loadedGenome)
	}
	if _, ok, err := store.GetGenome(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing genome, ok=%t err=%v", ok, err)
	}

	population := model.Population{
		VersionedRecord: versioned(),
		ID:              "run-1:gen-3",
		GenomeIDs:       []string{genome.ID},
		Generation:      3,
	}
	if err := store.SavePopulation(ctx, population); err != nil {
		t.Fatalf("save population: %v", err)
	}
	loadedPopulation, ok, err := store.GetPopulation(ctx, population.ID)
	if err != nil || !ok || !reflect.DeepEqual(population, loadedPopulation) {
		t.Fatalf("unexpected population: %+v ok=%t err=%v", loadedPopulation, ok, err)
	}

	summary := model.RunSummary{
		VersionedRecord: versioned(),
		RunID:           "run-1",
		Scape:           "xor",
		Generations:     3,
		BestFitness:     0.75,
		BestGenomeID:    genome.ID,
	}
	if err := store.SaveRunSummary(ctx, summary); err != nil {
		t.Fatalf("save run summary: %v", err)
	}
	loadedSummary, ok, err := store.GetRunSummary(ctx, "run-1")
	if err != nil || !ok || loadedSummary != summary {
		t.Fatalf("unexpected run summary: %+v ok=%t err=%v", loadedSummary, ok, err)
	}

	history := []float64{0.1, 0.2, 0.3}
	if err := store.SaveFitnessHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	loadedHistory, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil || !ok || !reflect.DeepEqual(history, loadedHistory) {
		t.Fatalf("unexpected history: %+v ok=%t err=%v", loadedHistory, ok, err)
	}
	if _, ok, err := store.GetFitnessHistory(ctx, "run-2"); err != nil || ok {
		t.Fatalf("expected missing history, ok=%t err=%v", ok, err)
	}

	diagnostics := []model.GenerationDiagnostics{
		{Generation: 1, BestFitness: 0.8, MeanFitness: 0.6, MinFitness: 0.2, MeanKinship: 0.5, DistinctGenomes: 4},
		{Generation: 2, BestFitness: 0.9, MeanFitness: 0.7, MinFitness: 0.3, MeanKinship: 0.4, DistinctGenomes: 5, Discarded: 1},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run-1", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	loadedDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil || !ok || !reflect.DeepEqual(diagnostics, loadedDiagnostics) {
		t.Fatalf("unexpected diagnostics: %+v ok=%t err=%v", loadedDiagnostics, ok, err)
	}

	top := []model.TopGenomeRecord{{Rank: 1, Fitness: 0.9, GenomeID: genome.ID}}
	if err := store.SaveTopGenomes(ctx, "run-1", top); err != nil {
		t.Fatalf("save top genomes: %v", err)
	}
	loadedTop, ok, err := store.GetTopGenomes(ctx, "run-1")
	if err != nil || !ok || !reflect.DeepEqual(top, loadedTop) {
		t.Fatalf("unexpected top genomes: %+v ok=%t err=%v", loadedTop, ok, err)
	}

	records := []model.LineageRecord{
		{VersionedRecord: versioned(), Hash: "0000000000000001", Operation: "seed"},
		{
			VersionedRecord: versioned(),
			Hash:            genome.ID,
			Parents:         []model.LineageParent{{Hash: "0000000000000001", Weight: 1}},
			Generation:      1,
			Operation:       "mutate",
			Fitness:         0.9,
		},
	}
	if err := store.SaveLineage(ctx, "run-1", records); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	loadedLineage, ok, err := store.GetLineage(ctx, "run-1")
	if err != nil || !ok || !reflect.DeepEqual(records, loadedLineage) {
		t.Fatalf("unexpected lineage: %+v ok=%t err=%v", loadedLineage, ok, err)
	}
}

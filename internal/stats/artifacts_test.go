package stats

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"sigevo/internal/model"
	"sigevo/internal/storage"
)

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	genome := model.Genome{ID: "g1", Generation: 2, Sensors: []int{0}, Decisions: []int{1}}
	if err := store.SaveGenome(ctx, genome); err != nil {
		t.Fatalf("save genome: %v", err)
	}
	if err := store.SaveRunSummary(ctx, model.RunSummary{RunID: "run-1", Scape: "xor", Seed: 3, Generations: 3, BestFitness: 0.7, BestGenomeID: "g1"}); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	if err := store.SaveFitnessHistory(ctx, "run-1", []float64{0.5, 0.6, 0.7}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	if err := store.SaveTopGenomes(ctx, "run-1", []model.TopGenomeRecord{{Rank: 1, Fitness: 0.7, GenomeID: "g1"}}); err != nil {
		t.Fatalf("save top: %v", err)
	}
	if err := store.SaveLineage(ctx, "run-1", []model.LineageRecord{{Hash: "g1", Generation: 1, Operation: "seed"}}); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	return store
}

func TestCollectAndWriteRunArtifacts(t *testing.T) {
	store := seededStore(t)
	artifacts, err := Collect(context.Background(), store, "run-1")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(artifacts.TopGenomes) != 1 || artifacts.TopGenomes[0].Genome.ID != "g1" {
		t.Fatalf("unexpected top genomes: %+v", artifacts.TopGenomes)
	}

	baseDir := t.TempDir()
	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{"summary.json", "fitness_history.csv", "top_genomes.json", "lineage.json", "generation_diagnostics.json"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	series, ok, err := ReadFitnessSeries(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read series: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(series, artifacts.BestByGeneration) {
		t.Fatalf("series mismatch: got=%v want=%v", series, artifacts.BestByGeneration)
	}
	summary, ok, err := ReadSummary(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read summary: ok=%t err=%v", ok, err)
	}
	if summary != artifacts.Summary {
		t.Fatalf("summary mismatch: got=%+v want=%+v", summary, artifacts.Summary)
	}
}

func TestCollectMissingRun(t *testing.T) {
	store := seededStore(t)
	if _, err := Collect(context.Background(), store, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestReadMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	if _, ok, err := ReadFitnessSeries(dir, "nope"); ok || err != nil {
		t.Fatalf("missing series: ok=%t err=%v", ok, err)
	}
	if _, ok, err := ReadSummary(dir, "nope"); ok || err != nil {
		t.Fatalf("missing summary: ok=%t err=%v", ok, err)
	}
}

func TestRunIndexOrderingAndReplace(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	older := IndexEntry(RunArtifacts{Summary: model.RunSummary{RunID: "a", BestFitness: 0.1}}, base)
	newer := IndexEntry(RunArtifacts{Summary: model.RunSummary{RunID: "b", BestFitness: 0.2}}, base.Add(time.Minute))
	for _, e := range []RunIndexEntry{older, newer} {
		if err := AppendRunIndex(dir, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := ListRunIndex(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].RunID != "b" {
		t.Fatalf("expected newest first, got %+v", entries)
	}

	older.FinalBestFitness = 0.9
	if err := AppendRunIndex(dir, older); err != nil {
		t.Fatalf("replace: %v", err)
	}
	entries, err = ListRunIndex(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[1].FinalBestFitness != 0.9 {
		t.Fatalf("expected replaced entry, got %+v", entries)
	}

	if err := AppendRunIndex(dir, RunIndexEntry{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

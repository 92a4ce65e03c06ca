// Package stats exports finished runs to a directory of JSON and CSV files and
// summarizes fitness series across runs.
package stats

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"sigevo/internal/model"
	"sigevo/internal/storage"
)

const runIndexFile = "run_index.json"

var ErrRunNotFound = errors.New("run not found")

type TopGenome struct {
	Rank    int          `json:"rank"`
	Fitness float64      `json:"fitness"`
	Genome  model.Genome `json:"genome"`
}

type RunArtifacts struct {
	Summary               model.RunSummary              `json:"summary"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	TopGenomes            []TopGenome                   `json:"top_genomes"`
	Lineage               []model.LineageRecord         `json:"lineage"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Scape            string  `json:"scape"`
	Seed             int64   `json:"seed"`
	Generations      int     `json:"generations"`
	Discarded        int     `json:"discarded"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	BestGenomeID     string  `json:"best_genome_id"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// Collect gathers everything the store holds for runID.
func Collect(ctx context.Context, store storage.Store, runID string) (RunArtifacts, error) {
	summary, ok, err := store.GetRunSummary(ctx, runID)
	if err != nil {
		return RunArtifacts{}, err
	}
	if !ok {
		return RunArtifacts{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	artifacts := RunArtifacts{Summary: summary}

	if artifacts.BestByGeneration, _, err = store.GetFitnessHistory(ctx, runID); err != nil {
		return RunArtifacts{}, err
	}
	if artifacts.GenerationDiagnostics, _, err = store.GetGenerationDiagnostics(ctx, runID); err != nil {
		return RunArtifacts{}, err
	}
	if artifacts.Lineage, _, err = store.GetLineage(ctx, runID); err != nil {
		return RunArtifacts{}, err
	}

	top, _, err := store.GetTopGenomes(ctx, runID)
	if err != nil {
		return RunArtifacts{}, err
	}
	for _, item := range top {
		genome, ok, err := store.GetGenome(ctx, item.GenomeID)
		if err != nil {
			return RunArtifacts{}, err
		}
		if !ok {
			return RunArtifacts{}, fmt.Errorf("top genome %s of run %s is not stored", item.GenomeID, runID)
		}
		artifacts.TopGenomes = append(artifacts.TopGenomes, TopGenome{Rank: item.Rank, Fitness: item.Fitness, Genome: genome})
	}
	return artifacts, nil
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Summary.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Summary.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "top_genomes.json"), artifacts.TopGenomes); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "lineage.json"), artifacts.Lineage); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "generation_diagnostics.json"), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	if err := WriteFitnessSeries(runDir, artifacts.BestByGeneration); err != nil {
		return "", err
	}
	return runDir, nil
}

// IndexEntry summarizes artifacts for the run index.
func IndexEntry(artifacts RunArtifacts, now time.Time) RunIndexEntry {
	s := artifacts.Summary
	return RunIndexEntry{
		RunID:            s.RunID,
		Scape:            s.Scape,
		Seed:             s.Seed,
		Generations:      s.Generations,
		Discarded:        s.Discarded,
		FinalBestFitness: s.BestFitness,
		BestGenomeID:     s.BestGenomeID,
		CreatedAtUTC:     now.UTC().Format(time.RFC3339Nano),
	}
}

// AppendRunIndex adds entry to the index, replacing an entry with the same run id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// later appends win ties
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadSummary(baseDir, runID string) (model.RunSummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "summary.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunSummary{}, false, nil
		}
		return model.RunSummary{}, false, err
	}
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, false, err
	}
	return summary, true, nil
}

func WriteFitnessSeries(runDir string, bestByGeneration []float64) error {
	file, err := os.Create(filepath.Join(runDir, "fitness_history.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(best, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "fitness_history.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

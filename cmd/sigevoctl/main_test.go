package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sigevo/internal/config"
	"sigevo/internal/storage"
	"sigevo/pkg/sigevo"
)

const xorConfig = `run_id: cli-run
seed: 7
population: 8
generations: 3
elite_count: 2
workers: 2
crossover_rate: 0.5
scape:
  name: xor
  repeats: 1
logging:
  level: error
`

func newTestApp(t *testing.T) (*app, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sigevo.yaml")
	if err := os.WriteFile(path, []byte(xorConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	store := storage.NewMemoryStore()
	a := newApp()
	a.openStore = func(config.StoreConfig) (storage.Store, error) {
		return store, nil
	}
	return a, path
}

func execute(t *testing.T, a *app, configPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func field(t *testing.T, line, key string) string {
	t.Helper()
	for _, part := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(part, key+"="); ok {
			return v
		}
	}
	t.Fatalf("field %q missing from %q", key, line)
	return ""
}

func TestRunThenInspect(t *testing.T) {
	a, path := newTestApp(t)

	out, err := execute(t, a, path, "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if got := field(t, out, "run_id"); got != "cli-run" {
		t.Fatalf("run_id = %q", got)
	}
	if got := field(t, out, "scape"); got != "xor" {
		t.Fatalf("scape = %q", got)
	}
	if got := field(t, out, "generations"); got != "3" {
		t.Fatalf("generations = %q", got)
	}
	best := field(t, out, "best_genome")

	out, err = execute(t, a, path, "fitness", "cli-run")
	if err != nil {
		t.Fatalf("fitness: %v", err)
	}
	if n := strings.Count(out, "best_fitness="); n != 3 {
		t.Fatalf("fitness lines = %d, want 3:\n%s", n, out)
	}

	out, err = execute(t, a, path, "diagnostics", "cli-run")
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 4 {
		t.Fatalf("diagnostics rows = %d, want header + 3:\n%s", len(lines), out)
	}

	out, err = execute(t, a, path, "top", "cli-run")
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if !strings.Contains(out, "rank=1 ") || !strings.Contains(out, "genome="+best) {
		t.Fatalf("top output missing best genome %s:\n%s", best, out)
	}

	out, err = execute(t, a, path, "lineage", "cli-run", "--limit", "2")
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 3 {
		t.Fatalf("lineage rows = %d, want header + 2:\n%s", len(lines), out)
	}

	out, err = execute(t, a, path, "kinship", "cli-run", best, best)
	if err != nil {
		t.Fatalf("kinship: %v", err)
	}
	if strings.Count(out, "=1.000000") != 2 {
		t.Fatalf("self kinship should be 1 both ways:\n%s", out)
	}

	out, err = execute(t, a, path, "show", best)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "decision") {
		t.Fatalf("show output has no decisions:\n%s", out)
	}

	out, err = execute(t, a, path, "audit", best)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if got := field(t, out, "genome"); got != best {
		t.Fatalf("audited genome = %q, want %q", got, best)
	}
	if got := field(t, out, "sensors"); got != "3" {
		t.Fatalf("sensors = %q, want 3", got)
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	a, path := newTestApp(t)
	out, err := execute(t, a, path, "run", "--run-id", "flagged", "--generations", "2", "--population", "4")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if got := field(t, out, "run_id"); got != "flagged" {
		t.Fatalf("run_id = %q", got)
	}
	if got := field(t, out, "generations"); got != "2" {
		t.Fatalf("generations = %q", got)
	}
	if a.cfg.EliteCount > 4 {
		t.Fatalf("elite count %d exceeds population", a.cfg.EliteCount)
	}
}

func TestInspectMissingRun(t *testing.T) {
	a, path := newTestApp(t)
	for _, args := range [][]string{
		{"fitness", "nope"},
		{"diagnostics", "nope"},
		{"top", "nope"},
		{"lineage", "nope"},
		{"show", "0000000000000000"},
	} {
		if _, err := execute(t, a, path, args...); !errors.Is(err, sigevo.ErrNotFound) {
			t.Fatalf("%v: expected sigevo.ErrNotFound, got %v", args, err)
		}
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	a, path := newTestApp(t)
	if _, err := execute(t, a, path, "run", "--scape", "maze"); err == nil {
		t.Fatal("expected unknown scape to fail")
	}
	if _, err := execute(t, a, path, "kinship", "cli-run", "a"); err == nil {
		t.Fatal("expected argument count error")
	}
}

func TestInitCommand(t *testing.T) {
	a, path := newTestApp(t)
	out, err := execute(t, a, path, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "initialized store=memory") {
		t.Fatalf("unexpected init output: %q", out)
	}
}

func TestExportRunsCompare(t *testing.T) {
	a, path := newTestApp(t)
	dir := t.TempDir()

	for _, id := range []string{"first", "second"} {
		if out, err := execute(t, a, path, "run", "--run-id", id); err != nil {
			t.Fatalf("run %s: %v\n%s", id, err, out)
		}
		out, err := execute(t, a, path, "export", id, "--dir", dir)
		if err != nil {
			t.Fatalf("export %s: %v", id, err)
		}
		if got := field(t, out, "run_id"); got != id {
			t.Fatalf("exported run_id = %q", got)
		}
	}

	out, err := execute(t, a, path, "runs", "--dir", dir)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if n := strings.Count(out, "run_id="); n != 2 {
		t.Fatalf("runs listed = %d, want 2:\n%s", n, out)
	}

	out, err = execute(t, a, path, "compare", "first", "second", "--dir", dir)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if n := strings.Count(out, "mean_best_fitness="); n != 3 {
		t.Fatalf("compare generations = %d, want 3:\n%s", n, out)
	}
	if !strings.Contains(out, "run_id=second peak_fitness=") {
		t.Fatalf("compare output missing peak for second run:\n%s", out)
	}

	if _, err := execute(t, a, path, "compare", "missing", "--dir", dir); !errors.Is(err, sigevo.ErrNotFound) {
		t.Fatalf("expected sigevo.ErrNotFound, got %v", err)
	}
}

func TestRunWithTuningAndScaledMutations(t *testing.T) {
	a, path := newTestApp(t)
	extra := xorConfig + `topological_policy: ncount_exponential
topological_param: 0.5
topological_mutations: 3
tuning:
  enabled: true
  attempts: 3
`
	if err := os.WriteFile(path, []byte(extra), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := execute(t, a, path, "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if got := field(t, out, "generations"); got != "3" {
		t.Fatalf("generations = %q", got)
	}
	if !a.cfg.Tuning.Enabled || a.cfg.TopologicalPolicy != "ncount_exponential" {
		t.Fatalf("config overlay not applied: %+v", a.cfg)
	}
}

// Package config loads the YAML run configuration for sigevoctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"sigevo/internal/scape"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	RunID                string             `yaml:"run_id"`
	Seed                 int64              `yaml:"seed"`
	Population           int                `yaml:"population"`
	Generations          int                `yaml:"generations"`
	EliteCount           int                `yaml:"elite_count"`
	Workers              int                `yaml:"workers"`
	Selection            string             `yaml:"selection"`
	TournamentSize       int                `yaml:"tournament_size"`
	KinshipBias          float64            `yaml:"kinship_bias"`
	CrossoverRate        float64            `yaml:"crossover_rate"`
	TopologicalMutations int                `yaml:"topological_mutations"`
	TopologicalPolicy    string             `yaml:"topological_policy"`
	TopologicalParam     float64            `yaml:"topological_param"`
	Postprocessor        string             `yaml:"postprocessor"`
	MutationWeights      map[string]float64 `yaml:"mutation_weights"`
	Tuning               TuningConfig       `yaml:"tuning"`
	Scape                scape.Config       `yaml:"scape"`
	Store                StoreConfig        `yaml:"store"`
	Logging              LoggingConfig      `yaml:"logging"`
	Metrics              MetricsConfig      `yaml:"metrics"`
}

// TuningConfig controls the parameter hill climb applied to each
// generation's champion.
type TuningConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Attempts          int     `yaml:"attempts"`
	Steps             int     `yaml:"steps"`
	StepSize          float64 `yaml:"step_size"`
	PerturbationRange float64 `yaml:"perturbation_range"`
	AnnealingFactor   float64 `yaml:"annealing_factor"`
	MinImprovement    float64 `yaml:"min_improvement"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"` // memory, sqlite
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a configuration that runs as is. Every call draws a fresh
// run id.
func Default() *Config {
	return &Config{
		RunID:                uuid.NewString(),
		Seed:                 1,
		Population:           40,
		Generations:          30,
		EliteCount:           4,
		Workers:              4,
		Selection:            "tournament",
		TournamentSize:       3,
		KinshipBias:          0.5,
		CrossoverRate:        0.3,
		TopologicalMutations: 1,
		TopologicalPolicy:    "const",
		TopologicalParam:     0.5,
		Postprocessor:        "none",
		MutationWeights: map[string]float64{
			"add_function":   1,
			"add_delay":      0.5,
			"rewire_input":   1,
			"add_input":      1,
			"swap_transform": 1,
			"perturb_param":  2,
			"bypass_node":    0.5,
		},
		Tuning: TuningConfig{
			Attempts:          8,
			Steps:             2,
			StepSize:          0.5,
			PerturbationRange: 1,
			AnnealingFactor:   0.8,
		},
		Scape: scape.Config{Name: "forage"},
		Store: StoreConfig{
			Kind: "memory",
			Path: "sigevo.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
	}
}

// Load reads path over Default. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// A weights table in the file replaces the default table.
	defaults := cfg.MutationWeights
	cfg.MutationWeights = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MutationWeights == nil {
		cfg.MutationWeights = defaults
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("SIGEVO_DB"); path != "" {
		c.Store.Path = path
	}
	if level := os.Getenv("SIGEVO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) Validate() error {
	switch {
	case c.RunID == "":
		return fmt.Errorf("%w: run_id is required", ErrInvalidConfig)
	case c.Population <= 0:
		return fmt.Errorf("%w: population must be > 0", ErrInvalidConfig)
	case c.Generations <= 0:
		return fmt.Errorf("%w: generations must be > 0", ErrInvalidConfig)
	case c.EliteCount <= 0 || c.EliteCount > c.Population:
		return fmt.Errorf("%w: elite_count must be in [1, population]", ErrInvalidConfig)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	case c.TournamentSize < 0:
		return fmt.Errorf("%w: tournament_size must be >= 0", ErrInvalidConfig)
	case c.KinshipBias < 0 || c.KinshipBias > 1:
		return fmt.Errorf("%w: kinship_bias must be in [0, 1]", ErrInvalidConfig)
	case c.CrossoverRate < 0 || c.CrossoverRate > 1:
		return fmt.Errorf("%w: crossover_rate must be in [0, 1]", ErrInvalidConfig)
	case c.TopologicalMutations <= 0:
		return fmt.Errorf("%w: topological_mutations must be > 0", ErrInvalidConfig)
	case len(c.MutationWeights) == 0:
		return fmt.Errorf("%w: mutation_weights is required", ErrInvalidConfig)
	}

	switch c.Selection {
	case "elite", "tournament":
	default:
		return fmt.Errorf("%w: unknown selection %q", ErrInvalidConfig, c.Selection)
	}
	switch c.TopologicalPolicy {
	case "const":
	case "ncount_linear", "ncount_exponential":
		if c.TopologicalParam <= 0 {
			return fmt.Errorf("%w: topological_param must be > 0 for %s", ErrInvalidConfig, c.TopologicalPolicy)
		}
	default:
		return fmt.Errorf("%w: unknown topological_policy %q", ErrInvalidConfig, c.TopologicalPolicy)
	}
	if c.Tuning.Enabled && (c.Tuning.Attempts <= 0 || c.Tuning.Steps <= 0 || c.Tuning.StepSize <= 0) {
		return fmt.Errorf("%w: tuning needs attempts, steps and step_size > 0", ErrInvalidConfig)
	}
	switch c.Postprocessor {
	case "none", "size_proportional":
	default:
		return fmt.Errorf("%w: unknown postprocessor %q", ErrInvalidConfig, c.Postprocessor)
	}
	switch c.Store.Kind {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store kind %q", ErrInvalidConfig, c.Store.Kind)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr is required when metrics are enabled", ErrInvalidConfig)
	}
	if _, err := scape.New(c.Scape); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sigevo/internal/config"
)

type runFlags struct {
	runID       string
	scape       string
	seed        int64
	population  int
	generations int
	workers     int
}

func newRunCmd(a *app) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed a population and evolve it in a scape",
		Long: `Seeds a random population sized for the scape's sensors and actions,
evolves it for the configured generations and persists the genomes, lineage
and history under the run id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyRunFlags(cmd, a.cfg, flags)
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runEvolution(cmd)
		},
	}
	cmd.Flags().StringVar(&flags.runID, "run-id", "", "run id (default: config run_id)")
	cmd.Flags().StringVar(&flags.scape, "scape", "", "scape name: forage|xor")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "random seed")
	cmd.Flags().IntVar(&flags.population, "population", 0, "population size")
	cmd.Flags().IntVar(&flags.generations, "generations", 0, "number of generations")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "parallel evaluations")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags) {
	changed := cmd.Flags().Changed
	if changed("run-id") {
		cfg.RunID = flags.runID
	}
	if changed("scape") {
		cfg.Scape.Name = flags.scape
	}
	if changed("seed") {
		cfg.Seed = flags.seed
	}
	if changed("population") {
		cfg.Population = flags.population
		cfg.EliteCount = min(cfg.EliteCount, flags.population)
	}
	if changed("generations") {
		cfg.Generations = flags.generations
	}
	if changed("workers") {
		cfg.Workers = flags.workers
	}
}

func (a *app) runEvolution(cmd *cobra.Command) error {
	reg := prometheus.NewRegistry()
	client, closeClient, err := a.client(cmd, reg)
	if err != nil {
		return err
	}
	defer closeClient()

	if a.cfg.Metrics.Enabled {
		stop := serveMetrics(a.cfg.Metrics.Addr, reg, a.logger)
		defer stop()
	}

	summary, err := client.Run(cmd.Context(), a.cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s scape=%s generations=%d best_fitness=%.4f best_genome=%s discarded=%d lineage=%d\n",
		summary.RunID,
		summary.Scape,
		summary.Generations,
		summary.BestFitness,
		summary.BestGenome,
		summary.Discarded,
		summary.LineageSize,
	)
	return nil
}

// serveMetrics exposes reg over HTTP until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

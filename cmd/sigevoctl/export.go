package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sigevo/internal/stats"
	"sigevo/pkg/sigevo"
)

const defaultArtifactsDir = "runs"

func newExportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a stored run to an artifacts directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(client *sigevo.Client) error {
				runDir, err := client.Export(cmd.Context(), args[0], dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", args[0], runDir)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultArtifactsDir, "artifacts directory")
	return cmd
}

func newRunsCmd(*app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List exported runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := stats.ListRunIndex(dir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s scape=%s seed=%d generations=%d best_fitness=%.6f created=%s\n",
					e.RunID, e.Scape, e.Seed, e.Generations, e.FinalBestFitness, e.CreatedAtUTC)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultArtifactsDir, "artifacts directory")
	return cmd
}

func newCompareCmd(*app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "compare <run-id>...",
		Short: "Average the best-fitness series of exported runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series := make([][]float64, 0, len(args))
			for _, runID := range args {
				s, ok, err := stats.ReadFitnessSeries(dir, runID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: exported run %s", sigevo.ErrNotFound, runID)
				}
				if len(s) == 0 {
					return fmt.Errorf("exported run %s has no generations", runID)
				}
				series = append(series, s)
			}
			for _, p := range stats.AveragePlot(series, 0, 1) {
				fmt.Fprintf(cmd.OutOrStdout(), "generation=%d mean_best_fitness=%.6f\n", p.Index, p.Value)
			}
			for i, p := range stats.MaxPlot(series, 0, 1) {
				fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s peak_fitness=%.6f\n", args[i], p.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultArtifactsDir, "artifacts directory")
	return cmd
}

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sigevo/internal/genotype"
	"sigevo/pkg/sigevo"
)

// withClient runs fn against a client that is closed afterwards.
func (a *app) withClient(cmd *cobra.Command, fn func(*sigevo.Client) error) error {
	client, closeClient, err := a.client(cmd, nil)
	if err != nil {
		return err
	}
	defer closeClient()
	return fn(client)
}

func newLineageCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "lineage <run-id>",
		Short: "List the lineage records of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(client *sigevo.Client) error {
				records, err := client.Lineage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if limit > 0 && len(records) > limit {
					records = records[len(records)-limit:]
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "HASH\tGEN\tOPERATION\tFITNESS\tPARENTS")
				for _, r := range records {
					parents := make([]string, 0, len(r.Parents))
					for _, p := range r.Parents {
						parents = append(parents, fmt.Sprintf("%s:%g", p.Hash, p.Weight))
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%.4f\t%s\n", r.Hash, r.Generation, r.Operation, r.Fitness, strings.Join(parents, ","))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the last n records")
	return cmd
}

func newKinshipCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "kinship <run-id> <hash> <hash>",
		Short: "Score the kinship of two genomes of a run",
		Long: `Rebuilds the run's lineage and prints how much of each genome's ancestry the
other one shares, in both directions.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(client *sigevo.Client) error {
				report, err := client.Kinship(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "kinship %s->%s=%.6f\n", report.A, report.B, report.AB)
				fmt.Fprintf(cmd.OutOrStdout(), "kinship %s->%s=%.6f\n", report.B, report.A, report.BA)
				return nil
			})
		},
	}
}

func newFitnessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fitness <run-id>",
		Short: "Print the best fitness of every generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(client *sigevo.Client) error {
				history, err := client.FitnessHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for gen, best := range history {
					fmt.Fprintf(cmd.OutOrStdout(), "generation=%d best_fitness=%.6f\n", gen, best)
				}
				return nil
			})
		},
	}
}

func newDiagnosticsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics <run-id>",
		Short: "Print per-generation diagnostics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(client *sigevo.Client) error {
				diagnostics, err := client.Diagnostics(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "GEN\tBEST\tMEAN\tMIN\tKINSHIP\tDISTINCT\tNODES\tDISCARDED\tELITE\tCROSS\tMUT")
				for _, d := range diagnostics {
					fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.4f\t%.4f\t%d\t%.2f\t%d\t%d\t%d\t%d\n",
						d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.MeanKinship,
						d.DistinctGenomes, d.MeanNodeCount, d.Discarded, d.EliteCount, d.CrossoverCount, d.MutationCount)
				}
				return w.Flush()
			})
		},
	}
}

func newTopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "top <run-id>",
		Short: "List the best genomes of a run's final generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(client *sigevo.Client) error {
				top, err := client.TopGenomes(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, item := range top {
					fmt.Fprintf(cmd.OutOrStdout(), "rank=%d fitness=%.6f genome=%s\n", item.Rank, item.Fitness, item.GenomeID)
				}
				return nil
			})
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <genome-id>",
		Short: "Print a stored genome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(client *sigevo.Client) error {
				genome, err := client.Genome(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), genotype.Format(genome))
				return nil
			})
		},
	}
}

func newAuditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <genome-id>",
		Short: "Decode a stored genome and check its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(client *sigevo.Client) error {
				report, err := client.Audit(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "genome=%s ok nodes=%d sensors=%d decisions=%d\n", report.Genome, report.Nodes, report.Sensors, report.Decisions)
				return nil
			})
		},
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sigevo/internal/config"
	"sigevo/internal/logging"
	"sigevo/internal/storage"
	"sigevo/pkg/sigevo"
)

func main() {
	root := newRootCmd(newApp())
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger

	openStore func(cfg config.StoreConfig) (storage.Store, error)
}

func newApp() *app {
	return &app{
		logger: zap.NewNop(),
		openStore: func(cfg config.StoreConfig) (storage.Store, error) {
			return storage.NewStore(cfg.Kind, cfg.Path)
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sigevoctl",
		Short: "Evolve and inspect signal networks",
		Long: `sigevoctl breeds populations of signal networks in a scape and inspects
the genomes, lineage and history a run leaves in the store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "sigevo.yaml", "path to the YAML config")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level from the config")

	root.AddCommand(
		newInitCmd(a),
		newRunCmd(a),
		newLineageCmd(a),
		newKinshipCmd(a),
		newFitnessCmd(a),
		newDiagnosticsCmd(a),
		newTopCmd(a),
		newShowCmd(a),
		newAuditCmd(a),
		newExportCmd(a),
		newRunsCmd(a),
		newCompareCmd(a),
	)
	return root
}

// client opens the configured store behind a sigevo client. reg may be nil.
// The returned func closes it.
func (a *app) client(cmd *cobra.Command, reg prometheus.Registerer) (*sigevo.Client, func(), error) {
	store, err := a.openStore(a.cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	client, err := sigevo.New(cmd.Context(), sigevo.Options{Store: store, Logger: a.logger, Registerer: reg})
	if err != nil {
		return nil, nil, err
	}
	return client, func() {
		if err := client.Close(); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}, nil
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, closeClient, err := a.client(cmd, nil)
			if err != nil {
				return err
			}
			defer closeClient()
			fmt.Fprintf(cmd.OutOrStdout(), "initialized store=%s\n", a.cfg.Store.Kind)
			return nil
		},
	}
}

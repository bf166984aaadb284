package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clinical-triage-server/internal/api"
	"github.com/clinical-triage-server/internal/app"
	"github.com/clinical-triage-server/internal/config"
	"github.com/clinical-triage-server/internal/database"
	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/logging"
	"github.com/clinical-triage-server/internal/seed"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "triage-server",
		Short:         "Clinical triage decision support server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml (default: search ., ./config, /etc/clinical-triage-server)")

	rootCmd.AddCommand(serveCmd(&configFile))
	rootCmd.AddCommand(seedCmd(&configFile))
	rootCmd.AddCommand(migrateCmd(&configFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bootstrap loads and validates configuration and builds the logger.
func bootstrap(configFile string) (*config.Manager, *logrus.Logger, error) {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}

	configManager, err := config.NewManager(opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := configManager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger, err := logging.New(configManager.GetConfig().Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return configManager, logger, nil
}

func serveCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configManager, logger, err := bootstrap(*configFile)
			if err != nil {
				return err
			}
			cfg := configManager.GetConfig()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stores, err := app.OpenStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			triage, engine := app.NewTriageService(stores, cfg.Triage, logger)
			server := api.NewServer(configManager, triage, engine, stores.Records, logger)

			logger.WithFields(logrus.Fields{
				"environment": cfg.Environment,
				"host":        cfg.Server.Host,
				"port":        cfg.Server.Port,
			}).Info("Starting clinical triage server")

			if err := server.Start(ctx); err != nil {
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}
}

func seedCmd(configFile *string) *cobra.Command {
	var opts seed.Options

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the patient registry CSV and FHIR bundles into the record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			configManager, logger, err := bootstrap(*configFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			stores, err := app.OpenStores(ctx, configManager.GetConfig(), logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			report, err := seed.NewSeeder(stores.Writer, logger).Run(ctx, opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d patients and %d bundles\n", report.Patients, report.Bundles)
			for _, name := range report.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s: MRN not in registry\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.PatientsCSV, "patients", "", "patient registry CSV (patient_id, mrn, first_name, last_name, age, gender, race)")
	cmd.Flags().StringVar(&opts.BundlesDir, "bundles", "", "directory of FHIR bundle *.json files")
	return cmd
}

func migrateCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the record store schema",
	}

	run := func(cmd *cobra.Command, apply func(context.Context, *database.MigrationRunner) error) error {
		configManager, logger, err := bootstrap(*configFile)
		if err != nil {
			return err
		}
		runner, err := newMigrationRunner(configManager.GetConfig(), logger)
		if err != nil {
			return err
		}
		defer runner.Close()
		return apply(cmd.Context(), runner)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, r *database.MigrationRunner) error { return r.Up(ctx) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, r *database.MigrationRunner) error { return r.Down(ctx) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, r *database.MigrationRunner) error {
				version, dirty, err := r.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func newMigrationRunner(cfg *domain.Config, logger *logrus.Logger) (*database.MigrationRunner, error) {
	switch cfg.Store.Driver {
	case domain.StoreDriverPostgres:
		url := database.ConfigFromDomain(cfg.Database).URL()
		return database.NewMigrationRunner(url, database.DialectPostgres, logger)
	case domain.StoreDriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		return database.NewMigrationRunner(database.SQLiteURL(cfg.Store.SQLitePath), database.DialectSQLite, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

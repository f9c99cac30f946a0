package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medireport/platform/internal/catalog"
	"github.com/medireport/platform/internal/shared/config"
	"github.com/medireport/platform/internal/shared/database"
	"github.com/medireport/platform/internal/shared/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medireport",
		Short: "MediReport lab report API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runServer(cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			logger := logging.New(cfg.Log, cfg.Server.Env)
			count, err := database.Migrate(context.Background(), db.Pool, logger)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			statuses, err := database.Status(context.Background(), db.Pool)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSTATUS\tAPPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", "-"
				if s.Applied {
					status = "applied"
					appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Version, status, appliedAt)
			}
			return tw.Flush()
		},
	})

	return cmd
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [test-type]",
		Short: "Print the lab parameter catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer tw.Flush()

			for _, opt := range catalog.TestTypes() {
				if len(args) == 1 && string(opt.Value) != args[0] {
					continue
				}
				fmt.Fprintf(tw, "%s (%s)\n", opt.Label, opt.Value)
				for _, def := range catalog.Lookup(string(opt.Value)) {
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", def.Name, strings.TrimSpace(def.NormalRange), def.Unit)
				}
			}

			if len(args) == 1 && !catalog.IsValidTestType(args[0]) {
				return fmt.Errorf("unknown test type %q", args[0])
			}
			return nil
		},
	}
}

func openDatabase() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := database.New(context.Background(), cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

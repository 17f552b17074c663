package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skillmate/skillmate-core/config"
	"github.com/skillmate/skillmate-core/internal/infrastructure/persistence/postgres"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator) error {
		applied, err := m.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("database schema is up to date", logger.Int("applied", applied))
		return nil
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last applied migration",
	RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator) error {
		return m.Rollback(cmd.Context())
	}),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator) error {
		migrations, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
		for _, mig := range migrations {
			at := "pending"
			if mig.IsApplied {
				at = mig.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%03d\t%s\t%s\n", mig.Version, mig.Name, at)
		}
		return w.Flush()
	}),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func withMigrator(fn func(cmd *cobra.Command, m *postgres.Migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if cfg.Database.Driver != config.DriverPostgres {
			return errors.New("migrations require STORAGE_DRIVER=postgres")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Scheduler.JobTimeout)
		defer cancel()
		cmd.SetContext(ctx)

		conn, err := (&app{cfg: cfg, log: log}).connectDB(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		return fn(cmd, postgres.NewMigrator(conn))
	}
}

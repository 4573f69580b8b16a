package main

import (
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/infra/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the lead store schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateUp(cmd.Context(), cfg.Store, logger)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(func(db *sql.DB) error {
			if err := database.MigrateDown(cmd.Context(), db, cfg.Store.Driver); err != nil {
				return eris.Wrap(err, "migrate down")
			}
			logger.Info("migration_rolled_back", zap.String("driver", cfg.Store.Driver))
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(func(db *sql.DB) error {
			v, err := database.MigrationVersion(cmd.Context(), db, cfg.Store.Driver)
			if err != nil {
				return eris.Wrap(err, "migration version")
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		})
	},
}

func withMigrationDB(fn func(db *sql.DB) error) error {
	db, err := database.OpenMigrationDB(cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

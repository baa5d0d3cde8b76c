package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/runway/internal/cli"
	"github.com/Veraticus/runway/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on open, so this is only needed to prepare a
database ahead of time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			slog.Info("Starting database migration", "database", cfg.DatabasePath)

			store, err := initStorage(cmd.Context(), cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer func() { _ = store.Close() }()

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database is up to date: "+cfg.DatabasePath))
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/cbhlc-api/pkg/config"
	"github.com/noah-isme/cbhlc-api/pkg/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|redo|reset|version]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"up", "down", "status", "redo", "reset", "version", "up-to", "down-to"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close() //nolint:errcheck

			return database.RunMigrations(cmd.Context(), db.DB, args[0], args[1:]...)
		},
	}
}

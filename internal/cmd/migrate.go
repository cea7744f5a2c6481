package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
		logger := logging.New(cfg.LogLevel)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		gdb, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close(gdb)

		if err := db.Migrate(ctx, gdb); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations_applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

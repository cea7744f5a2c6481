package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/logging"
)

var releaseCmd = &cobra.Command{
	Use:   "release-expired",
	Short: "Release stock held by reservations past their deadline",
	Long: `release-expired runs the reservation sweeper once, until no expired
reservation is left. Use it from cron when the server's own sweeper is off.`,
	RunE: runRelease,
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	logger := logging.New(cfg.LogLevel)
	ctx := logging.IntoContext(cmd.Context(), logger)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := newApp(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer a.Close()

	total := 0
	for {
		n, err := a.orders.ReleaseExpired(ctx, time.Now())
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		total += n
	}
	logger.Info("release_expired_done", "released", total)
	return nil
}

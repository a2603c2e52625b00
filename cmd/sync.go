package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eldlit/pet-dispatch-deploy/app"
	"github.com/eldlit/pet-dispatch-deploy/config"
	"github.com/eldlit/pet-dispatch-deploy/infra/logger"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain pending calendar outbox jobs once and exit",
	RunE:  drainOutbox,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func drainOutbox(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Notify.Enabled = false
	cfg.Metrics.PrometheusEnabled = false

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("sync-command").Errorf("service close: %v", err)
		}
	}()

	remaining, err := svc.DrainOutbox(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("outbox drained, %d jobs still pending\n", remaining)
	return nil
}

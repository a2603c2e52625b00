package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eldlit/pet-dispatch-deploy/app"
	"github.com/eldlit/pet-dispatch-deploy/config"
	"github.com/eldlit/pet-dispatch-deploy/infra/logger"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print every driver's effective status and next ride",
	RunE:  printBoard,
}

func init() {
	rootCmd.AddCommand(boardCmd)
}

func printBoard(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// The board is read straight from the database; background workers are
	// not needed for a one-shot query.
	cfg.Notify.Enabled = false
	cfg.Metrics.PrometheusEnabled = false

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("board-command").Errorf("service close: %v", err)
		}
	}()

	snaps, err := svc.Engine.Board(context.Background())
	if err != nil {
		return fmt.Errorf("board: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDRIVER\tSTATUS\tNEXT RIDE")
	for _, s := range snaps {
		status := string(s.Status)
		if s.Conflict != nil {
			status = "CONFLICT " + fmt.Sprint(s.Conflict.RideIDs)
		}
		next := "-"
		if s.NextRide != nil {
			next = fmt.Sprintf("#%d %s at %s", s.NextRide.ID, s.NextRide.PetName, s.NextRide.ScheduledTime.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.DriverID, s.Name, status, next)
	}
	return w.Flush()
}

package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/arcsync/internal/db"
	"github.com/marcus/arcsync/internal/devicesync"
	"github.com/marcus/arcsync/internal/output"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay pending operations once",
	Long: `Runs a single drain of the pending queue and exits. Refuses to run
while an agent owns the data directory, since the agent drains on its own.`,
	GroupID: "devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		lock, err := db.AcquireAgentLock(cfg.DataDir, 200*time.Millisecond)
		if err != nil {
			if errors.Is(err, db.ErrAgentRunning) {
				output.Warning("an agent is running in %s and will sync on its own", cfg.DataDir)
				return nil
			}
			output.Error("%v", err)
			return err
		}
		defer lock.Release()

		database, err := db.Open(cfg.DataDir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		status, err := openStatus(ctx, cfg)
		if err != nil {
			output.Error("connectivity: %v", err)
			return err
		}

		res, err := newEngine(database, status, cfg).DrainOnce(ctx)
		switch {
		case errors.Is(err, devicesync.ErrSkipped):
			output.Warning("Offline; %d pending operations left in the queue.", countPending(ctx, database))
			return nil
		case err != nil:
			output.Error("sync: %v", err)
			return err
		}

		if res.Attempted == 0 {
			output.Info("Nothing to sync")
			return nil
		}
		if res.Failed > 0 {
			output.Warning("Synced %d of %d; %d failed and stay queued.", res.Applied, res.Attempted, res.Failed)
			return nil
		}
		output.Success("Synced %d pending operations.", res.Applied)
		return nil
	},
}

func countPending(ctx context.Context, database *db.DB) int {
	n, err := database.CountOperations(ctx)
	if err != nil {
		return 0
	}
	return n
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

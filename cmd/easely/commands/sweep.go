package commands

import (
	"context"
	"time"

	"github.com/keanlouis/easely/internal/printer"
	"github.com/spf13/cobra"
)

var sweepSyncCanvas bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reminder sweep and exit",
	Long: `Run a single backfill-and-dispatch cycle and exit.

Intended for deployments driving the sweep from an external cron instead
of the in-process schedule of 'easely serve'. The cycle:

  1. Backfill reminders for soon-due tasks that have none
  2. Select due reminders, claim each, and deliver via Messenger

With --sync-canvas, every onboarded user's Canvas assignments are
re-imported first, so newly published assignments pick up reminders in
the same cycle.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepSyncCanvas, "sync-canvas", false, "Re-import Canvas assignments for all users first")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runSweepOnce(ctx, a, sweepSyncCanvas)
	return nil
}

// runSweepOnce is shared between the one-shot sweep command and the
// in-process cron of 'easely serve'.
func runSweepOnce(ctx context.Context, a *app, syncCanvas bool) {
	now := time.Now()

	if syncCanvas && a.syncer != nil {
		users, err := a.client.ListUsers(ctx)
		if err != nil {
			printer.Warning("Canvas sync skipped: %v\n", err)
		} else {
			synced := a.syncer.SyncAll(ctx, users)
			printer.Info("Canvas sync imported %d new tasks\n", synced)
		}
	}

	backfilled, err := a.sched.Backfill(ctx, now)
	if err != nil {
		printer.Warning("Backfill: %v\n", err)
	} else if backfilled > 0 {
		printer.Info("Backfilled %d reminders\n", backfilled)
	}

	result, err := a.dispatcher.RunSweep(ctx, now)
	if err != nil {
		printer.Warning("Sweep: %v\n", err)
		return
	}
	printer.Success("Sweep done: %d processed, %d sent, %d retried, %d failed, %d skipped\n",
		result.Processed, result.Sent, result.Retried, result.Failed, result.Skipped)
}

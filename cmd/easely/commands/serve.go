package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keanlouis/easely/internal/printer"
	"github.com/keanlouis/easely/internal/webhook"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and reminder sweep",
	Long: `Run the Easely server process.

Starts the Messenger webhook endpoint (with /healthz) and an in-process
cron that periodically backfills reminders for Canvas-imported tasks and
sweeps due reminders for delivery.

The sweep schedule comes from reminder.sweep_cron in the configuration
file (hourly by default). Deployments that prefer an external scheduler
can run 'easely sweep' from cron instead and ignore the in-process one.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := webhook.NewServer(a.client, a.conv, a.notifier, a.cfg.Webhook.VerifyToken)
	if err := server.Start(a.cfg.Listen); err != nil {
		return printer.Error("Failed to start webhook server", err.Error(), nil)
	}
	printer.Success("Webhook server listening on %s\n", a.cfg.Listen)

	sweeper := cron.New()
	_, err = sweeper.AddFunc(a.cfg.Reminder.SweepCron, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		runSweepOnce(sweepCtx, a, true)
	})
	if err != nil {
		return printer.Error(
			"Invalid sweep schedule",
			err.Error(),
			[]string{"Fix reminder.sweep_cron in " + configPath},
		)
	}
	sweeper.Start()
	printer.Info("Reminder sweep scheduled: %s\n", a.cfg.Reminder.SweepCron)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	printer.Info("Received signal %v, shutting down gracefully...\n", sig)

	cronCtx := sweeper.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		printer.Warning("Webhook server shutdown: %v\n", err)
	}
	// Let an in-flight sweep finish before closing the Redis client
	<-cronCtx.Done()

	printer.Info("Easely stopped\n")
	return nil
}

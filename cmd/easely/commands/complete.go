package commands

import (
	"context"
	"errors"

	"github.com/keanlouis/easely/internal/printer"
	"github.com/keanlouis/easely/internal/resolver"
	"github.com/spf13/cobra"
)

var completeCancel bool

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task completed",
	Long: `Mark a task completed (or cancelled with --cancel), skipping any
reminders that have not fired yet.

The task ID may be a full UUID or a unique prefix of at least 6
characters, as shown by 'easely tasks'.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().BoolVar(&completeCancel, "cancel", false, "Cancel the task instead of completing it")
	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	taskID, err := resolver.ResolveTaskID(ctx, a.client, args[0])
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		if errors.As(err, &ambiguous) {
			return printer.Error("Ambiguous task ID", resolver.FormatAmbiguousError(ambiguous), nil)
		}
		return printer.Error("Task not found", err.Error(), []string{"Run 'easely tasks' to list task IDs"})
	}

	task, err := a.client.GetTask(ctx, taskID)
	if err != nil {
		return printer.Error("Failed to read task", err.Error(), nil)
	}

	if completeCancel {
		if err := a.client.MarkTaskCancelled(ctx, taskID); err != nil {
			return printer.Error("Failed to cancel task", err.Error(), nil)
		}
		printer.Success("Cancelled %q\n", task.Title)
		return nil
	}

	if err := a.client.MarkTaskCompleted(ctx, taskID); err != nil {
		return printer.Error("Failed to complete task", err.Error(), nil)
	}
	printer.Success("Completed %q\n", task.Title)
	return nil
}

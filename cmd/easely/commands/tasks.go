package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keanlouis/easely/internal/localtime"
	"github.com/keanlouis/easely/internal/printer"
	"github.com/keanlouis/easely/internal/timespec"
	"github.com/keanlouis/easely/pkg/store"
	"github.com/spf13/cobra"
)

var (
	tasksUser string
	tasksDue  string
	tasksDays int
	tasksFrom string
	tasksTo   string
	tasksJSON bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks by due window",
	Long: `List tasks from the Redis store, for operators debugging a deployment.

The --due filter selects the window:
  today     due before local midnight tonight
  week      due within the next --days days
  overdue   due before the start of local today, still active
  upcoming  due within the next year (default)

A custom window can be given instead with --from/--to, each either an
RFC3339 timestamp or a duration relative to now ("24h", "1h30m").

With --user only that user's tasks are shown; otherwise all tasks in the
window. Use --json for machine-readable output.`,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksUser, "user", "", "Limit to one user ID")
	tasksCmd.Flags().StringVar(&tasksDue, "due", "upcoming", "Due window: today, week, overdue or upcoming")
	tasksCmd.Flags().IntVar(&tasksDays, "days", 7, "Horizon in days for --due week")
	tasksCmd.Flags().StringVar(&tasksFrom, "from", "", "Custom window start (RFC3339 or duration from now)")
	tasksCmd.Flags().StringVar(&tasksTo, "to", "", "Custom window end (RFC3339 or duration from now)")
	tasksCmd.Flags().BoolVar(&tasksJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now()
	var window localtime.Window
	label := tasksDue

	if tasksFrom != "" || tasksTo != "" {
		fromMS, toMS, err := timespec.ParseRange(tasksFrom, tasksTo, now)
		if err != nil {
			return printer.Error("Invalid due window", err.Error(), nil)
		}
		if fromMS == 0 {
			fromMS = 1
		}
		if toMS == 0 {
			toMS = a.engine.UpcomingWindow(now, 365).ToMs
		}
		window = localtime.Window{FromMs: fromMS, ToMs: toMS}
		label = "in window"
	} else {
		switch tasksDue {
		case "today":
			window = a.engine.TodayWindow(now)
		case "week":
			window = a.engine.WeekWindow(now, tasksDays)
		case "overdue":
			window = a.engine.OverdueWindow(now)
		case "upcoming":
			window = a.engine.UpcomingWindow(now, 365)
		default:
			return printer.Error(
				fmt.Sprintf("Unknown due window %q", tasksDue),
				"The --due flag accepts: today, week, overdue, upcoming.",
				nil,
			)
		}
		label = "due " + tasksDue
	}

	var tasks []*store.Task
	if tasksUser != "" {
		tasks, err = a.client.ListTasksByOwnerDueBetween(ctx, tasksUser, window.FromMs, window.ToMs)
	} else {
		tasks, err = a.client.ListTasksDueBetween(ctx, window.FromMs, window.ToMs)
	}
	if err != nil {
		return printer.Error("Failed to list tasks", err.Error(), nil)
	}

	active := tasks[:0]
	for _, t := range tasks {
		if t.Active() {
			active = append(active, t)
		}
	}

	if tasksJSON {
		data, err := json.MarshalIndent(active, "", "  ")
		if err != nil {
			return printer.Error("Failed to marshal tasks", err.Error(), nil)
		}
		printer.Println(string(data))
		return nil
	}

	if len(active) == 0 {
		printer.Info("No active tasks %s.\n", label)
		return nil
	}

	printer.Heading("%d active tasks %s", len(active), label)
	for _, t := range active {
		printer.Println(printer.TaskLine(t.Title, t.Course, a.engine.FormatDue(t.DueAtMs), a.engine.IsOverdue(t.DueAtMs, now)))
	}
	return nil
}

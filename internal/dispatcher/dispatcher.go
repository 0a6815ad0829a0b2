// Package dispatcher delivers due reminders. It runs as a stateless periodic
// sweep: every invocation re-reads store state, claims each due reminder
// atomically, and records the outcome, so overlapping sweeps never deliver
// the same reminder twice.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/keanlouis/easely/internal/localtime"
	"github.com/keanlouis/easely/internal/notify"
	"github.com/keanlouis/easely/pkg/store"
)

const (
	// DefaultMaxRetries is the delivery attempt ceiling per reminder.
	DefaultMaxRetries = 3

	// DefaultClaimTTL bounds how long a crashed sweep can hold a claim.
	DefaultClaimTTL = 10 * time.Minute
)

// Dispatcher owns the due-reminder sweep.
type Dispatcher struct {
	client     *store.Client
	notifier   notify.Notifier
	engine     *localtime.Engine
	maxRetries int
	claimTTL   time.Duration
}

// NewDispatcher creates a dispatcher with the default retry ceiling and
// claim TTL.
func NewDispatcher(client *store.Client, notifier notify.Notifier, engine *localtime.Engine) *Dispatcher {
	return &Dispatcher{
		client:     client,
		notifier:   notifier,
		engine:     engine,
		maxRetries: DefaultMaxRetries,
		claimTTL:   DefaultClaimTTL,
	}
}

// SetMaxRetries overrides the delivery attempt ceiling. Values below 1 are
// ignored.
func (d *Dispatcher) SetMaxRetries(n int) {
	if n >= 1 {
		d.maxRetries = n
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Processed int // Reminders this sweep claimed and acted on
	Sent      int // Delivered and recorded as sent
	Failed    int // Retries exhausted or non-retryable failure
	Skipped   int // Owning task gone or no longer active
	Retried   int // Transient failure, left pending for the next sweep
}

// RunSweep processes every reminder due at the given instant. Safe to invoke
// concurrently with itself: each reminder is claimed atomically and losers
// move on. Delivery problems are recorded per reminder and never abort the
// sweep; only store failures on the selection path do.
func (d *Dispatcher) RunSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	due, err := d.client.SelectDueReminders(ctx, now.UnixMilli())
	if err != nil {
		return result, fmt.Errorf("failed to select due reminders: %w", err)
	}

	for _, reminder := range due {
		claimed, err := d.client.ClaimReminder(ctx, reminder.ID, d.claimTTL)
		if err != nil {
			return result, fmt.Errorf("failed to claim reminder %s: %w", reminder.ID, err)
		}
		if !claimed {
			continue
		}

		// Re-read under the claim: the selection snapshot may be stale by
		// the time this reminder is reached.
		fresh, err := d.client.GetReminder(ctx, reminder.ID)
		if err != nil || fresh.Status != store.ReminderStatusPending {
			d.releaseClaim(ctx, reminder.ID)
			continue
		}

		result.Processed++
		d.processReminder(ctx, fresh, now, &result)
	}

	if result.Processed > 0 {
		d.logEvent("sweep_complete", map[string]interface{}{
			"processed": result.Processed,
			"sent":      result.Sent,
			"failed":    result.Failed,
			"skipped":   result.Skipped,
			"retried":   result.Retried,
		})
	}

	return result, nil
}

func (d *Dispatcher) processReminder(ctx context.Context, reminder *store.Reminder, now time.Time, result *SweepResult) {
	task, err := d.client.GetTask(ctx, reminder.TaskID)
	if store.IsNotFound(err) {
		d.recordSkip(ctx, reminder, "task missing", result)
		return
	}
	if err != nil {
		log.Printf("[Dispatcher] Error loading task for reminder %s: %v", reminder.ID, err)
		d.releaseClaim(ctx, reminder.ID)
		return
	}
	if !task.Active() {
		d.recordSkip(ctx, reminder, "task inactive", result)
		return
	}

	sendErr := d.notifier.Send(ctx, task.OwnerID, RenderMessage(task, reminder.Type, d.engine))
	if sendErr == nil {
		meta := &store.ReminderMeta{SentAtMs: now.UnixMilli(), RetryCount: reminder.RetryCount}
		if err := d.client.UpdateReminderStatus(ctx, reminder.ID, store.ReminderStatusSent, meta); err != nil {
			// The notification went out but the record didn't stick. Leave
			// the reminder pending: a duplicate send beats a lost one.
			log.Printf("[Dispatcher] Error recording sent reminder %s: %v", reminder.ID, err)
			d.releaseClaim(ctx, reminder.ID)
			return
		}
		result.Sent++
		return
	}

	retries := reminder.RetryCount + 1
	meta := &store.ReminderMeta{RetryCount: retries, LastError: sendErr.Error()}

	if !notify.IsRetryable(sendErr) || retries >= d.maxRetries {
		if err := d.client.UpdateReminderStatus(ctx, reminder.ID, store.ReminderStatusFailed, meta); err != nil {
			log.Printf("[Dispatcher] Error recording failed reminder %s: %v", reminder.ID, err)
			d.releaseClaim(ctx, reminder.ID)
			return
		}
		result.Failed++
		d.logEvent("reminder_failed", map[string]interface{}{
			"reminder_id": reminder.ID,
			"task_id":     reminder.TaskID,
			"retries":     retries,
			"error":       sendErr.Error(),
		})
		return
	}

	if err := d.client.UpdateReminderStatus(ctx, reminder.ID, store.ReminderStatusPending, meta); err != nil {
		log.Printf("[Dispatcher] Error recording retry for reminder %s: %v", reminder.ID, err)
	}
	// Free the claim so the next sweep retries without waiting out the TTL.
	d.releaseClaim(ctx, reminder.ID)
	result.Retried++
}

func (d *Dispatcher) recordSkip(ctx context.Context, reminder *store.Reminder, reason string, result *SweepResult) {
	meta := &store.ReminderMeta{RetryCount: reminder.RetryCount, LastError: reason}
	if err := d.client.UpdateReminderStatus(ctx, reminder.ID, store.ReminderStatusSkipped, meta); err != nil {
		log.Printf("[Dispatcher] Error recording skipped reminder %s: %v", reminder.ID, err)
		d.releaseClaim(ctx, reminder.ID)
		return
	}
	result.Skipped++
}

func (d *Dispatcher) releaseClaim(ctx context.Context, reminderID string) {
	if err := d.client.ReleaseReminderClaim(ctx, reminderID); err != nil {
		log.Printf("[Dispatcher] Error releasing claim for reminder %s: %v", reminderID, err)
	}
}

// reminderLabels render the type tag as lead-time phrasing.
var reminderLabels = map[store.ReminderType]string{
	store.ReminderType1Week: "1 week",
	store.ReminderType3Days: "3 days",
	store.ReminderType1Day:  "1 day",
	store.ReminderType8Hour: "8 hours",
	store.ReminderType2Hour: "2 hours",
	store.ReminderType1Hour: "1 hour",
}

// RenderMessage builds the user-facing reminder text for a task.
func RenderMessage(task *store.Task, rt store.ReminderType, engine *localtime.Engine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ Reminder: %q is due in %s!\n", task.Title, reminderLabels[rt])
	if task.Course != "" {
		fmt.Fprintf(&b, "📚 Course: %s\n", task.Course)
	}
	fmt.Fprintf(&b, "📅 Due: %s", engine.FormatDue(task.DueAtMs))
	if task.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s", task.Description)
	}
	return b.String()
}

// logEvent logs a structured event in JSON format.
func (d *Dispatcher) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "dispatcher"
	data["event_type"] = eventType
	data["instance"] = d.client.InstanceName()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Dispatcher] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

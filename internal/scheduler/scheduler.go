// Package scheduler translates a due-dated task into its set of pending
// reminders according to the owning user's tier.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/keanlouis/easely/pkg/store"
)

// tierOffset pairs a reminder type with its lead time before the due instant.
type tierOffset struct {
	Type   store.ReminderType
	Offset time.Duration
}

var tierOffsets = map[store.Tier][]tierOffset{
	store.TierFree: {
		{store.ReminderType1Day, 24 * time.Hour},
	},
	store.TierPremium: {
		{store.ReminderType1Week, 7 * 24 * time.Hour},
		{store.ReminderType3Days, 3 * 24 * time.Hour},
		{store.ReminderType1Day, 24 * time.Hour},
		{store.ReminderType8Hour, 8 * time.Hour},
		{store.ReminderType2Hour, 2 * time.Hour},
		{store.ReminderType1Hour, time.Hour},
	},
}

// maxOffset is the longest lead time across all tiers. Tasks due further out
// than this cannot have a due reminder yet, which bounds the backfill scan.
const maxOffset = 7 * 24 * time.Hour

// Scheduler creates reminders. It is a pure side-effect component: delivery
// belongs to the dispatcher.
type Scheduler struct {
	client *store.Client
}

// NewScheduler creates a scheduler backed by the given store.
func NewScheduler(client *store.Client) *Scheduler {
	return &Scheduler{client: client}
}

// Schedule creates the tier's reminders for a task. Trigger instants at or
// before now are never created, so a task due in two hours on a free tier
// gets no reminder at all rather than an immediately-firing one. Safe to
// re-invoke: existing (task, type) reminders are left untouched.
//
// Returns the number of reminders actually created.
func (s *Scheduler) Schedule(ctx context.Context, task *store.Task, tier store.Tier, now time.Time) (int, error) {
	if err := tier.Validate(); err != nil {
		return 0, fmt.Errorf("invalid tier: %w", err)
	}

	if !task.Active() {
		return 0, nil
	}

	nowMs := now.UnixMilli()
	created := 0

	for _, offset := range tierOffsets[tier] {
		triggerMs := task.DueAtMs - offset.Offset.Milliseconds()
		if triggerMs <= nowMs {
			continue
		}

		reminder := &store.Reminder{
			ID:          uuid.New().String(),
			TaskID:      task.ID,
			Type:        offset.Type,
			TriggerAtMs: triggerMs,
			Status:      store.ReminderStatusPending,
		}

		inserted, err := s.client.InsertReminderIfAbsent(ctx, reminder)
		if err != nil {
			return created, fmt.Errorf("failed to create %s reminder for task %s: %w", offset.Type, task.ID, err)
		}
		if inserted {
			created++
		}
	}

	if created > 0 {
		s.logEvent("reminders_scheduled", map[string]interface{}{
			"task_id": task.ID,
			"tier":    string(tier),
			"created": created,
		})
	}

	return created, nil
}

// Backfill re-runs Schedule for every active task due within the maximum
// offset horizon. Creation is idempotent per (task, type), so this converges
// rather than duplicates: it picks up tasks that arrived outside the creation
// flow (an external assignment sync), fills in types a tier upgrade newly
// entitles the owner to, and heals partially-created ladders.
//
// Returns the number of reminders created across all tasks.
func (s *Scheduler) Backfill(ctx context.Context, now time.Time) (int, error) {
	nowMs := now.UnixMilli()
	tasks, err := s.client.ListTasksDueBetween(ctx, nowMs, nowMs+maxOffset.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("failed to list tasks for backfill: %w", err)
	}

	created := 0
	for _, task := range tasks {
		if !task.Active() {
			continue
		}

		tier := store.TierFree
		user, err := s.client.GetUser(ctx, task.OwnerID)
		if err != nil && !store.IsNotFound(err) {
			return created, err
		}
		if err == nil {
			tier = user.Tier
		}

		n, err := s.Schedule(ctx, task, tier, now)
		if err != nil {
			return created, err
		}
		created += n
	}

	if created > 0 {
		s.logEvent("reminders_backfilled", map[string]interface{}{
			"created": created,
		})
	}

	return created, nil
}

// logEvent logs a structured event in JSON format.
func (s *Scheduler) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "scheduler"
	data["event_type"] = eventType
	data["instance"] = s.client.InstanceName()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Scheduler] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

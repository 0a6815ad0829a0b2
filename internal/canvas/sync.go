package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/keanlouis/easely/pkg/store"
)

// ReminderScheduler recomputes a task's reminders. Satisfied by
// scheduler.Scheduler; an interface here keeps the dependency one-way.
type ReminderScheduler interface {
	Schedule(ctx context.Context, task *store.Task, tier store.Tier, now time.Time) (int, error)
}

// Syncer mirrors a user's Canvas assignments into the task store.
type Syncer struct {
	client *Client
	store  *store.Client
	sched  ReminderScheduler
	now    func() time.Time
}

// NewSyncer creates a syncer. sched may be nil, in which case moved due
// dates still invalidate stale reminders but fresh ones wait for the next
// backfill sweep.
func NewSyncer(client *Client, storeClient *store.Client, sched ReminderScheduler) *Syncer {
	return &Syncer{client: client, store: storeClient, sched: sched, now: time.Now}
}

// Sync fetches the user's assignments and upserts the future-dated ones as
// canvas-origin tasks, keyed by assignment ID so repeated syncs refresh
// rather than duplicate. When a refresh moves a due date, the task's pending
// reminders are skipped and rescheduled against the new due instant, so a
// deadline pushed back on Canvas never fires reminders computed from the old
// one. Returns the number of newly created tasks; their own reminders are
// left to the backfill sweep.
func (s *Syncer) Sync(ctx context.Context, userID, token string) (int, error) {
	assignments, err := s.client.FetchAssignments(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch assignments: %w", err)
	}

	nowMs := s.now().UnixMilli()
	created := 0
	var moved []*store.Task

	for _, a := range assignments {
		dueMs := a.DueAt.UnixMilli()
		if dueMs <= nowMs {
			continue
		}

		task := &store.Task{
			ID:                 uuid.New().String(),
			OwnerID:            userID,
			Title:              a.Name,
			Course:             a.Course,
			DueAtMs:            dueMs,
			Origin:             store.OriginCanvas,
			CanvasAssignmentID: a.AssignmentKey(),
			CreatedAtMs:        nowMs,
		}

		isNew, dueChanged, err := s.store.UpsertCanvasTask(ctx, task)
		if err != nil {
			return created, fmt.Errorf("failed to upsert assignment %d: %w", a.ID, err)
		}
		if isNew {
			created++
		}
		if dueChanged {
			// task.ID now holds the canonical ID of the refreshed record.
			moved = append(moved, task)
		}
	}

	if len(moved) > 0 {
		if err := s.rescheduleMoved(ctx, userID, moved); err != nil {
			return created, err
		}
	}

	if created > 0 {
		s.logEvent("canvas_synced", map[string]interface{}{
			"user_id": userID,
			"created": created,
			"fetched": len(assignments),
		})
	}

	return created, nil
}

// rescheduleMoved invalidates the pending reminders of tasks whose due
// instant moved and recomputes them at the owner's tier.
func (s *Syncer) rescheduleMoved(ctx context.Context, userID string, moved []*store.Task) error {
	tier := store.TierFree
	user, err := s.store.GetUser(ctx, userID)
	if err != nil && !store.IsNotFound(err) {
		return err
	}
	if err == nil {
		tier = user.Tier
	}

	for _, task := range moved {
		if err := s.store.SkipPendingReminders(ctx, task.ID, "due date changed"); err != nil {
			return err
		}
		if s.sched == nil {
			continue
		}
		if _, err := s.sched.Schedule(ctx, task, tier, s.now()); err != nil {
			return err
		}
	}

	s.logEvent("reminders_rescheduled", map[string]interface{}{
		"user_id": userID,
		"moved":   len(moved),
	})
	return nil
}

// SyncAll runs a sync for every onboarded user holding a token. Called from
// the periodic sweep so due dates pushed back on Canvas reach the store
// without user interaction. Per-user failures are logged and skipped.
func (s *Syncer) SyncAll(ctx context.Context, users []*store.User) int {
	created := 0
	for _, user := range users {
		if user.CanvasToken == "" {
			continue
		}
		n, err := s.Sync(ctx, user.ID, user.CanvasToken)
		if err != nil {
			log.Printf("[Canvas] Sync failed for %s: %v", user.ID, err)
			continue
		}
		created += n
	}
	return created
}

// logEvent logs a structured event in JSON format.
func (s *Syncer) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "canvas"
	data["event_type"] = eventType
	data["instance"] = s.store.InstanceName()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Canvas] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

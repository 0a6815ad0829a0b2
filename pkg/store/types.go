// Package store provides type-safe Go definitions and Redis schema patterns
// for the Easely durable state store. All user, task, reminder and session
// records live in Redis as well-defined hash structures, so that a process
// restart never drops an in-flight dialog or a pending reminder.
//
// All Redis keys are namespaced by instance name to enable multiple Easely
// deployments to safely coexist on a single Redis server.
package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Tier is a user's subscription level. It determines the reminder cadence
// applied when a task is scheduled.
type Tier string

const (
	// TierFree receives a single reminder 24 hours before the due instant
	TierFree Tier = "free"

	// TierPremium receives the full reminder cascade (1w, 3d, 1d, 8h, 2h, 1h)
	TierPremium Tier = "premium"
)

// TaskOrigin records how a task entered the system.
type TaskOrigin string

const (
	// OriginManual marks tasks authored by the user through the creation dialog
	OriginManual TaskOrigin = "manual"

	// OriginCanvas marks tasks imported from the Canvas LMS sync
	OriginCanvas TaskOrigin = "canvas"
)

// ReminderType tags a reminder with the offset it was scheduled at.
// For a given (task, type) pair at most one reminder ever exists.
type ReminderType string

const (
	ReminderType1Week ReminderType = "1w"
	ReminderType3Days ReminderType = "3d"
	ReminderType1Day  ReminderType = "1d"
	ReminderType8Hour ReminderType = "8h"
	ReminderType2Hour ReminderType = "2h"
	ReminderType1Hour ReminderType = "1h"
)

// ReminderStatus is the delivery lifecycle state of a reminder.
// Transitions: pending → sent (success), pending → pending (transient failure,
// retry count incremented), pending → failed (retries exhausted),
// pending → skipped (owning task no longer active, or trigger already past).
type ReminderStatus string

const (
	ReminderStatusPending ReminderStatus = "pending"
	ReminderStatusSent    ReminderStatus = "sent"
	ReminderStatusFailed  ReminderStatus = "failed"
	ReminderStatusSkipped ReminderStatus = "skipped"
)

// User is the per-sender account record. The platform sender ID doubles as
// the primary key; there is no separate internal user ID.
type User struct {
	ID             string `json:"id"`              // Platform-assigned sender ID
	Tier           Tier   `json:"tier"`            // Subscription level, defaults to free
	OnboardingDone bool   `json:"onboarding_done"` // Consent + Canvas setup completed
	CanvasToken    string `json:"canvas_token"`    // LMS access token, empty if not connected
	CreatedAtMs    int64  `json:"created_at_ms"`   // Unix milliseconds at first contact
	LastSeenAtMs   int64  `json:"last_seen_at_ms"` // Unix milliseconds of most recent inbound event
}

// Task is a due item owned by a user. The due instant is stored as an
// absolute Unix-millisecond timestamp; all "today"/"this week"/"overdue"
// classification happens against the operational timezone, never against
// the raw server clock.
type Task struct {
	ID                 string     `json:"id"`                   // UUID
	OwnerID            string     `json:"owner_id"`             // Platform sender ID of the owning user
	Title              string     `json:"title"`                //
	Description        string     `json:"description"`          // Optional
	Course             string     `json:"course"`               // Optional course name
	DueAtMs            int64      `json:"due_at_ms"`            // Absolute due instant, Unix milliseconds
	Origin             TaskOrigin `json:"origin"`               // manual or canvas
	CanvasAssignmentID string     `json:"canvas_assignment_id"` // Set only for canvas-origin tasks
	Completed          bool       `json:"completed"`            //
	Cancelled          bool       `json:"cancelled"`            //
	CreatedAtMs        int64      `json:"created_at_ms"`        //
}

// Active reports whether the task should still produce reminders.
func (t *Task) Active() bool {
	return !t.Completed && !t.Cancelled
}

// Reminder is a scheduled one-shot notification tied to exactly one task.
type Reminder struct {
	ID          string         `json:"id"`            // UUID
	TaskID      string         `json:"task_id"`       // Owning task UUID
	Type        ReminderType   `json:"type"`          // Offset tag, unique per task
	TriggerAtMs int64          `json:"trigger_at_ms"` // Absolute trigger instant, Unix milliseconds
	Status      ReminderStatus `json:"status"`        //
	SentAtMs    int64          `json:"sent_at_ms"`    // Set when status becomes sent
	RetryCount  int            `json:"retry_count"`   // Delivery attempts that failed so far
	LastError   string         `json:"last_error"`    // Most recent delivery failure reason
}

// Due reports whether the reminder is eligible for dispatch at the given instant.
func (r *Reminder) Due(nowMs int64) bool {
	return r.Status == ReminderStatusPending && r.TriggerAtMs <= nowMs
}

// Session is a user's position inside a multi-step dialog. Each user has at
// most one active session: the record is stored under a per-user key with a
// Redis TTL, so writing a new session atomically supersedes the old one and
// expiry needs no sweeper.
//
// Flow and Step values are owned by the conversation package; the store
// treats them as opaque strings.
type Session struct {
	UserID      string            `json:"user_id"`
	Flow        string            `json:"flow"`          // e.g. "create_task", "onboarding"
	Step        string            `json:"step"`          // e.g. "awaiting_title"
	Fields      map[string]string `json:"fields"`        // Partially collected dialog fields
	CreatedAtMs int64             `json:"created_at_ms"` //
}

// Validate checks if the Tier is a valid enum value.
func (t Tier) Validate() error {
	switch t {
	case TierFree, TierPremium:
		return nil
	default:
		return fmt.Errorf("unknown tier: %q", t)
	}
}

// Validate checks if the TaskOrigin is a valid enum value.
func (o TaskOrigin) Validate() error {
	switch o {
	case OriginManual, OriginCanvas:
		return nil
	default:
		return fmt.Errorf("unknown task origin: %q", o)
	}
}

// Validate checks if the ReminderType is a valid enum value.
func (rt ReminderType) Validate() error {
	switch rt {
	case ReminderType1Week, ReminderType3Days, ReminderType1Day,
		ReminderType8Hour, ReminderType2Hour, ReminderType1Hour:
		return nil
	default:
		return fmt.Errorf("unknown reminder type: %q", rt)
	}
}

// Validate checks if the ReminderStatus is a valid enum value.
func (rs ReminderStatus) Validate() error {
	switch rs {
	case ReminderStatusPending, ReminderStatusSent,
		ReminderStatusFailed, ReminderStatusSkipped:
		return nil
	default:
		return fmt.Errorf("unknown reminder status: %q", rs)
	}
}

// Validate checks if the User has valid field values.
func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	if err := u.Tier.Validate(); err != nil {
		return fmt.Errorf("invalid tier: %w", err)
	}

	return nil
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}

	if t.OwnerID == "" {
		return fmt.Errorf("task owner ID cannot be empty")
	}

	if t.Title == "" {
		return fmt.Errorf("task title cannot be empty")
	}

	if t.DueAtMs <= 0 {
		return fmt.Errorf("invalid due instant: must be > 0, got %d", t.DueAtMs)
	}

	if err := t.Origin.Validate(); err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}

	if t.Origin == OriginCanvas && t.CanvasAssignmentID == "" {
		return fmt.Errorf("canvas-origin task missing assignment ID")
	}

	return nil
}

// Validate checks if the Reminder has valid field values.
func (r *Reminder) Validate() error {
	if !isValidUUID(r.ID) {
		return fmt.Errorf("invalid reminder ID: not a valid UUID")
	}

	if !isValidUUID(r.TaskID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}

	if err := r.Type.Validate(); err != nil {
		return fmt.Errorf("invalid type: %w", err)
	}

	if err := r.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if r.TriggerAtMs <= 0 {
		return fmt.Errorf("invalid trigger instant: must be > 0, got %d", r.TriggerAtMs)
	}

	return nil
}

// Validate checks if the Session has valid field values.
func (s *Session) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("session user ID cannot be empty")
	}

	if s.Flow == "" {
		return fmt.Errorf("session flow cannot be empty")
	}

	if s.Step == "" {
		return fmt.Errorf("session step cannot be empty")
	}

	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Complex fields like the
// session field map are JSON-encoded into single hash fields. This provides a
// balance between queryability (individual fields) and flexibility.

// UserToHash converts a User struct to a Redis hash format.
func UserToHash(u *User) map[string]interface{} {
	return map[string]interface{}{
		"id":              u.ID,
		"tier":            string(u.Tier),
		"onboarding_done": u.OnboardingDone,
		"canvas_token":    u.CanvasToken,
		"created_at_ms":   u.CreatedAtMs,
		"last_seen_at_ms": u.LastSeenAtMs,
	}
}

// HashToUser converts a Redis hash to a User struct.
func HashToUser(hash map[string]string) (*User, error) {
	onboardingDone, _ := strconv.ParseBool(hash["onboarding_done"])
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	lastSeenAtMs, _ := strconv.ParseInt(hash["last_seen_at_ms"], 10, 64)

	user := &User{
		ID:             hash["id"],
		Tier:           Tier(hash["tier"]),
		OnboardingDone: onboardingDone,
		CanvasToken:    hash["canvas_token"],
		CreatedAtMs:    createdAtMs,
		LastSeenAtMs:   lastSeenAtMs,
	}

	return user, nil
}

// TaskToHash converts a Task struct to a Redis hash format.
func TaskToHash(t *Task) map[string]interface{} {
	return map[string]interface{}{
		"id":                   t.ID,
		"owner_id":             t.OwnerID,
		"title":                t.Title,
		"description":          t.Description,
		"course":               t.Course,
		"due_at_ms":            t.DueAtMs,
		"origin":               string(t.Origin),
		"canvas_assignment_id": t.CanvasAssignmentID,
		"completed":            t.Completed,
		"cancelled":            t.Cancelled,
		"created_at_ms":        t.CreatedAtMs,
	}
}

// HashToTask converts a Redis hash to a Task struct.
func HashToTask(hash map[string]string) (*Task, error) {
	dueAtMs, err := strconv.ParseInt(hash["due_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid due_at_ms field: %w", err)
	}

	completed, _ := strconv.ParseBool(hash["completed"])
	cancelled, _ := strconv.ParseBool(hash["cancelled"])
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	task := &Task{
		ID:                 hash["id"],
		OwnerID:            hash["owner_id"],
		Title:              hash["title"],
		Description:        hash["description"],
		Course:             hash["course"],
		DueAtMs:            dueAtMs,
		Origin:             TaskOrigin(hash["origin"]),
		CanvasAssignmentID: hash["canvas_assignment_id"],
		Completed:          completed,
		Cancelled:          cancelled,
		CreatedAtMs:        createdAtMs,
	}

	return task, nil
}

// ReminderToHash converts a Reminder struct to a Redis hash format.
func ReminderToHash(r *Reminder) map[string]interface{} {
	return map[string]interface{}{
		"id":            r.ID,
		"task_id":       r.TaskID,
		"type":          string(r.Type),
		"trigger_at_ms": r.TriggerAtMs,
		"status":        string(r.Status),
		"sent_at_ms":    r.SentAtMs,
		"retry_count":   r.RetryCount,
		"last_error":    r.LastError,
	}
}

// HashToReminder converts a Redis hash to a Reminder struct.
func HashToReminder(hash map[string]string) (*Reminder, error) {
	triggerAtMs, err := strconv.ParseInt(hash["trigger_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger_at_ms field: %w", err)
	}

	sentAtMs, _ := strconv.ParseInt(hash["sent_at_ms"], 10, 64)
	retryCount, _ := strconv.Atoi(hash["retry_count"])

	reminder := &Reminder{
		ID:          hash["id"],
		TaskID:      hash["task_id"],
		Type:        ReminderType(hash["type"]),
		TriggerAtMs: triggerAtMs,
		Status:      ReminderStatus(hash["status"]),
		SentAtMs:    sentAtMs,
		RetryCount:  retryCount,
		LastError:   hash["last_error"],
	}

	return reminder, nil
}

// SessionToHash converts a Session struct to a Redis hash format.
// The field map is JSON-encoded into a single hash field.
func SessionToHash(s *Session) (map[string]interface{}, error) {
	fieldsJSON, err := json.Marshal(s.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session fields: %w", err)
	}

	hash := map[string]interface{}{
		"user_id":       s.UserID,
		"flow":          s.Flow,
		"step":          s.Step,
		"fields":        string(fieldsJSON),
		"created_at_ms": s.CreatedAtMs,
	}

	return hash, nil
}

// HashToSession converts a Redis hash to a Session struct.
func HashToSession(hash map[string]string) (*Session, error) {
	var fields map[string]string
	if fieldsJSON := hash["fields"]; fieldsJSON != "" {
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session fields: %w", err)
		}
	}

	// Ensure we have an empty map instead of nil for consistency
	if fields == nil {
		fields = map[string]string{}
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	session := &Session{
		UserID:      hash["user_id"],
		Flow:        hash["flow"],
		Step:        hash["step"],
		Fields:      fields,
		CreatedAtMs: createdAtMs,
	}

	return session, nil
}

package store

import "fmt"

// Redis key pattern helpers
//
// All Redis keys are namespaced by instance name to enable multiple Easely
// deployments to safely coexist on a single Redis server.
//
// Key pattern: easely:{instance_name}:{entity}:{id}

// UserKey returns the Redis key for a user record.
// Pattern: easely:{instance_name}:user:{user_id}
func UserKey(instanceName, userID string) string {
	return fmt.Sprintf("easely:%s:user:%s", instanceName, userID)
}

// UsersKey returns the Redis key for the set of all known user IDs.
// Pattern: easely:{instance_name}:users
func UsersKey(instanceName string) string {
	return fmt.Sprintf("easely:%s:users", instanceName)
}

// TaskKey returns the Redis key for a task record.
// Pattern: easely:{instance_name}:task:{task_id}
func TaskKey(instanceName, taskID string) string {
	return fmt.Sprintf("easely:%s:task:%s", instanceName, taskID)
}

// TasksByOwnerKey returns the Redis key for a user's task index.
// The index is a ZSET scored by due instant (Unix milliseconds), which makes
// every due-window query a single ZRANGEBYSCORE.
// Pattern: easely:{instance_name}:tasks_by_owner:{user_id}
func TasksByOwnerKey(instanceName, userID string) string {
	return fmt.Sprintf("easely:%s:tasks_by_owner:%s", instanceName, userID)
}

// TasksByDueKey returns the Redis key for the global due-instant task index.
// Used by the backfill sweep to find soon-due tasks across all owners.
// Pattern: easely:{instance_name}:tasks_by_due
func TasksByDueKey(instanceName string) string {
	return fmt.Sprintf("easely:%s:tasks_by_due", instanceName)
}

// CanvasTaskKey returns the Redis key mapping a Canvas assignment to its task.
// Enables idempotent sync: one assignment maps to at most one task per owner.
// Pattern: easely:{instance_name}:canvas_task:{user_id}:{assignment_id}
func CanvasTaskKey(instanceName, userID, assignmentID string) string {
	return fmt.Sprintf("easely:%s:canvas_task:%s:%s", instanceName, userID, assignmentID)
}

// ReminderKey returns the Redis key for a reminder record.
// Pattern: easely:{instance_name}:reminder:{reminder_id}
func ReminderKey(instanceName, reminderID string) string {
	return fmt.Sprintf("easely:%s:reminder:%s", instanceName, reminderID)
}

// ReminderByTaskTypeKey returns the Redis key enforcing reminder uniqueness.
// The scheduler SETNXes this key before writing the reminder hash, making
// creation idempotent per (task, type) pair.
// Pattern: easely:{instance_name}:reminder_by_task:{task_id}:{type}
func ReminderByTaskTypeKey(instanceName, taskID string, rt ReminderType) string {
	return fmt.Sprintf("easely:%s:reminder_by_task:%s:%s", instanceName, taskID, rt)
}

// RemindersByTaskKey returns the Redis key for a task's reminder set.
// Used to invalidate not-yet-fired reminders when a task is completed or
// cancelled.
// Pattern: easely:{instance_name}:reminders_by_task:{task_id}
func RemindersByTaskKey(instanceName, taskID string) string {
	return fmt.Sprintf("easely:%s:reminders_by_task:%s", instanceName, taskID)
}

// DueRemindersKey returns the Redis key for the due-reminder index.
// The index is a ZSET scored by trigger instant (Unix milliseconds); members
// are removed when the reminder reaches a terminal status.
// Pattern: easely:{instance_name}:reminders_due
func DueRemindersKey(instanceName string) string {
	return fmt.Sprintf("easely:%s:reminders_due", instanceName)
}

// ReminderClaimKey returns the Redis key for a reminder's dispatch claim.
// A sweep SETNXes this key before delivering, so two overlapping sweeps
// cannot both deliver the same reminder.
// Pattern: easely:{instance_name}:reminder_claim:{reminder_id}
func ReminderClaimKey(instanceName, reminderID string) string {
	return fmt.Sprintf("easely:%s:reminder_claim:%s", instanceName, reminderID)
}

// SessionKey returns the Redis key for a user's dialog session.
// One key per user enforces the single-active-session invariant structurally;
// the key carries a TTL equal to the dialog timeout.
// Pattern: easely:{instance_name}:session:{user_id}
func SessionKey(instanceName, userID string) string {
	return fmt.Sprintf("easely:%s:session:%s", instanceName, userID)
}

// EventKey returns the Redis key recording a processed inbound event ID.
// SETNX on this key (with a recency TTL) collapses duplicate webhook
// deliveries before they reach the conversation handler.
// Pattern: easely:{instance_name}:event:{message_id}
func EventKey(instanceName, messageID string) string {
	return fmt.Sprintf("easely:%s:event:%s", instanceName, messageID)
}

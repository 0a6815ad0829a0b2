package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the Easely store.
// All keys are automatically namespaced with the instance name. The client is
// thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new store client for the specified instance.
// The client automatically namespaces all keys with the instance name.
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// RedisClient exposes the underlying Redis client for operations not covered
// by the typed API (e.g. SCAN-based listings in the CLI).
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// InstanceName returns the instance this client is scoped to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// IsNotFound returns true if the error is a Redis "key not found" error
// (redis.Nil). Use this to check if a Get returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// ---- Users ----

// PutUser writes a user record (full replacement).
// Validates the user before writing.
func (c *Client) PutUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	key := UserKey(c.instanceName, u.ID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, UserToHash(u))
	pipe.SAdd(ctx, UsersKey(c.instanceName), u.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write user to Redis: %w", err)
	}

	return nil
}

// ListUsers returns every known user. Order is not defined.
func (c *Client) ListUsers(ctx context.Context) ([]*User, error) {
	ids, err := c.rdb.SMembers(ctx, UsersKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read user index from Redis: %w", err)
	}

	users := make([]*User, 0, len(ids))
	for _, id := range ids {
		u, err := c.GetUser(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// GetUser retrieves a user by ID.
// Returns (nil, redis.Nil) if the user doesn't exist.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	key := UserKey(c.instanceName, userID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read user from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	return HashToUser(hashData)
}

// TouchUserLastSeen updates a user's last-seen timestamp.
// Returns redis.Nil if the user doesn't exist; the record is never created
// implicitly.
func (c *Client) TouchUserLastSeen(ctx context.Context, userID string, nowMs int64) error {
	key := UserKey(c.instanceName, userID)

	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists == 0 {
		return redis.Nil
	}

	if err := c.rdb.HSet(ctx, key, "last_seen_at_ms", nowMs).Err(); err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	return nil
}

// ---- Tasks ----

// CreateTask writes a task and maintains the due-instant indexes.
// Validates the task before writing.
func (c *Client) CreateTask(ctx context.Context, t *Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	member := redis.Z{Score: float64(t.DueAtMs), Member: t.ID}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, TaskKey(c.instanceName, t.ID), TaskToHash(t))
	pipe.ZAdd(ctx, TasksByOwnerKey(c.instanceName, t.OwnerID), member)
	pipe.ZAdd(ctx, TasksByDueKey(c.instanceName), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write task to Redis: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID.
// Returns (nil, redis.Nil) if the task doesn't exist.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	key := TaskKey(c.instanceName, taskID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	return HashToTask(hashData)
}

// ScanTasks returns the IDs of all tasks whose ID starts with the given
// prefix. Uses SCAN, so it is safe against large keyspaces but the result
// order is not defined.
func (c *Client) ScanTasks(ctx context.Context, idPrefix string) ([]string, error) {
	pattern := TaskKey(c.instanceName, idPrefix+"*")
	keyPrefix := TaskKey(c.instanceName, "")

	var ids []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tasks in Redis: %w", err)
	}
	return ids, nil
}

// ListTasksByOwnerDueBetween returns an owner's tasks whose due instant falls
// in [fromMs, toMs], ordered by due instant ascending. Tasks referenced by the
// index but since deleted are silently skipped.
func (c *Client) ListTasksByOwnerDueBetween(ctx context.Context, ownerID string, fromMs, toMs int64) ([]*Task, error) {
	key := TasksByOwnerKey(c.instanceName, ownerID)
	return c.tasksInRange(ctx, key, fromMs, toMs)
}

// ListTasksDueBetween returns tasks across all owners whose due instant falls
// in [fromMs, toMs], ordered by due instant ascending. Used by the backfill
// sweep.
func (c *Client) ListTasksDueBetween(ctx context.Context, fromMs, toMs int64) ([]*Task, error) {
	return c.tasksInRange(ctx, TasksByDueKey(c.instanceName), fromMs, toMs)
}

func (c *Client) tasksInRange(ctx context.Context, indexKey string, fromMs, toMs int64) ([]*Task, error) {
	ids, err := c.rdb.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", fromMs),
		Max: fmt.Sprintf("%d", toMs),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query task index: %w", err)
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := c.GetTask(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// MarkTaskCompleted flags a task as completed and skips its pending reminders.
// Returns redis.Nil if the task doesn't exist.
func (c *Client) MarkTaskCompleted(ctx context.Context, taskID string) error {
	return c.deactivateTask(ctx, taskID, "completed")
}

// MarkTaskCancelled flags a task as cancelled and skips its pending reminders.
// Returns redis.Nil if the task doesn't exist.
func (c *Client) MarkTaskCancelled(ctx context.Context, taskID string) error {
	return c.deactivateTask(ctx, taskID, "cancelled")
}

func (c *Client) deactivateTask(ctx context.Context, taskID, field string) error {
	key := TaskKey(c.instanceName, taskID)

	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}
	if exists == 0 {
		return redis.Nil
	}

	if err := c.rdb.HSet(ctx, key, field, true).Err(); err != nil {
		return fmt.Errorf("failed to mark task %s: %w", field, err)
	}

	// Invalidate not-yet-fired reminders immediately rather than waiting for
	// the next sweep to notice the inactive task.
	if err := c.SkipPendingReminders(ctx, taskID, "task "+field); err != nil {
		return err
	}

	return nil
}

// SkipPendingReminders transitions every pending reminder of a task to
// skipped, recording the reason. The (task, type) uniqueness slot of each
// skipped reminder is released so the scheduler can recreate that type with a
// fresh trigger instant, which is how a moved due date gets new reminders.
func (c *Client) SkipPendingReminders(ctx context.Context, taskID, reason string) error {
	ids, err := c.rdb.SMembers(ctx, RemindersByTaskKey(c.instanceName, taskID)).Result()
	if err != nil {
		return fmt.Errorf("failed to read task reminder set: %w", err)
	}

	for _, id := range ids {
		reminder, err := c.GetReminder(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return err
		}

		if reminder.Status != ReminderStatusPending {
			continue
		}

		meta := &ReminderMeta{LastError: reason}
		if err := c.UpdateReminderStatus(ctx, id, ReminderStatusSkipped, meta); err != nil {
			return err
		}
		if err := c.rdb.Del(ctx, ReminderByTaskTypeKey(c.instanceName, taskID, reminder.Type)).Err(); err != nil {
			return fmt.Errorf("failed to release reminder slot: %w", err)
		}
	}

	return nil
}

// UpsertCanvasTask creates or refreshes a canvas-origin task keyed by its
// assignment ID. Returns (created, dueChanged): created is true if a new task
// was written, dueChanged is true if an existing task's due instant moved. On
// refresh, the title, course, description and due instant are updated in
// place, the due-instant indexes are rescored, and t.ID is rewritten to the
// existing task's ID so the caller holds the canonical record.
func (c *Client) UpsertCanvasTask(ctx context.Context, t *Task) (bool, bool, error) {
	if err := t.Validate(); err != nil {
		return false, false, fmt.Errorf("invalid task: %w", err)
	}

	mapKey := CanvasTaskKey(c.instanceName, t.OwnerID, t.CanvasAssignmentID)
	created, err := c.rdb.SetNX(ctx, mapKey, t.ID, 0).Result()
	if err != nil {
		return false, false, fmt.Errorf("failed to reserve canvas task mapping: %w", err)
	}

	if created {
		if err := c.CreateTask(ctx, t); err != nil {
			return false, false, err
		}
		return true, false, nil
	}

	existingID, err := c.rdb.Get(ctx, mapKey).Result()
	if err != nil {
		return false, false, fmt.Errorf("failed to read canvas task mapping: %w", err)
	}

	existing, err := c.GetTask(ctx, existingID)
	if err != nil {
		return false, false, fmt.Errorf("failed to read canvas task: %w", err)
	}
	dueChanged := existing.DueAtMs != t.DueAtMs

	member := redis.Z{Score: float64(t.DueAtMs), Member: existingID}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, TaskKey(c.instanceName, existingID),
		"title", t.Title,
		"course", t.Course,
		"description", t.Description,
		"due_at_ms", t.DueAtMs,
	)
	pipe.ZAdd(ctx, TasksByOwnerKey(c.instanceName, t.OwnerID), member)
	pipe.ZAdd(ctx, TasksByDueKey(c.instanceName), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, false, fmt.Errorf("failed to refresh canvas task: %w", err)
	}

	t.ID = existingID
	return false, dueChanged, nil
}

// ---- Reminders ----

// ReminderMeta carries the bookkeeping fields updated alongside a status
// transition.
type ReminderMeta struct {
	SentAtMs   int64  // Set when the reminder was delivered
	RetryCount int    // Delivery attempts that failed so far
	LastError  string // Most recent failure reason, or skip reason
}

// InsertReminderIfAbsent writes a reminder unless one already exists for the
// same (task, type) pair. Returns true if the reminder was created. Duplicate
// insertion is a no-op, not an error.
func (c *Client) InsertReminderIfAbsent(ctx context.Context, r *Reminder) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, fmt.Errorf("invalid reminder: %w", err)
	}

	// The uniqueness key is the source of truth for (task, type) idempotency.
	uniqueKey := ReminderByTaskTypeKey(c.instanceName, r.TaskID, r.Type)
	created, err := c.rdb.SetNX(ctx, uniqueKey, r.ID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve reminder slot: %w", err)
	}
	if !created {
		return false, nil
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, ReminderKey(c.instanceName, r.ID), ReminderToHash(r))
	pipe.ZAdd(ctx, DueRemindersKey(c.instanceName), redis.Z{
		Score:  float64(r.TriggerAtMs),
		Member: r.ID,
	})
	pipe.SAdd(ctx, RemindersByTaskKey(c.instanceName, r.TaskID), r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to write reminder to Redis: %w", err)
	}

	return true, nil
}

// GetReminder retrieves a reminder by ID.
// Returns (nil, redis.Nil) if the reminder doesn't exist.
func (c *Client) GetReminder(ctx context.Context, reminderID string) (*Reminder, error) {
	key := ReminderKey(c.instanceName, reminderID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reminder from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	return HashToReminder(hashData)
}

// SelectDueReminders returns all pending reminders whose trigger instant is at
// or before nowMs, ordered by trigger instant ascending. Reminders in the due
// index that have already reached a terminal status are skipped.
func (c *Client) SelectDueReminders(ctx context.Context, nowMs int64) ([]*Reminder, error) {
	ids, err := c.rdb.ZRangeByScore(ctx, DueRemindersKey(c.instanceName), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", nowMs),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminder index: %w", err)
	}

	reminders := make([]*Reminder, 0, len(ids))
	for _, id := range ids {
		reminder, err := c.GetReminder(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}

		if reminder.Status != ReminderStatusPending {
			continue
		}

		reminders = append(reminders, reminder)
	}

	return reminders, nil
}

// ClaimReminder atomically claims a reminder for dispatch. Returns true if
// this caller won the claim. The claim expires after ttl, so a sweep that
// crashes mid-dispatch releases its claims and the reminder is retried on a
// later sweep (at-least-once in that window).
func (c *Client) ClaimReminder(ctx context.Context, reminderID string, ttl time.Duration) (bool, error) {
	key := ReminderClaimKey(c.instanceName, reminderID)
	claimed, err := c.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	return claimed, nil
}

// ReleaseReminderClaim releases a dispatch claim early, allowing the next
// sweep to retry the reminder without waiting for the claim TTL.
func (c *Client) ReleaseReminderClaim(ctx context.Context, reminderID string) error {
	key := ReminderClaimKey(c.instanceName, reminderID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release reminder claim: %w", err)
	}
	return nil
}

// UpdateReminderStatus transitions a reminder's status and records the
// accompanying bookkeeping. Terminal statuses (sent, failed, skipped) remove
// the reminder from the due index so it is never selected again.
func (c *Client) UpdateReminderStatus(ctx context.Context, reminderID string, status ReminderStatus, meta *ReminderMeta) error {
	if err := status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	fields := []interface{}{"status", string(status)}
	if meta != nil {
		fields = append(fields,
			"sent_at_ms", meta.SentAtMs,
			"retry_count", meta.RetryCount,
			"last_error", meta.LastError,
		)
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, ReminderKey(c.instanceName, reminderID), fields...)
	if status != ReminderStatusPending {
		pipe.ZRem(ctx, DueRemindersKey(c.instanceName), reminderID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update reminder status: %w", err)
	}

	return nil
}

// ---- Sessions ----

// GetSession retrieves a user's active dialog session.
// Returns (nil, redis.Nil) if the user has no active session (including after
// TTL expiry — an expired session is simply gone).
func (c *Client) GetSession(ctx context.Context, userID string) (*Session, error) {
	key := SessionKey(c.instanceName, userID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	return HashToSession(hashData)
}

// UpsertSession writes a user's session, atomically superseding any prior
// active session for that user, and arms the dialog TTL. Because each user
// has exactly one session key, two rapid inbound events cannot leave two
// sessions active: the later write wins wholesale.
func (c *Client) UpsertSession(ctx context.Context, s *Session, ttl time.Duration) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	hash, err := SessionToHash(s)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	key := SessionKey(c.instanceName, s.UserID)

	// DEL+HSET+EXPIRE in one MULTI/EXEC so a concurrent reader never observes
	// a merged old/new session.
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, hash)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write session to Redis: %w", err)
	}

	return nil
}

// DeactivateSession removes a user's active session, if any.
// Deactivating a non-existent session is a no-op.
func (c *Client) DeactivateSession(ctx context.Context, userID string) error {
	key := SessionKey(c.instanceName, userID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

// ---- Event deduplication ----

// MarkEventProcessed records an inbound event ID and reports whether this is
// the first time it has been seen within the recency window. The upstream
// transport delivers at-least-once; callers must drop events where this
// returns false.
func (c *Client) MarkEventProcessed(ctx context.Context, messageID string, window time.Duration) (bool, error) {
	key := EventKey(c.instanceName, messageID)
	first, err := c.rdb.SetNX(ctx, key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record event ID: %w", err)
	}
	return first, nil
}

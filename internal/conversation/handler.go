// Package conversation is the per-user dialog state machine. Each inbound
// event is interpreted against the user's current session to produce the
// next session state, an optional side effect (a created task, a stored
// token) and the outgoing prompt.
package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keanlouis/easely/internal/localtime"
	"github.com/keanlouis/easely/internal/scheduler"
	"github.com/keanlouis/easely/pkg/store"
)

// Event is one decoded, deduplicated inbound user event. Payload is set for
// button presses and takes precedence over Text.
type Event struct {
	MessageID string
	Text      string
	Payload   string
}

// Reply is the ordered outgoing prompts for one event.
type Reply struct {
	Texts []string
}

func reply(texts ...string) Reply {
	return Reply{Texts: texts}
}

// CanvasSyncer pulls a user's assignments into the task store. Wired in when
// Canvas integration is configured; nil otherwise.
type CanvasSyncer interface {
	Sync(ctx context.Context, userID, token string) (int, error)
}

// Config tunes the handler. Zero values fall back to defaults.
type Config struct {
	WeekDays   int                  // Horizon for "this week" listings
	SessionTTL time.Duration        // Dialog abandonment timeout
	Now        func() time.Time     // Injectable clock
}

// Handler is the single entry point the transport layer dispatches into.
type Handler struct {
	client     *store.Client
	engine     *localtime.Engine
	sched      *scheduler.Scheduler
	syncer     CanvasSyncer
	weekDays   int
	sessionTTL time.Duration
	now        func() time.Time
}

// NewHandler creates a conversation handler.
func NewHandler(client *store.Client, engine *localtime.Engine, sched *scheduler.Scheduler, syncer CanvasSyncer, cfg Config) *Handler {
	if cfg.WeekDays == 0 {
		cfg.WeekDays = 7
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		client:     client,
		engine:     engine,
		sched:      sched,
		syncer:     syncer,
		weekDays:   cfg.WeekDays,
		sessionTTL: cfg.SessionTTL,
		now:        cfg.Now,
	}
}

// HandleEvent interprets one inbound event for a user and returns the
// outgoing prompts. Store failures surface as an error alongside a generic
// apology reply; dialog input problems never do, they re-prompt.
func (h *Handler) HandleEvent(ctx context.Context, userID string, ev Event) (Reply, error) {
	now := h.now()

	user, err := h.client.GetUser(ctx, userID)
	if store.IsNotFound(err) {
		return h.welcomeNewUser(ctx, userID, now)
	}
	if err != nil {
		return reply(msgSomethingWrong), err
	}

	if err := h.client.TouchUserLastSeen(ctx, userID, now.UnixMilli()); err != nil {
		log.Printf("[Conversation] Error updating last seen for %s: %v", userID, err)
	}

	session, err := h.client.GetSession(ctx, userID)
	if err != nil && !store.IsNotFound(err) {
		return reply(msgSomethingWrong), err
	}
	if err == nil {
		return h.handleFlowInput(ctx, user, session, ev, now)
	}

	return h.handleIdle(ctx, user, ev, now)
}

func (h *Handler) welcomeNewUser(ctx context.Context, userID string, now time.Time) (Reply, error) {
	user := &store.User{
		ID:           userID,
		Tier:         store.TierFree,
		CreatedAtMs:  now.UnixMilli(),
		LastSeenAtMs: now.UnixMilli(),
	}
	if err := h.client.PutUser(ctx, user); err != nil {
		return reply(msgSomethingWrong), err
	}
	if err := h.startSession(ctx, userID, FlowOnboarding, StepAwaitingConsent, now); err != nil {
		return reply(msgSomethingWrong), err
	}
	return reply(msgWelcome, msgConsentPrompt), nil
}

func (h *Handler) startSession(ctx context.Context, userID string, flow Flow, step Step, now time.Time) error {
	session := &store.Session{
		UserID:      userID,
		Flow:        string(flow),
		Step:        string(step),
		Fields:      map[string]string{},
		CreatedAtMs: now.UnixMilli(),
	}
	return h.client.UpsertSession(ctx, session, h.sessionTTL)
}

// advance moves a session to the given step and re-arms the dialog TTL.
func (h *Handler) advance(ctx context.Context, session *store.Session, step Step) error {
	session.Step = string(step)
	return h.client.UpsertSession(ctx, session, h.sessionTTL)
}

// ---- Idle routing ----

func (h *Handler) handleIdle(ctx context.Context, user *store.User, ev Event, now time.Time) (Reply, error) {
	// A user who never finished onboarding restarts it, whatever they sent.
	if !user.OnboardingDone {
		if err := h.startSession(ctx, user.ID, FlowOnboarding, StepAwaitingConsent, now); err != nil {
			return reply(msgSomethingWrong), err
		}
		return reply(msgConsentPrompt), nil
	}

	if ev.Payload != "" {
		return h.handleIdlePayload(ctx, user, ev.Payload, now)
	}

	switch strings.ToLower(strings.TrimSpace(ev.Text)) {
	case "add task", "new task", "add":
		if err := h.startSession(ctx, user.ID, FlowCreateTask, StepAwaitingTitle, now); err != nil {
			return reply(msgSomethingWrong), err
		}
		return reply(msgTitlePrompt), nil
	case "today":
		return h.listTasks(ctx, user.ID, h.engine.TodayWindow(now), "🔥 Tasks Due Today")
	case "week", "this week":
		return h.listTasks(ctx, user.ID, h.engine.WeekWindow(now, h.weekDays), "⏰ Tasks Due This Week")
	case "overdue":
		return h.listTasks(ctx, user.ID, h.engine.OverdueWindow(now), "❗️ Overdue Tasks")
	case "all", "tasks", "all tasks":
		return h.listTasks(ctx, user.ID, h.engine.UpcomingWindow(now, 365), "🗓 All Upcoming Tasks")
	case "premium":
		return reply(msgPremiumPitch), nil
	case "activate":
		return h.activatePremium(ctx, user)
	case "hi", "hello", "hey", "menu", "help", "start":
		return reply(msgMenu), nil
	default:
		return reply(msgUnrecognized, msgMenu), nil
	}
}

func (h *Handler) handleIdlePayload(ctx context.Context, user *store.User, payload string, now time.Time) (Reply, error) {
	switch payload {
	case "ADD_NEW_TASK":
		if err := h.startSession(ctx, user.ID, FlowCreateTask, StepAwaitingTitle, now); err != nil {
			return reply(msgSomethingWrong), err
		}
		return reply(msgTitlePrompt), nil
	case "GET_TASKS_TODAY":
		return h.listTasks(ctx, user.ID, h.engine.TodayWindow(now), "🔥 Tasks Due Today")
	case "GET_TASKS_WEEK":
		return h.listTasks(ctx, user.ID, h.engine.WeekWindow(now, h.weekDays), "⏰ Tasks Due This Week")
	case "GET_TASKS_OVERDUE":
		return h.listTasks(ctx, user.ID, h.engine.OverdueWindow(now), "❗️ Overdue Tasks")
	case "GET_TASKS_ALL":
		return h.listTasks(ctx, user.ID, h.engine.UpcomingWindow(now, 365), "🗓 All Upcoming Tasks")
	case "SHOW_PREMIUM":
		return reply(msgPremiumPitch), nil
	default:
		// Unknown buttons while idle fall back to the menu.
		return reply(msgMenu), nil
	}
}

func (h *Handler) activatePremium(ctx context.Context, user *store.User) (Reply, error) {
	user.Tier = store.TierPremium
	if err := h.client.PutUser(ctx, user); err != nil {
		return reply(msgSomethingWrong), err
	}
	return reply(msgPremiumActivated), nil
}

// ---- In-flow routing ----

func (h *Handler) handleFlowInput(ctx context.Context, user *store.User, session *store.Session, ev Event, now time.Time) (Reply, error) {
	if ev.Payload == "" && isCancel(ev.Text) {
		if err := h.client.DeactivateSession(ctx, user.ID); err != nil {
			return reply(msgSomethingWrong), err
		}
		return reply(msgCancelled, msgMenu), nil
	}

	switch Flow(session.Flow) {
	case FlowOnboarding:
		return h.handleOnboardingStep(ctx, user, session, ev)
	case FlowCreateTask:
		return h.handleCreateTaskStep(ctx, user, session, ev, now)
	default:
		// Unreadable session state: drop it and start over as idle.
		if err := h.client.DeactivateSession(ctx, user.ID); err != nil {
			return reply(msgSomethingWrong), err
		}
		return h.handleIdle(ctx, user, ev, now)
	}
}

func (h *Handler) handleOnboardingStep(ctx context.Context, user *store.User, session *store.Session, ev Event) (Reply, error) {
	text := strings.ToLower(strings.TrimSpace(ev.Text))

	switch Step(session.Step) {
	case StepAwaitingConsent:
		switch {
		case ev.Payload == "PRIVACY_AGREE" || text == "yes" || text == "agree" || text == "i agree":
			if err := h.advance(ctx, session, StepAwaitingCanvasToken); err != nil {
				return reply(msgSomethingWrong), err
			}
			return reply(msgTokenPrompt), nil
		case ev.Payload == "PRIVACY_DECLINE" || text == "no" || text == "decline":
			if err := h.client.DeactivateSession(ctx, user.ID); err != nil {
				return reply(msgSomethingWrong), err
			}
			return reply(msgConsentDeclined), nil
		default:
			return reply(msgConsentReprompt), nil
		}

	case StepAwaitingCanvasToken:
		if isSkip(text) {
			return h.finishOnboarding(ctx, user, "")
		}
		token := strings.TrimSpace(ev.Text)
		if len(token) < 16 || strings.ContainsAny(token, " \t") {
			return reply(msgTokenInvalid), nil
		}
		return h.finishOnboarding(ctx, user, token)

	default:
		return reply(msgConsentReprompt), nil
	}
}

func (h *Handler) finishOnboarding(ctx context.Context, user *store.User, token string) (Reply, error) {
	user.CanvasToken = token
	user.OnboardingDone = true
	if err := h.client.PutUser(ctx, user); err != nil {
		return reply(msgSomethingWrong), err
	}
	if err := h.client.DeactivateSession(ctx, user.ID); err != nil {
		return reply(msgSomethingWrong), err
	}

	if token == "" {
		return reply(msgOnboardDoneNoToken, msgMenu), nil
	}

	texts := []string{msgOnboardDone}
	if h.syncer != nil {
		n, err := h.syncer.Sync(ctx, user.ID, token)
		if err != nil {
			log.Printf("[Conversation] Canvas sync failed for %s: %v", user.ID, err)
			texts = append(texts, msgSyncDeferred)
		} else {
			texts = append(texts, fmt.Sprintf("📥 Imported %d upcoming assignments from Canvas.", n))
		}
	}
	texts = append(texts, msgMenu)
	return reply(texts...), nil
}

func (h *Handler) handleCreateTaskStep(ctx context.Context, user *store.User, session *store.Session, ev Event, now time.Time) (Reply, error) {
	text := strings.TrimSpace(ev.Text)

	switch Step(session.Step) {
	case StepAwaitingTitle:
		if !looksLikeTitle(text) {
			return reply(msgTitleInvalid), nil
		}
		session.Fields["title"] = text
		if err := h.advance(ctx, session, StepAwaitingCourse); err != nil {
			return reply(msgSomethingWrong), err
		}
		return reply(msgCoursePrompt), nil

	case StepAwaitingCourse:
		if !isSkip(strings.ToLower(text)) {
			if text == "" {
				return reply(msgCoursePrompt), nil
			}
			session.Fields["course"] = text
		}
		if err := h.advance(ctx, session, StepAwaitingDueDate); err != nil {
			return reply(msgSomethingWrong), err
		}
		return reply(msgDatePrompt), nil

	case StepAwaitingDueDate:
		input := text
		switch ev.Payload {
		case "DATE_TODAY":
			input = "today"
		case "DATE_TOMORROW":
			input = "tomorrow"
		case "DATE_NEXT_WEEK":
			input = "next week"
		case "DATE_CUSTOM":
			return reply(msgCustomDatePrompt), nil
		}
		d, err := h.engine.ParseDate(input, now)
		if err != nil {
			return reply(msgDateInvalid), nil
		}
		session.Fields["due_date"] = fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
		if err := h.advance(ctx, session, StepAwaitingDueTime); err != nil {
			return reply(msgSomethingWrong), err
		}
		return reply(msgTimePrompt), nil

	case StepAwaitingDueTime:
		input := text
		if strings.HasPrefix(ev.Payload, "TIME_") {
			// TIME_23_59 -> 23:59
			input = strings.ReplaceAll(strings.TrimPrefix(ev.Payload, "TIME_"), "_", ":")
		}
		c, err := h.engine.ParseClock(input)
		if err != nil {
			return reply(msgTimeInvalid), nil
		}
		session.Fields["due_time"] = fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
		if err := h.advance(ctx, session, StepAwaitingDescription); err != nil {
			return reply(msgSomethingWrong), err
		}
		return reply(msgDescriptionPrompt), nil

	case StepAwaitingDescription:
		description := ""
		if !isSkip(strings.ToLower(text)) {
			description = text
		}
		return h.finishTaskCreation(ctx, user, session, description, now)

	default:
		return reply(msgTitleInvalid), nil
	}
}

func (h *Handler) finishTaskCreation(ctx context.Context, user *store.User, session *store.Session, description string, now time.Time) (Reply, error) {
	due, err := h.combineDue(session.Fields["due_date"], session.Fields["due_time"])
	if err != nil {
		// Collected fields are unreadable; abandon rather than loop.
		log.Printf("[Conversation] Corrupt session fields for %s: %v", user.ID, err)
		if derr := h.client.DeactivateSession(ctx, user.ID); derr != nil {
			return reply(msgSomethingWrong), derr
		}
		return reply(msgSomethingWrong, msgMenu), nil
	}

	task := &store.Task{
		ID:          uuid.New().String(),
		OwnerID:     user.ID,
		Title:       session.Fields["title"],
		Course:      session.Fields["course"],
		Description: description,
		DueAtMs:     due.UnixMilli(),
		Origin:      store.OriginManual,
		CreatedAtMs: now.UnixMilli(),
	}
	if err := h.client.CreateTask(ctx, task); err != nil {
		return reply(msgSomethingWrong), err
	}

	// Reminders are best-effort here: the backfill sweep covers any gap.
	if _, err := h.sched.Schedule(ctx, task, user.Tier, now); err != nil {
		log.Printf("[Conversation] Error scheduling reminders for task %s: %v", task.ID, err)
	}

	if err := h.client.DeactivateSession(ctx, user.ID); err != nil {
		return reply(msgSomethingWrong), err
	}

	confirmation := fmt.Sprintf("✅ Task added successfully!\n\n📚 %s\n📅 Due: %s",
		task.Title, h.engine.FormatDue(task.DueAtMs))
	return reply(confirmation, msgMenu), nil
}

// combineDue rebuilds the absolute due instant from the fields collected in
// separate dialog steps.
func (h *Handler) combineDue(dateField, timeField string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", dateField, h.engine.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("bad due_date field %q: %w", dateField, err)
	}
	c, err := time.Parse("15:04", timeField)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad due_time field %q: %w", timeField, err)
	}
	return h.engine.Combine(
		localtime.Date{Year: d.Year(), Month: d.Month(), Day: d.Day()},
		localtime.Clock{Hour: c.Hour(), Minute: c.Minute()},
	), nil
}

// ---- Listings ----

func (h *Handler) listTasks(ctx context.Context, userID string, w localtime.Window, heading string) (Reply, error) {
	tasks, err := h.client.ListTasksByOwnerDueBetween(ctx, userID, w.FromMs, w.ToMs)
	if err != nil {
		return reply(msgSomethingWrong), err
	}

	var b strings.Builder
	b.WriteString(heading)
	count := 0
	for _, task := range tasks {
		if !task.Active() {
			continue
		}
		count++
		b.WriteString("\n\n📌 ")
		b.WriteString(task.Title)
		if task.Course != "" {
			fmt.Fprintf(&b, " (%s)", task.Course)
		}
		fmt.Fprintf(&b, "\nDue: %s", h.engine.FormatDue(task.DueAtMs))
	}

	if count == 0 {
		b.WriteString("\n\nNothing here. 🎉")
	}
	return reply(b.String(), msgMenu), nil
}

// ---- Input classification ----

var cancelWords = map[string]bool{
	"cancel": true,
	"back":   true,
	"stop":   true,
	"quit":   true,
}

func isCancel(text string) bool {
	return cancelWords[strings.ToLower(strings.TrimSpace(text))]
}

func isSkip(text string) bool {
	return text == "skip" || text == "none" || text == "no"
}

// noiseWords are throwaway inputs that are never a real title.
var noiseWords = map[string]bool{
	"l": true, "ok": true, "yes": true, "no": true, "hello": true, "hi": true,
}

func looksLikeTitle(text string) bool {
	if len(text) < 2 {
		return false
	}
	return !noiseWords[strings.ToLower(text)]
}

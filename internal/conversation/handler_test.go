package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanlouis/easely/internal/localtime"
	"github.com/keanlouis/easely/internal/scheduler"
	"github.com/keanlouis/easely/pkg/store"
)

var testZone = time.FixedZone("UTC+8", 8*60*60)

// A Tuesday noon, local.
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, testZone)

type fakeSyncer struct {
	calls int
	n     int
	err   error
}

func (f *fakeSyncer) Sync(ctx context.Context, userID, token string) (int, error) {
	f.calls++
	return f.n, f.err
}

func setupHandler(t *testing.T) (*Handler, *store.Client) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	engine := localtime.NewEngineIn(testZone, true)
	h := NewHandler(client, engine, scheduler.NewScheduler(client), nil, Config{
		Now: func() time.Time { return testNow },
	})
	return h, client
}

// onboardedUser seeds a user past onboarding so tests can exercise the task
// flows directly.
func onboardedUser(t *testing.T, client *store.Client, userID string, tier store.Tier) {
	require.NoError(t, client.PutUser(context.Background(), &store.User{
		ID:             userID,
		Tier:           tier,
		OnboardingDone: true,
	}))
}

func text(s string) Event     { return Event{Text: s} }
func postback(p string) Event { return Event{Payload: p} }

func TestNewUserOnboarding(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()

	t.Run("first contact welcomes and asks for consent", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("hi"))
		require.NoError(t, err)
		require.Len(t, reply.Texts, 2)
		assert.Equal(t, msgWelcome, reply.Texts[0])
		assert.Equal(t, msgConsentPrompt, reply.Texts[1])

		user, err := client.GetUser(ctx, "sender-1")
		require.NoError(t, err)
		assert.Equal(t, store.TierFree, user.Tier)
		assert.False(t, user.OnboardingDone)

		session, err := client.GetSession(ctx, "sender-1")
		require.NoError(t, err)
		assert.Equal(t, string(StepAwaitingConsent), session.Step)
	})

	t.Run("consent advances to the token step", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("yes"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgTokenPrompt}, reply.Texts)
	})

	t.Run("skipping the token finishes onboarding", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("skip"))
		require.NoError(t, err)
		assert.Equal(t, msgOnboardDoneNoToken, reply.Texts[0])

		user, err := client.GetUser(ctx, "sender-1")
		require.NoError(t, err)
		assert.True(t, user.OnboardingDone)
		assert.Empty(t, user.CanvasToken)

		_, err = client.GetSession(ctx, "sender-1")
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("unparseable consent input re-prompts", func(t *testing.T) {
		_, err := h.HandleEvent(ctx, "sender-2", text("hello"))
		require.NoError(t, err)

		reply, err := h.HandleEvent(ctx, "sender-2", text("maybe later"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgConsentReprompt}, reply.Texts)

		session, err := client.GetSession(ctx, "sender-2")
		require.NoError(t, err)
		assert.Equal(t, string(StepAwaitingConsent), session.Step)
	})

	t.Run("declining deactivates the session", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-2", text("no"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgConsentDeclined}, reply.Texts)

		_, err = client.GetSession(ctx, "sender-2")
		assert.True(t, store.IsNotFound(err))
	})
}

func TestOnboardingWithToken(t *testing.T) {
	h, client := setupHandler(t)
	syncer := &fakeSyncer{n: 5}
	h.syncer = syncer
	ctx := context.Background()

	_, err := h.HandleEvent(ctx, "sender-1", text("hi"))
	require.NoError(t, err)
	_, err = h.HandleEvent(ctx, "sender-1", postback("PRIVACY_AGREE"))
	require.NoError(t, err)

	t.Run("junk token re-prompts without advancing", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("abc 123"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgTokenInvalid}, reply.Texts)
	})

	t.Run("valid token stores and syncs", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("1234~abcdefghijklmnopqrstuvwx"))
		require.NoError(t, err)
		assert.Equal(t, msgOnboardDone, reply.Texts[0])
		assert.Contains(t, reply.Texts[1], "5 upcoming assignments")
		assert.Equal(t, 1, syncer.calls)

		user, err := client.GetUser(ctx, "sender-1")
		require.NoError(t, err)
		assert.True(t, user.OnboardingDone)
		assert.Equal(t, "1234~abcdefghijklmnopqrstuvwx", user.CanvasToken)
	})
}

func TestOnboardingSyncFailureDegrades(t *testing.T) {
	h, client := setupHandler(t)
	h.syncer = &fakeSyncer{err: errors.New("canvas unreachable")}
	ctx := context.Background()

	_, err := h.HandleEvent(ctx, "sender-1", text("hi"))
	require.NoError(t, err)
	_, err = h.HandleEvent(ctx, "sender-1", text("yes"))
	require.NoError(t, err)

	reply, err := h.HandleEvent(ctx, "sender-1", text("1234~abcdefghijklmnopqrstuvwx"))
	require.NoError(t, err)
	assert.Contains(t, reply.Texts, msgSyncDeferred)

	// Token kept; sync retries later.
	user, err := client.GetUser(ctx, "sender-1")
	require.NoError(t, err)
	assert.True(t, user.OnboardingDone)
}

func TestTaskCreationHappyPath(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()
	onboardedUser(t, client, "sender-1", store.TierFree)

	steps := []struct {
		event      Event
		wantPrompt string
	}{
		{text("add task"), msgTitlePrompt},
		{text("Physics Lab"), msgCoursePrompt},
		{text("skip"), msgDatePrompt},
		{text("tomorrow"), msgTimePrompt},
		{text("11:59 PM"), msgDescriptionPrompt},
	}
	for _, step := range steps {
		reply, err := h.HandleEvent(ctx, "sender-1", step.event)
		require.NoError(t, err)
		require.NotEmpty(t, reply.Texts)
		assert.Equal(t, step.wantPrompt, reply.Texts[0])
	}

	reply, err := h.HandleEvent(ctx, "sender-1", text("skip"))
	require.NoError(t, err)
	assert.Contains(t, reply.Texts[0], "Task added successfully")

	// Session consumed.
	_, err = client.GetSession(ctx, "sender-1")
	assert.True(t, store.IsNotFound(err))

	// Due tomorrow at 23:59 local.
	wantDue := time.Date(2026, 3, 11, 23, 59, 0, 0, testZone).UnixMilli()
	tasks, err := client.ListTasksByOwnerDueBetween(ctx, "sender-1", wantDue, wantDue)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Physics Lab", tasks[0].Title)
	assert.Equal(t, store.OriginManual, tasks[0].Origin)

	// Free tier: exactly the 24-hour reminder, due-minus-24h.
	due, err := client.SelectDueReminders(ctx, wantDue)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, store.ReminderType1Day, due[0].Type)
	assert.Equal(t, wantDue-(24*time.Hour).Milliseconds(), due[0].TriggerAtMs)
}

func TestTaskCreationWithCourseAndButtons(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()
	onboardedUser(t, client, "sender-1", store.TierFree)

	_, err := h.HandleEvent(ctx, "sender-1", postback("ADD_NEW_TASK"))
	require.NoError(t, err)
	_, err = h.HandleEvent(ctx, "sender-1", text("Essay Draft"))
	require.NoError(t, err)
	_, err = h.HandleEvent(ctx, "sender-1", text("English 201"))
	require.NoError(t, err)
	_, err = h.HandleEvent(ctx, "sender-1", postback("DATE_TOMORROW"))
	require.NoError(t, err)
	_, err = h.HandleEvent(ctx, "sender-1", postback("TIME_17_00"))
	require.NoError(t, err)
	reply, err := h.HandleEvent(ctx, "sender-1", text("First two pages only"))
	require.NoError(t, err)
	assert.Contains(t, reply.Texts[0], "Task added successfully")

	wantDue := time.Date(2026, 3, 11, 17, 0, 0, 0, testZone).UnixMilli()
	tasks, err := client.ListTasksByOwnerDueBetween(ctx, "sender-1", wantDue, wantDue)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "English 201", tasks[0].Course)
	assert.Equal(t, "First two pages only", tasks[0].Description)
}

func TestInvalidInputNeverAdvances(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()
	onboardedUser(t, client, "sender-1", store.TierFree)

	_, err := h.HandleEvent(ctx, "sender-1", text("add task"))
	require.NoError(t, err)
	_, err = h.HandleEvent(ctx, "sender-1", text("Physics Lab"))
	require.NoError(t, err)
	_, err = h.HandleEvent(ctx, "sender-1", text("skip"))
	require.NoError(t, err)

	t.Run("bad date re-prompts and holds the step", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("whenever"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgDateInvalid}, reply.Texts)

		session, err := client.GetSession(ctx, "sender-1")
		require.NoError(t, err)
		assert.Equal(t, string(StepAwaitingDueDate), session.Step)
	})

	t.Run("mid-flow chatter is step input, not a menu trip", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("hello"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgDateInvalid}, reply.Texts)
		assert.NotContains(t, reply.Texts, msgMenu)

		session, err := client.GetSession(ctx, "sender-1")
		require.NoError(t, err)
		assert.Equal(t, string(StepAwaitingDueDate), session.Step)
	})

	t.Run("stray button press is step input too", func(t *testing.T) {
		_, err := h.HandleEvent(ctx, "sender-1", postback("GET_TASKS_TODAY"))
		require.NoError(t, err)

		session, err := client.GetSession(ctx, "sender-1")
		require.NoError(t, err)
		assert.Equal(t, string(StepAwaitingDueDate), session.Step)
	})

	t.Run("valid input still advances afterwards", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("friday"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgTimePrompt}, reply.Texts)
	})
}

func TestCancelAbandonsFlow(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()
	onboardedUser(t, client, "sender-1", store.TierFree)

	_, err := h.HandleEvent(ctx, "sender-1", text("add task"))
	require.NoError(t, err)

	reply, err := h.HandleEvent(ctx, "sender-1", text("cancel"))
	require.NoError(t, err)
	assert.Equal(t, msgCancelled, reply.Texts[0])

	_, err = client.GetSession(ctx, "sender-1")
	assert.True(t, store.IsNotFound(err))
}

func TestSingleActiveSession(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()
	onboardedUser(t, client, "sender-1", store.TierFree)

	_, err := h.HandleEvent(ctx, "sender-1", postback("ADD_NEW_TASK"))
	require.NoError(t, err)

	// A redelivered flow-start button mid-flow is input for the current
	// step, not a second flow.
	reply, err := h.HandleEvent(ctx, "sender-1", postback("ADD_NEW_TASK"))
	require.NoError(t, err)
	assert.Equal(t, []string{msgTitleInvalid}, reply.Texts)

	session, err := client.GetSession(ctx, "sender-1")
	require.NoError(t, err)
	assert.Equal(t, string(FlowCreateTask), session.Flow)
	assert.Equal(t, string(StepAwaitingTitle), session.Step)
}

func TestListings(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()
	onboardedUser(t, client, "sender-1", store.TierFree)

	mkTask := func(title string, due time.Time, completed bool) {
		task := &store.Task{
			ID:      "00000000-0000-0000-0000-00000000000" + title[len(title)-1:],
			OwnerID: "sender-1",
			Title:   title,
			DueAtMs: due.UnixMilli(),
			Origin:  store.OriginManual,
		}
		task.Completed = completed
		require.NoError(t, client.CreateTask(ctx, task))
	}
	mkTask("task1", time.Date(2026, 3, 10, 23, 59, 0, 0, testZone), false)  // today
	mkTask("task2", time.Date(2026, 3, 12, 17, 0, 0, 0, testZone), false)   // this week
	mkTask("task3", time.Date(2026, 3, 9, 12, 0, 0, 0, testZone), false)    // overdue
	mkTask("task4", time.Date(2026, 3, 12, 18, 0, 0, 0, testZone), true)    // completed
	mkTask("task5", time.Date(2026, 4, 20, 12, 0, 0, 0, testZone), false)   // far out

	t.Run("today", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("today"))
		require.NoError(t, err)
		assert.Contains(t, reply.Texts[0], "task1")
		assert.NotContains(t, reply.Texts[0], "task2")
		assert.NotContains(t, reply.Texts[0], "task3")
	})

	t.Run("week excludes overdue and completed", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", postback("GET_TASKS_WEEK"))
		require.NoError(t, err)
		assert.Contains(t, reply.Texts[0], "task1")
		assert.Contains(t, reply.Texts[0], "task2")
		assert.NotContains(t, reply.Texts[0], "task3")
		assert.NotContains(t, reply.Texts[0], "task4")
		assert.NotContains(t, reply.Texts[0], "task5")
	})

	t.Run("overdue", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("overdue"))
		require.NoError(t, err)
		assert.Contains(t, reply.Texts[0], "task3")
		assert.NotContains(t, reply.Texts[0], "task1")
	})

	t.Run("all upcoming includes the far-out task", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("all"))
		require.NoError(t, err)
		assert.Contains(t, reply.Texts[0], "task2")
		assert.Contains(t, reply.Texts[0], "task5")
		assert.NotContains(t, reply.Texts[0], "task3")
	})

	t.Run("empty listing says so", func(t *testing.T) {
		onboardedUser(t, client, "sender-empty", store.TierFree)
		reply, err := h.HandleEvent(ctx, "sender-empty", text("overdue"))
		require.NoError(t, err)
		assert.Contains(t, reply.Texts[0], "Nothing here")
	})
}

func TestPremiumActivation(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()
	onboardedUser(t, client, "sender-1", store.TierFree)

	reply, err := h.HandleEvent(ctx, "sender-1", text("activate"))
	require.NoError(t, err)
	assert.Equal(t, []string{msgPremiumActivated}, reply.Texts)

	user, err := client.GetUser(ctx, "sender-1")
	require.NoError(t, err)
	assert.Equal(t, store.TierPremium, user.Tier)
}

func TestIdleFallbacks(t *testing.T) {
	h, client := setupHandler(t)
	ctx := context.Background()
	onboardedUser(t, client, "sender-1", store.TierFree)

	t.Run("greeting shows the menu", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("hello"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgMenu}, reply.Texts)
	})

	t.Run("gibberish while idle gets help, not an error", func(t *testing.T) {
		reply, err := h.HandleEvent(ctx, "sender-1", text("asdfgh"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgUnrecognized, msgMenu}, reply.Texts)
	})

	t.Run("half-onboarded user is steered back to consent", func(t *testing.T) {
		require.NoError(t, client.PutUser(ctx, &store.User{ID: "sender-3", Tier: store.TierFree}))

		reply, err := h.HandleEvent(ctx, "sender-3", text("today"))
		require.NoError(t, err)
		assert.Equal(t, []string{msgConsentPrompt}, reply.Texts)
	})
}

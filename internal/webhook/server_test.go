package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanlouis/easely/internal/conversation"
	"github.com/keanlouis/easely/internal/localtime"
	"github.com/keanlouis/easely/internal/scheduler"
	"github.com/keanlouis/easely/pkg/store"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureNotifier) Send(ctx context.Context, userID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func setupServer(t *testing.T) (*httptest.Server, *store.Client, *captureNotifier) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	engine := localtime.NewEngineIn(time.FixedZone("UTC+8", 8*60*60), true)
	conv := conversation.NewHandler(client, engine, scheduler.NewScheduler(client), nil, conversation.Config{
		Now: func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	})

	notifier := &captureNotifier{}
	server := NewServer(client, conv, notifier, "verify-secret")
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return ts, client, notifier
}

func textDelivery(sender, mid, text string) string {
	return fmt.Sprintf(`{"entry": [{"messaging": [
		{"sender": {"id": %q}, "timestamp": 1767000000000,
		 "message": {"mid": %q, "text": %q}}
	]}]}`, sender, mid, text)
}

func post(t *testing.T, ts *httptest.Server, body string) *http.Response {
	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestVerificationHandshake(t *testing.T) {
	ts, _, _ := setupServer(t)

	t.Run("echoes the challenge for the right token", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/webhook?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := make([]byte, 16)
		n, _ := resp.Body.Read(body)
		assert.Equal(t, "12345", string(body[:n]))
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestReceiveAlwaysAcknowledges(t *testing.T) {
	ts, _, _ := setupServer(t)

	t.Run("valid delivery", func(t *testing.T) {
		resp := post(t, ts, textDelivery("sender-1", "mid.1", "hi"))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("garbage body still gets 200", func(t *testing.T) {
		resp := post(t, ts, "{not json")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("empty event batch still gets 200", func(t *testing.T) {
		resp := post(t, ts, `{"entry": []}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestDuplicateDeliveryIsDropped(t *testing.T) {
	ts, client, notifier := setupServer(t)
	ctx := context.Background()

	require.NoError(t, client.PutUser(ctx, &store.User{
		ID: "sender-1", Tier: store.TierFree, OnboardingDone: true,
	}))

	post(t, ts, textDelivery("sender-1", "mid.1", "add task"))
	repliesAfterFirst := notifier.count()
	require.Greater(t, repliesAfterFirst, 0)

	// Same mid redelivered: no new session transition, no new replies.
	post(t, ts, textDelivery("sender-1", "mid.1", "add task"))
	assert.Equal(t, repliesAfterFirst, notifier.count())

	session, err := client.GetSession(ctx, "sender-1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_title", session.Step)
}

func TestDuplicateFlowCompletionYieldsOneTask(t *testing.T) {
	ts, client, _ := setupServer(t)
	ctx := context.Background()

	require.NoError(t, client.PutUser(ctx, &store.User{
		ID: "sender-1", Tier: store.TierFree, OnboardingDone: true,
	}))

	post(t, ts, textDelivery("sender-1", "mid.1", "add task"))
	post(t, ts, textDelivery("sender-1", "mid.2", "Physics Lab"))
	post(t, ts, textDelivery("sender-1", "mid.3", "skip"))
	post(t, ts, textDelivery("sender-1", "mid.4", "tomorrow"))
	post(t, ts, textDelivery("sender-1", "mid.5", "11:59 PM"))
	post(t, ts, textDelivery("sender-1", "mid.6", "skip"))
	// The completing event redelivered.
	post(t, ts, textDelivery("sender-1", "mid.6", "skip"))

	tasks, err := client.ListTasksByOwnerDueBetween(ctx, "sender-1", 0, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestPostbackDecoding(t *testing.T) {
	ts, client, notifier := setupServer(t)
	ctx := context.Background()

	require.NoError(t, client.PutUser(ctx, &store.User{
		ID: "sender-1", Tier: store.TierFree, OnboardingDone: true,
	}))

	body := `{"entry": [{"messaging": [
		{"sender": {"id": "sender-1"}, "timestamp": 1767000000000,
		 "postback": {"payload": "ADD_NEW_TASK"}}
	]}]}`
	post(t, ts, body)

	session, err := client.GetSession(ctx, "sender-1")
	require.NoError(t, err)
	assert.Equal(t, "create_task", session.Flow)
	assert.Greater(t, notifier.count(), 0)

	// Identical postback redelivery is deduplicated too.
	replies := notifier.count()
	post(t, ts, body)
	assert.Equal(t, replies, notifier.count())
}

func TestHealthz(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

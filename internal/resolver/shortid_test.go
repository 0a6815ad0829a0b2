package resolver

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/keanlouis/easely/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupResolverTest(t *testing.T) *store.Client {
	mr := miniredis.RunT(t)
	client, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func seedTask(t *testing.T, client *store.Client, id string) {
	t.Helper()
	require.NoError(t, client.CreateTask(context.Background(), &store.Task{
		ID:          id,
		OwnerID:     "sender-1",
		Title:       "Essay draft",
		DueAtMs:     5000,
		Origin:      store.OriginManual,
		CreatedAtMs: 1000,
	}))
}

func TestResolveTaskID(t *testing.T) {
	client := setupResolverTest(t)
	ctx := context.Background()

	fullID := "aabbccdd-0000-0000-0000-000000000001"
	seedTask(t, client, fullID)
	seedTask(t, client, "aabbccdd-0000-0000-0000-000000000002")
	seedTask(t, client, "ffee0000-0000-0000-0000-000000000003")

	t.Run("full UUID passes through", func(t *testing.T) {
		id, err := ResolveTaskID(ctx, client, fullID)
		require.NoError(t, err)
		assert.Equal(t, fullID, id)
	})

	t.Run("full UUID that does not exist", func(t *testing.T) {
		_, err := ResolveTaskID(ctx, client, "99999999-9999-9999-9999-999999999999")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "task not found")
	})

	t.Run("unique prefix resolves", func(t *testing.T) {
		id, err := ResolveTaskID(ctx, client, "ffee00")
		require.NoError(t, err)
		assert.Equal(t, "ffee0000-0000-0000-0000-000000000003", id)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := ResolveTaskID(ctx, client, "aabbcc")
		require.Error(t, err)
		assert.True(t, IsAmbiguousError(err))
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := ResolveTaskID(ctx, client, "123456")
		require.Error(t, err)
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("too short prefix", func(t *testing.T) {
		_, err := ResolveTaskID(ctx, client, "aab")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 6 characters")
	})
}

func TestFormatAmbiguousError(t *testing.T) {
	err := &AmbiguousError{
		ShortID: "aabbcc",
		Matches: []string{
			"aabbccdd-0000-0000-0000-000000000001",
			"aabbccdd-0000-0000-0000-000000000002",
		},
	}
	msg := FormatAmbiguousError(err)
	assert.Contains(t, msg, "matches 2 tasks")
	assert.Contains(t, msg, "aabbccdd-0000-0000-0000-000000000001")
	assert.Contains(t, msg, "Use a longer prefix")
}

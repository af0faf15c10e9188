package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/htpdf/htpdf/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("requires a client", func(t *testing.T) {
		_, err := New(nil, "outbox:lease")
		require.Error(t, err)
	})

	t.Run("requires a key", func(t *testing.T) {
		client := testutil.SetupTestRedis(t)
		defer client.Close()

		_, err := New(client, "")
		require.Error(t, err)
	})
}

func TestLock_AcquireRelease(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	first, err := New(client, "outbox:lease")
	require.NoError(t, err)
	second, err := New(client, "outbox:lease")
	require.NoError(t, err)

	ok, err := first.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second holder cannot take the lease while it is held.
	ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx))

	ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	lock, err := New(client, "outbox:lease")
	require.NoError(t, err)

	require.NoError(t, lock.Release(context.Background()))
}

func TestLock_ReleaseDoesNotStealExpiredLease(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	first, err := New(client, "outbox:lease")
	require.NoError(t, err)
	second, err := New(client, "outbox:lease")
	require.NoError(t, err)

	ok, err := first.Acquire(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	// The first lease expired and the second instance took over.
	ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Releasing the stale lease must not delete the new holder's key.
	require.NoError(t, first.Release(ctx))

	held, err := client.Exists(ctx, "outbox:lease").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), held)
}

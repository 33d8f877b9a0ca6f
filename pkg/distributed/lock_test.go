package distributed

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("VINYL_TEST_REDIS")
	if addr == "" {
		t.Skip("VINYL_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGenerateLockValue_Unique(t *testing.T) {
	a, b := generateLockValue(), generateLockValue()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestDistributedLock_MutualExclusion(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	key := "vinyl:test:lock:" + t.Name()

	first := NewDistributedLock(client, key, time.Second)
	second := NewDistributedLock(client, key, time.Second)

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, second.Unlock(ctx), ErrNotHeld)
	require.NoError(t, first.Unlock(ctx))

	err = second.Lock(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Unlock(ctx))
}

func TestWithLock_SerializesCallers(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	key := "vinyl:test:lock:" + t.Name()

	var inside, maxInside atomic.Int32
	run := func() error {
		return WithLock(ctx, NewDistributedLock(client, key, 2*time.Second), 5*time.Second, func(context.Context) error {
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(50 * time.Millisecond)
			inside.Add(-1)
			return nil
		})
	}

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errs <- run() }()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), maxInside.Load())
}

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"vinyl/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomFieldsRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 30, 0, 123000000, time.UTC)
	room := &domain.Room{ID: "r1", Name: "Lounge", Owner: "u1", CreatedAt: created}

	fields := make(map[string]string)
	for k, v := range roomFields(room) {
		fields[k] = v.(string)
	}
	got, err := roomFromFields(fields)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueIDFor("r1"), got.QueueID)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, "Lounge", got.Name)

	_, err = roomFromFields(map[string]string{"id": "r2"})
	assert.Error(t, err)
}

// Requires a disposable Redis: VINYL_TEST_REDIS=localhost:6379.
func TestRedisRoomRepository_Integration(t *testing.T) {
	addr := os.Getenv("VINYL_TEST_REDIS")
	if addr == "" {
		t.Skip("VINYL_TEST_REDIS not set")
	}

	client, err := NewRedisClient(context.Background(), ClientConfig{Address: addr, DB: 15, PoolSize: 4, ConnectAttempts: 1}, nil)
	require.NoError(t, err)
	defer CloseRedisClient(client)

	ctx := context.Background()
	require.NoError(t, client.FlushDB(ctx).Err())
	require.NoError(t, Migrate(ctx, client, nil))

	repo := NewRedisRoomRepository(client)
	ids := []domain.RoomID{domain.RoomID(uuid.NewString()), domain.RoomID(uuid.NewString())}
	for _, id := range ids {
		require.NoError(t, repo.Create(ctx, &domain.Room{ID: id, Name: "room", Owner: "u1", CreatedAt: time.Now()}))
	}
	assert.ErrorIs(t, repo.Create(ctx, &domain.Room{ID: ids[0]}), domain.ErrRoomExists)

	rooms, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, ids[0], rooms[0].ID)
	assert.Equal(t, ids[1], rooms[1].ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.NoError(t, repo.Ping(ctx))
}

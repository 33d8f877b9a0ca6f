package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

const roomKeyPrefix = keyPrefix + "room:"

// RedisRoomRepository stores each room in a hash and keeps the ids in a
// list so List can return creation order without sorting.
type RedisRoomRepository struct {
	client *redis.Client
}

func NewRedisRoomRepository(client *redis.Client) ports.RoomRepository {
	return &RedisRoomRepository{client: client}
}

func roomKey(id domain.RoomID) string {
	return roomKeyPrefix + string(id)
}

func roomFields(room *domain.Room) map[string]interface{} {
	return map[string]interface{}{
		"id":         string(room.ID),
		"name":       room.Name,
		"owner":      string(room.Owner),
		"created_at": room.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func roomFromFields(fields map[string]string) (*domain.Room, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	id := domain.RoomID(fields["id"])
	return &domain.Room{
		ID:        id,
		Name:      fields["name"],
		Owner:     domain.UserID(fields["owner"]),
		QueueID:   domain.QueueIDFor(id),
		CreatedAt: createdAt,
	}, nil
}

func decodeLegacyRoom(data []byte) (*domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *RedisRoomRepository) Create(ctx context.Context, room *domain.Room) (err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "insert", "rooms")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	key := roomKey(room.ID)

	created, err := r.client.HSetNX(ctx, key, "id", string(room.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve room in Redis: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", domain.ErrRoomExists, room.ID)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, roomFields(room))
		pipe.RPush(ctx, roomIndexKey, string(room.ID))
		return nil
	})
	if err != nil {
		r.client.Del(ctx, key)
		return fmt.Errorf("failed to store room in Redis: %w", err)
	}
	return nil
}

func (r *RedisRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (_ *domain.Room, err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "select", "rooms")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	fields, err := r.client.HGetAll(ctx, roomKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRoomNotFound
	}
	return roomFromFields(fields)
}

func (r *RedisRoomRepository) List(ctx context.Context) (_ []*domain.Room, err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "list", "rooms")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	ids, err := r.client.LRange(ctx, roomIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms from Redis: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.HGetAll(ctx, roomKey(domain.RoomID(id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rooms from Redis: %w", err)
	}

	rooms := make([]*domain.Room, 0, len(cmds))
	for i, cmd := range cmds {
		fields, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil || len(fields) == 0 {
			// Index entry without a hash: the room was never fully written.
			continue
		}
		room, err := roomFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("room %s: %w", ids[i], err)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (r *RedisRoomRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

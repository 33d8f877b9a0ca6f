package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vinyl/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix            = "vinyl:"
	schemaVersionKey     = keyPrefix + "schema:version"
	roomIndexKey         = keyPrefix + "rooms"
	migrationLockKey     = keyPrefix + "lock:migrations"
	currentSchemaVersion = 2
)

type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate applies every migration newer than the stored schema version.
// Instances starting together take turns on a redis lock, so each
// migration runs once.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	lock := distributed.NewDistributedLock(client, migrationLockKey, 30*time.Second)
	return distributed.WithLock(ctx, lock, time.Minute, func(ctx context.Context) error {
		return migrate(ctx, client, logger)
	})
}

func migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("redis schema is up to date", "version", currentVersion)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running redis migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("redis migrations completed", "version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Version 1 stored rooms as JSON strings under vinyl:room:<id>.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				return nil
			},
		},
		{
			// Version 2 moves rooms into hashes and indexes them in creation
			// order. Legacy string keys are converted in place.
			Version: 2,
			Up:      migrateRoomsToHashes,
		},
	}
}

func migrateRoomsToHashes(ctx context.Context, client *redis.Client) error {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, roomKeyPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			typ, err := client.Type(ctx, key).Result()
			if err != nil {
				return err
			}
			if typ != "string" {
				continue
			}
			data, err := client.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			room, err := decodeLegacyRoom(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}

			id := strings.TrimPrefix(key, roomKeyPrefix)
			_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.HSet(ctx, key, roomFields(room))
				pipe.RPush(ctx, roomIndexKey, id)
				return nil
			})
			if err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

package repositories

import (
	"context"
	"fmt"

	"vinyl/internal/core/ports"
	"vinyl/internal/infrastructure/repositories/memory"
	redisrepo "vinyl/internal/infrastructure/repositories/redis"
	sqlrepo "vinyl/internal/infrastructure/repositories/sql"
	"vinyl/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoryFactory opens the backend selected by database.driver and owns
// its connections. The redis client is shared with the event mirror.
type RepositoryFactory struct {
	driver      string
	redisClient *redis.Client
	db          *gorm.DB
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to the configured backends. Unlike room
// queues, rooms must survive restarts, so a failing database is an error
// rather than a silent fallback to memory. A failing redis that is only used
// for the event mirror is logged and skipped.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	f := &RepositoryFactory{
		driver: cfg.Database.Driver,
		logger: logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(context.Background(), redisrepo.ClientConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger.Named("redis"))
		switch {
		case err == nil:
			f.redisClient = client
		case f.driver == "redis":
			return nil, fmt.Errorf("redis room store: %w", err)
		default:
			logger.Warnw("redis unavailable, event mirror disabled", "error", err)
		}
	}

	switch f.driver {
	case "sqlite", "postgres", "mysql":
		db, err := sqlrepo.Open(sqlrepo.Config{
			Driver:          f.driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.db = db
	}

	logger.Infow("room repository selected", "driver", f.driver)
	return f, nil
}

func (f *RepositoryFactory) CreateRoomRepository() ports.RoomRepository {
	switch {
	case f.db != nil:
		return sqlrepo.NewGormRoomRepository(f.db)
	case f.driver == "redis" && f.redisClient != nil:
		return redisrepo.NewRedisRoomRepository(f.redisClient)
	default:
		return memory.NewMemoryRoomRepository()
	}
}

// RedisClient returns the shared client, nil when redis is disabled or
// unreachable.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	var firstErr error
	if f.db != nil {
		if err := sqlrepo.Close(f.db); err != nil {
			firstErr = err
		}
	}
	if f.redisClient != nil {
		if err := redisrepo.CloseRedisClient(f.redisClient); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HealthCheck pings every connected backend.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.db != nil {
		sqlDB, err := f.db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

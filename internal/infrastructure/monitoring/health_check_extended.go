package monitoring

import (
	"context"
	"fmt"
	"time"

	"vinyl/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, interval, timeout)
}

func (h *HealthChecker) AddRepositoryCheck(repo ports.RoomRepository, interval, timeout time.Duration) {
	h.AddCheck("database", repo.Ping, interval, timeout)
}

// AddBusLagCheck fails while more than max events wait for dispatch.
func (h *HealthChecker) AddBusLagCheck(pending func() int, max int, interval time.Duration) {
	h.AddCheck("event_bus", func(context.Context) error {
		if n := pending(); n > max {
			return fmt.Errorf("%d events pending (max %d)", n, max)
		}
		return nil
	}, interval, time.Second)
}

// AddBinaryCheck verifies an external tool the server shells out to.
func (h *HealthChecker) AddBinaryCheck(name string, lookPath func() error, interval time.Duration) {
	h.AddCheck(name, func(context.Context) error {
		if err := lookPath(); err != nil {
			return fmt.Errorf("%s not found: %w", name, err)
		}
		return nil
	}, interval, time.Second)
}

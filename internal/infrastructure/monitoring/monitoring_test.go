package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"vinyl/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Events(t *testing.T) {
	c := NewPrometheusCollector(prometheus.NewRegistry())
	ctx := context.Background()

	events := []domain.Event{
		domain.RoomCreated{Room: domain.Room{ID: "r1"}},
		domain.ListenerJoined{RoomID: "r1"},
		domain.ListenerJoined{RoomID: "r1"},
		domain.ListenerLeft{RoomID: "r1"},
		domain.TrackQueued{RoomID: "r1"},
		domain.IngestionFailed{TrackID: "t1"},
		domain.TrackEnded{RoomID: "r1", Err: "decode failed"},
	}
	for _, e := range events {
		require.NoError(t, c.Handle(ctx, e))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(c.roomsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.roomListeners.WithLabelValues("r1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tracksQueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ingestionTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tracksFinished.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("room", "room.listener_joined")))

	c.ObserveChunk("r1", 1024, 2, 1)
	assert.Equal(t, 1024.0, testutil.ToFloat64(c.playbackBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.chunksDropped))
}

func TestPrometheusCollector_WatchGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)
	c.WatchGauge("vinyl_test_backlog", "test", func() float64 { return 7 })

	n, err := testutil.GatherAndCount(reg, "vinyl_test_backlog")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker()
	pending := 0
	h.AddBusLagCheck(func() int { return pending }, 10, 0)
	h.AddCheck("database", func(context.Context) error { return nil }, 0, time.Second)

	ctx := context.Background()
	status := h.CheckAll(ctx)
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Checks["event_bus"])
	assert.True(t, h.IsReady(ctx))

	pending = 11
	status = h.CheckAll(ctx)
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Contains(t, status.Checks["event_bus"], "11 events pending")

	cached := h.Cached()
	assert.Equal(t, StatusUnhealthy, cached.Status)
}

func TestHealthChecker_BinaryAndTimeout(t *testing.T) {
	h := NewHealthChecker()
	h.AddBinaryCheck("ffmpeg", func() error { return errors.New("exec: not found") }, 0)
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 0, 10*time.Millisecond)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Contains(t, status.Checks["ffmpeg"], "ffmpeg not found")
	assert.Contains(t, status.Checks["slow"], "deadline exceeded")
}

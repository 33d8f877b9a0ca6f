package monitoring

import (
	"context"
	"strconv"
	"time"

	"vinyl/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector turns bus events and playback fan-out counts into
// prometheus metrics. It is registered as a bus handler and as the playback
// observer.
type PrometheusCollector struct {
	factory promauto.Factory

	roomsTotal     prometheus.Gauge
	roomListeners  *prometheus.GaugeVec
	eventsTotal    *prometheus.CounterVec
	tracksQueued   prometheus.Counter
	tracksFinished *prometheus.CounterVec
	ingestionTotal *prometheus.CounterVec

	playbackBytes  prometheus.Counter
	chunksDropped  prometheus.Counter
	chunkListeners prometheus.Histogram

	httpDuration *prometheus.HistogramVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		factory: f,

		roomsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "vinyl_rooms_total",
			Help: "Number of rooms created or restored",
		}),

		roomListeners: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vinyl_room_listeners",
			Help: "Listeners attached to each room broadcast",
		}, []string{"room_id"}),

		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vinyl_bus_events_total",
			Help: "Events dispatched on the event bus",
		}, []string{"family", "type"}),

		tracksQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "vinyl_tracks_queued_total",
			Help: "Tracks submitted to room queues",
		}),

		tracksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vinyl_tracks_finished_total",
			Help: "Tracks that left the playback engine",
		}, []string{"result"}),

		ingestionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vinyl_ingestion_total",
			Help: "Ingestion pipeline outcomes",
		}, []string{"stage"}),

		playbackBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "vinyl_playback_bytes_total",
			Help: "PCM bytes written to room broadcasters",
		}),

		chunksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "vinyl_listener_chunks_dropped_total",
			Help: "Chunks skipped because a listener fell behind",
		}),

		chunkListeners: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vinyl_chunk_fanout_listeners",
			Help:    "Listeners reached per broadcast chunk",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vinyl_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route", "status"}),
	}
}

// WatchGauge exports fn as a gauge sampled at scrape time.
func (c *PrometheusCollector) WatchGauge(name, help string, fn func() float64) {
	c.factory.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

func (c *PrometheusCollector) Handle(_ context.Context, event domain.Event) error {
	c.eventsTotal.WithLabelValues(string(event.Family()), event.Name()).Inc()

	switch e := event.(type) {
	case domain.RoomCreated:
		c.roomsTotal.Inc()
	case domain.ListenerJoined:
		c.roomListeners.WithLabelValues(string(e.RoomID)).Inc()
	case domain.ListenerLeft:
		c.roomListeners.WithLabelValues(string(e.RoomID)).Dec()
	case domain.TrackQueued:
		c.tracksQueued.Inc()
	case domain.TrackDequeued, domain.TrackStarted:
	case domain.TrackEnded:
		result := "ok"
		if e.Err != "" {
			result = "error"
		}
		c.tracksFinished.WithLabelValues(result).Inc()
	case domain.IngestionProbed:
		c.ingestionTotal.WithLabelValues("probed").Inc()
	case domain.IngestionResolved:
		c.ingestionTotal.WithLabelValues("resolved").Inc()
	case domain.IngestionFailed:
		c.ingestionTotal.WithLabelValues("failed").Inc()
	}
	return nil
}

// SetRooms seeds the room gauge with rooms restored at startup, which do
// not produce RoomCreated events.
func (c *PrometheusCollector) SetRooms(n int) {
	c.roomsTotal.Set(float64(n))
}

func (c *PrometheusCollector) ObserveChunk(_ domain.RoomID, bytes, delivered, dropped int) {
	c.playbackBytes.Add(float64(bytes))
	c.chunksDropped.Add(float64(dropped))
	c.chunkListeners.Observe(float64(delivered + dropped))
}

func (c *PrometheusCollector) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

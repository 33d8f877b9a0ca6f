package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/pkg/batch"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MirroredEvent is the redis pub/sub representation of a bus event.
type MirroredEvent struct {
	Type       string             `json:"type"`
	Family     domain.EventFamily `json:"family"`
	InstanceID string             `json:"instance_id"`
	Timestamp  time.Time          `json:"timestamp"`
	RoomID     domain.RoomID      `json:"room_id,omitempty"`
	Payload    json.RawMessage    `json:"payload"`
}

type MirrorConfig struct {
	Channel       string
	InstanceID    string
	BatchSize     int
	FlushInterval time.Duration
}

// EventMirror republishes every bus event on a redis channel so other
// instances and tools can follow room activity. Events are batched and
// published from the batcher goroutine; Handle never touches the network.
type EventMirror struct {
	client     *redis.Client
	channel    string
	instanceID string
	batcher    *batch.Batcher[MirroredEvent]
	publish    func(ctx context.Context, frames [][]byte) error
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewEventMirror(client *redis.Client, cfg MirrorConfig, logger *zap.SugaredLogger) *EventMirror {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Channel == "" {
		cfg.Channel = "vinyl:events"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}

	m := &EventMirror{
		client:     client,
		channel:    cfg.Channel,
		instanceID: cfg.InstanceID,
		logger:     logger,
		now:        time.Now,
	}
	m.publish = m.publishPipelined
	m.batcher = batch.NewBatcher(cfg.BatchSize, cfg.FlushInterval, m.flush, func(err error, dropped int) {
		logger.Warnw("failed to mirror events", "error", err, "dropped", dropped)
	})
	return m
}

func (m *EventMirror) Handle(_ context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Name(), err)
	}
	m.batcher.Add(MirroredEvent{
		Type:       event.Name(),
		Family:     event.Family(),
		InstanceID: m.instanceID,
		Timestamp:  m.now().UTC(),
		RoomID:     roomOf(event),
		Payload:    payload,
	})
	return nil
}

// Subscribe delivers events mirrored by other instances until ctx is done.
func (m *EventMirror) Subscribe(ctx context.Context, handler func(*MirroredEvent) error) error {
	pubsub := m.client.Subscribe(ctx, m.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event MirroredEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				m.logger.Warnw("failed to unmarshal mirrored event", "error", err)
				continue
			}
			if event.InstanceID == m.instanceID {
				continue
			}
			if err := handler(&event); err != nil {
				m.logger.Warnw("error handling mirrored event", "type", event.Type, "error", err)
			}
		}
	}
}

// Close flushes pending events and stops the batcher.
func (m *EventMirror) Close() {
	m.batcher.Stop()
}

func (m *EventMirror) flush(ctx context.Context, items []MirroredEvent) error {
	frames := make([][]byte, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		frames = append(frames, data)
	}
	if err := m.publish(ctx, frames); err != nil {
		return err
	}
	m.logger.Debugw("mirrored events", "count", len(frames), "channel", m.channel)
	return nil
}

func (m *EventMirror) publishPipelined(ctx context.Context, frames [][]byte) error {
	_, err := m.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, frame := range frames {
			pipe.Publish(ctx, m.channel, frame)
		}
		return nil
	})
	return err
}

func roomOf(event domain.Event) domain.RoomID {
	switch e := event.(type) {
	case domain.RoomCreated:
		return e.Room.ID
	case domain.ListenerJoined:
		return e.RoomID
	case domain.ListenerLeft:
		return e.RoomID
	case domain.TrackQueued:
		return e.RoomID
	case domain.TrackDequeued:
		return e.RoomID
	case domain.TrackStarted:
		return e.RoomID
	case domain.TrackEnded:
		return e.RoomID
	case domain.IngestionProbed, domain.IngestionResolved, domain.IngestionFailed:
		return ""
	}
	return ""
}

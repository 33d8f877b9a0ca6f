package services

import (
	"context"

	"vinyl/internal/core/domain"

	"go.uber.org/zap"
)

// EventLogger writes every bus event to the log at debug level.
type EventLogger struct {
	logger *zap.SugaredLogger
}

func NewEventLogger(logger *zap.SugaredLogger) *EventLogger {
	return &EventLogger{logger: logger}
}

func (l *EventLogger) Handle(_ context.Context, event domain.Event) error {
	kv := []interface{}{"type", event.Name()}

	switch e := event.(type) {
	case domain.RoomCreated:
		kv = append(kv, "room_id", e.Room.ID, "name", e.Room.Name)
	case domain.ListenerJoined:
		kv = append(kv, "room_id", e.RoomID, "listener_id", e.ListenerID, "user_id", e.UserID)
	case domain.ListenerLeft:
		kv = append(kv, "room_id", e.RoomID, "listener_id", e.ListenerID, "user_id", e.UserID)
	case domain.TrackQueued:
		kv = append(kv, "room_id", e.RoomID, "track_id", e.Track.ID, "reference", e.Track.Input.Reference())
	case domain.TrackDequeued:
		kv = append(kv, "room_id", e.RoomID, "track_id", e.TrackID)
	case domain.TrackStarted:
		kv = append(kv, "room_id", e.RoomID, "track_id", e.Track.ID, "display", e.Track.Display())
	case domain.TrackEnded:
		kv = append(kv, "room_id", e.RoomID, "track_id", e.TrackID, "error", e.Err)
	case domain.IngestionProbed:
		kv = append(kv, "track_id", e.TrackID, "fingerprint", e.Fingerprint)
	case domain.IngestionResolved:
		kv = append(kv, "fingerprint", e.Fingerprint)
	case domain.IngestionFailed:
		kv = append(kv, "track_id", e.TrackID, "fingerprint", e.Fingerprint, "reason", e.Reason)
	}

	l.logger.Debugw("event", kv...)
	return nil
}

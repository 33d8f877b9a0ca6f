package signal

import (
	"time"

	"vinyl/internal/core/domain"
)

// Message is the JSON text frame pushed to websocket clients.
type Message struct {
	Type      string        `json:"type"`
	RoomID    domain.RoomID `json:"room_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   interface{}   `json:"payload"`
}

type listenerPayload struct {
	ListenerID domain.ListenerID `json:"listener_id"`
	UserID     domain.UserID     `json:"user_id"`
}

type trackQueuedPayload struct {
	QueueID domain.QueueID         `json:"queue_id"`
	Track   domain.SerializedTrack `json:"track"`
}

type trackDequeuedPayload struct {
	QueueID domain.QueueID `json:"queue_id"`
	TrackID domain.TrackID `json:"track_id"`
}

type trackStartedPayload struct {
	Track domain.SerializedTrack `json:"track"`
}

type trackEndedPayload struct {
	TrackID domain.TrackID `json:"track_id"`
	Error   string         `json:"error,omitempty"`
}

type probedPayload struct {
	TrackID     domain.TrackID `json:"track_id"`
	Fingerprint string         `json:"fingerprint"`
	Title       string         `json:"title"`
	Channel     string         `json:"channel,omitempty"`
}

type resolvedPayload struct {
	Fingerprint string `json:"fingerprint"`
}

type failedPayload struct {
	TrackID     domain.TrackID `json:"track_id,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Reason      string         `json:"reason"`
}

// scope says who receives an event: every client, the clients of one room,
// or the rooms holding the tracks an ingestion event refers to.
type scope struct {
	all         bool
	room        domain.RoomID
	trackID     domain.TrackID
	fingerprint string
}

func describe(event domain.Event) (scope, interface{}) {
	switch e := event.(type) {
	case domain.RoomCreated:
		return scope{all: true}, e.Room
	case domain.ListenerJoined:
		return scope{room: e.RoomID}, listenerPayload{ListenerID: e.ListenerID, UserID: e.UserID}
	case domain.ListenerLeft:
		return scope{room: e.RoomID}, listenerPayload{ListenerID: e.ListenerID, UserID: e.UserID}
	case domain.TrackQueued:
		return scope{room: e.RoomID}, trackQueuedPayload{QueueID: e.QueueID, Track: e.Track.Serialize()}
	case domain.TrackDequeued:
		return scope{room: e.RoomID}, trackDequeuedPayload{QueueID: e.QueueID, TrackID: e.TrackID}
	case domain.TrackStarted:
		return scope{room: e.RoomID}, trackStartedPayload{Track: e.Track.Serialize()}
	case domain.TrackEnded:
		return scope{room: e.RoomID}, trackEndedPayload{TrackID: e.TrackID, Error: e.Err}
	case domain.IngestionProbed:
		return scope{trackID: e.TrackID}, probedPayload{TrackID: e.TrackID, Fingerprint: e.Fingerprint, Title: e.Title, Channel: e.Channel}
	case domain.IngestionResolved:
		return scope{fingerprint: e.Fingerprint}, resolvedPayload{Fingerprint: e.Fingerprint}
	case domain.IngestionFailed:
		return scope{trackID: e.TrackID, fingerprint: e.Fingerprint}, failedPayload{TrackID: e.TrackID, Fingerprint: e.Fingerprint, Reason: e.Reason}
	default:
		return scope{}, nil
	}
}

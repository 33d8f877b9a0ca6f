package domain

type EventFamily string

const (
	FamilyRoom      EventFamily = "room"
	FamilyAudio     EventFamily = "audio"
	FamilyQueue     EventFamily = "queue"
	FamilyIngestion EventFamily = "ingestion"
)

// Event is an immutable domain fact published on the event bus. The set of
// variants is closed; handlers switch over the concrete types.
type Event interface {
	Family() EventFamily
	Name() string
	isEvent()
}

// Room family

type RoomCreated struct {
	Room Room
}

type ListenerJoined struct {
	RoomID     RoomID
	ListenerID ListenerID
	UserID     UserID
}

type ListenerLeft struct {
	RoomID     RoomID
	ListenerID ListenerID
	UserID     UserID
}

// Queue family

type TrackQueued struct {
	RoomID  RoomID
	QueueID QueueID
	Track   Track
}

type TrackDequeued struct {
	RoomID  RoomID
	QueueID QueueID
	TrackID TrackID
}

// Audio family

type TrackStarted struct {
	RoomID RoomID
	Track  Track
}

// TrackEnded is emitted after the finished track has been dequeued. Err is
// empty when the track played to completion.
type TrackEnded struct {
	RoomID  RoomID
	TrackID TrackID
	Err     string
}

// Ingestion family

type IngestionProbed struct {
	TrackID     TrackID
	Fingerprint string
	Title       string
	Channel     string
}

type IngestionResolved struct {
	Fingerprint string
	Source      Source
}

// IngestionFailed carries an empty Fingerprint when the probe itself failed;
// consumers then fall back to TrackID.
type IngestionFailed struct {
	TrackID     TrackID
	Fingerprint string
	Reason      string
}

func (RoomCreated) Family() EventFamily       { return FamilyRoom }
func (ListenerJoined) Family() EventFamily    { return FamilyRoom }
func (ListenerLeft) Family() EventFamily      { return FamilyRoom }
func (TrackQueued) Family() EventFamily       { return FamilyQueue }
func (TrackDequeued) Family() EventFamily     { return FamilyQueue }
func (TrackStarted) Family() EventFamily      { return FamilyAudio }
func (TrackEnded) Family() EventFamily        { return FamilyAudio }
func (IngestionProbed) Family() EventFamily   { return FamilyIngestion }
func (IngestionResolved) Family() EventFamily { return FamilyIngestion }
func (IngestionFailed) Family() EventFamily   { return FamilyIngestion }

func (RoomCreated) Name() string       { return "room.created" }
func (ListenerJoined) Name() string    { return "room.listener_joined" }
func (ListenerLeft) Name() string      { return "room.listener_left" }
func (TrackQueued) Name() string       { return "queue.track_queued" }
func (TrackDequeued) Name() string     { return "queue.track_dequeued" }
func (TrackStarted) Name() string      { return "audio.track_started" }
func (TrackEnded) Name() string        { return "audio.track_ended" }
func (IngestionProbed) Name() string   { return "ingestion.probed" }
func (IngestionResolved) Name() string { return "ingestion.resolved" }
func (IngestionFailed) Name() string   { return "ingestion.failed" }

func (RoomCreated) isEvent()       {}
func (ListenerJoined) isEvent()    {}
func (ListenerLeft) isEvent()      {}
func (TrackQueued) isEvent()       {}
func (TrackDequeued) isEvent()     {}
func (TrackStarted) isEvent()      {}
func (TrackEnded) isEvent()        {}
func (IngestionProbed) isEvent()   {}
func (IngestionResolved) isEvent() {}
func (IngestionFailed) isEvent()   {}

package domain

import "time"

type RoomID string
type QueueID string
type ListenerID string

type Room struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	Owner     UserID    `json:"owner"`
	QueueID   QueueID   `json:"queue_id"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueIDFor derives the queue id owned by a room. Queues are not persisted,
// so the mapping has to be reproducible from the room alone.
func QueueIDFor(id RoomID) QueueID {
	return QueueID(id)
}

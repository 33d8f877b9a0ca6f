package services

import (
	"context"
	"fmt"
	"sync"

	"vinyl/internal/core/domain"
	"vinyl/pkg/bus"

	"go.uber.org/zap"
)

type queue struct {
	roomID domain.RoomID
	tracks []domain.Track
}

// QueueService owns every room's track queue. All queues share one lock;
// it is never held across I/O.
type QueueService struct {
	mu     sync.Mutex
	queues map[domain.QueueID]*queue

	emitter bus.Emitter[domain.Event]
	logger  *zap.SugaredLogger
}

func NewQueueService(emitter bus.Emitter[domain.Event], logger *zap.SugaredLogger) *QueueService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &QueueService{
		queues:  make(map[domain.QueueID]*queue),
		emitter: emitter,
		logger:  logger,
	}
}

// Create allocates the empty queue owned by roomID. Creating it twice is a
// no-op.
func (s *QueueService) Create(roomID domain.RoomID) domain.QueueID {
	id := domain.QueueIDFor(roomID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[id]; !ok {
		s.queues[id] = &queue{roomID: roomID}
	}
	return id
}

// Push appends track to the tail of the queue.
func (s *QueueService) Push(queueID domain.QueueID, track domain.Track) error {
	s.mu.Lock()
	q, ok := s.queues[queueID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("push to %s: %w", queueID, domain.ErrQueueNotFound)
	}
	q.tracks = append(q.tracks, track)
	roomID := q.roomID
	s.mu.Unlock()

	s.emitter.Emit(domain.TrackQueued{RoomID: roomID, QueueID: queueID, Track: track})
	return nil
}

// Dequeue removes and returns the head of the queue.
func (s *QueueService) Dequeue(queueID domain.QueueID) (domain.Track, bool) {
	s.mu.Lock()
	q, ok := s.queues[queueID]
	if !ok || len(q.tracks) == 0 {
		s.mu.Unlock()
		return domain.Track{}, false
	}
	head := q.tracks[0]
	q.tracks[0] = domain.Track{}
	q.tracks = q.tracks[1:]
	if len(q.tracks) == 0 {
		q.tracks = nil
	}
	roomID := q.roomID
	s.mu.Unlock()

	s.emitter.Emit(domain.TrackDequeued{RoomID: roomID, QueueID: queueID, TrackID: head.ID})
	return head, true
}

// Head returns a copy of the track at the front of the queue.
func (s *QueueService) Head(queueID domain.QueueID) (domain.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueID]
	if !ok || len(q.tracks) == 0 {
		return domain.Track{}, false
	}
	return q.tracks[0], true
}

// Next returns the first track that has not failed. Failed tracks stay in
// the queue, in their terminal state, until a track behind them finishes.
func (s *QueueService) Next(queueID domain.QueueID) (domain.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueID]
	if !ok {
		return domain.Track{}, false
	}
	for _, t := range q.tracks {
		if !t.Failed() {
			return t, true
		}
	}
	return domain.Track{}, false
}

func (s *QueueService) Len(queueID domain.QueueID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[queueID]; ok {
		return len(q.tracks)
	}
	return 0
}

// Serialized returns a point-in-time snapshot of the queue in play order.
func (s *QueueService) Serialized(queueID domain.QueueID) (domain.SerializedQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueID]
	if !ok {
		return domain.SerializedQueue{}, fmt.Errorf("serialize %s: %w", queueID, domain.ErrQueueNotFound)
	}

	out := domain.SerializedQueue{
		ID:     queueID,
		RoomID: q.roomID,
		Tracks: make([]domain.SerializedTrack, 0, len(q.tracks)),
	}
	for _, t := range q.tracks {
		out.Tracks = append(out.Tracks, t.Serialize())
	}
	return out, nil
}

// RoomsForIngestion returns the rooms whose queues hold the track with the
// given id or, when fingerprint is non-empty, any track with that
// fingerprint.
func (s *QueueService) RoomsForIngestion(trackID domain.TrackID, fingerprint string) []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rooms []domain.RoomID
	for _, q := range s.queues {
		for _, t := range q.tracks {
			if t.ID == trackID || (fingerprint != "" && t.Fingerprint == fingerprint) {
				rooms = append(rooms, q.roomID)
				break
			}
		}
	}
	return rooms
}

// Handle applies ingestion outcomes to queued tracks in place.
func (s *QueueService) Handle(_ context.Context, event domain.Event) error {
	switch e := event.(type) {
	case domain.IngestionProbed:
		s.update(func(t *domain.Track) bool { return t.ID == e.TrackID && t.Pending() }, func(t *domain.Track) {
			t.Fingerprint = e.Fingerprint
			t.Title = e.Title
			t.Channel = e.Channel
		})

	case domain.IngestionResolved:
		if e.Source.URL == "" {
			return fmt.Errorf("resolution for %q carries no source", e.Fingerprint)
		}
		n := s.update(func(t *domain.Track) bool { return t.Fingerprint == e.Fingerprint && t.Pending() }, func(t *domain.Track) {
			t.Status = domain.TrackResolved
			t.Source = e.Source
		})
		s.logger.Debugw("tracks resolved", "fingerprint", e.Fingerprint, "count", n)

	case domain.IngestionFailed:
		match := func(t *domain.Track) bool { return t.ID == e.TrackID && t.Pending() }
		if e.Fingerprint != "" {
			match = func(t *domain.Track) bool { return t.Fingerprint == e.Fingerprint && t.Pending() }
		}
		n := s.update(match, func(t *domain.Track) {
			t.Status = domain.TrackFailed
			t.Error = e.Reason
		})
		s.logger.Debugw("tracks failed", "fingerprint", e.Fingerprint, "track_id", e.TrackID, "count", n)
	}
	return nil
}

func (s *QueueService) update(match func(*domain.Track) bool, apply func(*domain.Track)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, q := range s.queues {
		for i := range q.tracks {
			if match(&q.tracks[i]) {
				apply(&q.tracks[i])
				n++
			}
		}
	}
	return n
}

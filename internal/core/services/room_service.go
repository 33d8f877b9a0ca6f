package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/bus"
	"vinyl/pkg/utils"
	"vinyl/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomService is the authoritative room registry and the entry point for
// submissions and listener attachment. One lock covers the whole registry.
type RoomService struct {
	repo     ports.RoomRepository
	queues   *QueueService
	ingest   *IngestService
	playback *PlaybackService
	emitter  bus.Emitter[domain.Event]
	logger   *zap.SugaredLogger

	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.Room
	order []domain.RoomID
}

func NewRoomService(
	repo ports.RoomRepository,
	queues *QueueService,
	ingest *IngestService,
	playback *PlaybackService,
	emitter bus.Emitter[domain.Event],
	logger *zap.SugaredLogger,
) *RoomService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RoomService{
		repo:     repo,
		queues:   queues,
		ingest:   ingest,
		playback: playback,
		emitter:  emitter,
		logger:   logger,
		rooms:    make(map[domain.RoomID]domain.Room),
	}
}

// CreateRoom persists a new room and only then registers it, together with
// its queue, in memory. A repository failure leaves no trace of the room.
func (s *RoomService) CreateRoom(ctx context.Context, owner domain.UserID, name string) (domain.Room, error) {
	name = utils.SanitizeString(name)
	if err := validation.ValidateRoomName(name); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", domain.ErrInvalidRoomName, err)
	}

	id := domain.RoomID(uuid.NewString())
	room := domain.Room{
		ID:        id,
		Name:      name,
		Owner:     owner,
		QueueID:   domain.QueueIDFor(id),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := s.repo.Create(ctx, &room); err != nil {
		return domain.Room{}, fmt.Errorf("%w: create room: %w", domain.ErrDatabase, err)
	}

	s.register(room)
	s.emitter.Emit(domain.RoomCreated{Room: room})
	s.logger.Infow("room created", "room_id", room.ID, "owner", owner, "name", name)
	return room, nil
}

// Restore loads every persisted room and rebuilds its queue and playback
// loop. It must complete before the server accepts requests.
func (s *RoomService) Restore(ctx context.Context) error {
	rooms, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: load rooms: %w", domain.ErrDatabase, err)
	}

	for _, r := range rooms {
		room := *r
		room.QueueID = domain.QueueIDFor(room.ID)
		s.register(room)
	}
	s.logger.Infow("rooms restored", "count", len(rooms))
	return nil
}

func (s *RoomService) register(room domain.Room) {
	s.mu.Lock()
	if _, exists := s.rooms[room.ID]; exists {
		s.mu.Unlock()
		return
	}
	s.queues.Create(room.ID)
	s.rooms[room.ID] = room
	s.order = append(s.order, room.ID)
	s.mu.Unlock()

	s.playback.Start(room.ID, room.QueueID)
}

// Rooms returns a snapshot of all rooms in creation order.
func (s *RoomService) Rooms() []domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Room, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rooms[id])
	}
	return out
}

func (s *RoomService) Room(id domain.RoomID) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, domain.ErrRoomNotFound)
	}
	return room, nil
}

// AddInput appends a pending track to the room's queue, where it is visible
// immediately, and hands it to the ingestion pipeline.
func (s *RoomService) AddInput(ctx context.Context, user domain.UserID, roomID domain.RoomID, input domain.Input) (domain.Track, error) {
	room, err := s.Room(roomID)
	if err != nil {
		return domain.Track{}, err
	}

	track := domain.NewPendingTrack(domain.TrackID(uuid.NewString()), input, user)
	if err := s.queues.Push(room.QueueID, track); err != nil {
		return domain.Track{}, err
	}
	s.ingest.Submit(track)

	s.logger.Infow("track submitted",
		"room_id", roomID,
		"track_id", track.ID,
		"user_id", user,
		"reference", input.Reference(),
	)
	return track, nil
}

// Queue returns the serialized queue of a room.
func (s *RoomService) Queue(roomID domain.RoomID) (domain.SerializedQueue, error) {
	room, err := s.Room(roomID)
	if err != nil {
		return domain.SerializedQueue{}, err
	}
	return s.queues.Serialized(room.QueueID)
}

// Connect attaches a new listener to the room's live broadcast. Closing the
// listener detaches it without affecting playback.
func (s *RoomService) Connect(user domain.UserID, roomID domain.RoomID) (ports.Listener, error) {
	if _, err := s.Room(roomID); err != nil {
		return nil, err
	}

	id := domain.ListenerID(utils.GenerateListenerID())
	l, err := s.playback.Subscribe(roomID, id, func() {
		s.emitter.Emit(domain.ListenerLeft{RoomID: roomID, ListenerID: id, UserID: user})
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(domain.ListenerJoined{RoomID: roomID, ListenerID: id, UserID: user})
	return l, nil
}

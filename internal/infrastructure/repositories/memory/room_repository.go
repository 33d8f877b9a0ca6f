package memory

import (
	"context"
	"fmt"
	"sync"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
)

type MemoryRoomRepository struct {
	rooms map[domain.RoomID]*domain.Room
	order []domain.RoomID
	mu    sync.RWMutex
}

func NewMemoryRoomRepository() ports.RoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[domain.RoomID]*domain.Room),
	}
}

func (r *MemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[room.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrRoomExists, room.ID)
	}

	stored := *room
	r.rooms[room.ID] = &stored
	r.order = append(r.order, room.ID)
	return nil
}

func (r *MemoryRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	out := *room
	return &out, nil
}

func (r *MemoryRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*domain.Room, 0, len(r.order))
	for _, id := range r.order {
		room := *r.rooms[id]
		rooms = append(rooms, &room)
	}
	return rooms, nil
}

func (r *MemoryRoomRepository) Ping(ctx context.Context) error {
	return nil
}

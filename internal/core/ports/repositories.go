package ports

import (
	"context"

	"vinyl/internal/core/domain"
)

// RoomRepository persists room records. Queues, tracks and the ingestion
// cache are in-memory only.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	// List returns every room in creation order.
	List(ctx context.Context) ([]*domain.Room, error)
	Ping(ctx context.Context) error
}

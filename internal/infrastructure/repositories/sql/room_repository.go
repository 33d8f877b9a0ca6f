package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/tracing"

	"gorm.io/gorm"
)

// RoomModel is the rooms table. Seq is an auto-increment column that keeps
// creation order exact when two rooms share a timestamp.
type RoomModel struct {
	Seq       uint      `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	Name      string    `gorm:"type:varchar(100);not null"`
	Owner     string    `gorm:"type:varchar(64);index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (RoomModel) TableName() string {
	return "rooms"
}

func (m *RoomModel) toDomain() *domain.Room {
	id := domain.RoomID(m.ID)
	return &domain.Room{
		ID:        id,
		Name:      m.Name,
		Owner:     domain.UserID(m.Owner),
		QueueID:   domain.QueueIDFor(id),
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type GormRoomRepository struct {
	db *gorm.DB
}

func NewGormRoomRepository(db *gorm.DB) ports.RoomRepository {
	return &GormRoomRepository{db: db}
}

func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) (err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "insert", "rooms")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	model := &RoomModel{
		ID:        string(room.ID),
		Name:      room.Name,
		Owner:     string(room.Owner),
		CreatedAt: room.CreatedAt,
	}

	var count int64
	if err = r.db.WithContext(ctx).Model(&RoomModel{}).Where("id = ?", model.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check room: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", domain.ErrRoomExists, room.ID)
	}

	if err = r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

func (r *GormRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (_ *domain.Room, err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "select", "rooms")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	var model RoomModel
	err = r.db.WithContext(ctx).First(&model, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return model.toDomain(), nil
}

func (r *GormRoomRepository) List(ctx context.Context) (_ []*domain.Room, err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "list", "rooms")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()

	var models []RoomModel
	if err = r.db.WithContext(ctx).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	rooms := make([]*domain.Room, len(models))
	for i := range models {
		rooms[i] = models[i].toDomain()
	}
	return rooms, nil
}

func (r *GormRoomRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Package backup snapshots persisted rooms on a schedule and replays a
// snapshot into an empty repository at startup.
package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vinyl/internal/core/ports"
	"vinyl/pkg/backup"

	"go.uber.org/zap"
)

type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// Scheduler takes periodic room snapshots and prunes the old ones.
type Scheduler struct {
	backupService *backup.BackupService
	roomRepo      ports.RoomRepository
	cfg           Config
	logger        *zap.SugaredLogger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewScheduler(
	backupService *backup.BackupService,
	roomRepo ports.RoomRepository,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Scheduler{
		backupService: backupService,
		roomRepo:      roomRepo,
		cfg:           cfg,
		logger:        logger,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

func (s *Scheduler) runBackup(ctx context.Context) {
	name, count, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Errorw("scheduled backup failed", "error", err)
		return
	}
	s.logger.Infow("backup created", "backup_name", name, "rooms", count)

	if s.cfg.Retention > 0 {
		deleted, err := s.backupService.Prune(ctx, time.Now().Add(-s.cfg.Retention))
		if err != nil {
			s.logger.Warnw("failed to prune old backups", "error", err)
		} else if deleted > 0 {
			s.logger.Infow("pruned old backups", "deleted", deleted)
		}
	}
}

// Snapshot writes every persisted room to a new backup.
func (s *Scheduler) Snapshot(ctx context.Context) (string, int, error) {
	rooms, err := s.roomRepo.List(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("failed to list rooms: %w", err)
	}

	data := &backup.BackupData{
		Rooms:    make([]backup.RoomRecord, 0, len(rooms)),
		Metadata: map[string]interface{}{"room_count": len(rooms)},
	}
	for _, r := range rooms {
		data.Rooms = append(data.Rooms, backup.RoomRecord{
			ID:        string(r.ID),
			Name:      r.Name,
			Owner:     string(r.Owner),
			CreatedAt: r.CreatedAt,
		})
	}

	name, err := s.backupService.CreateBackup(ctx, data)
	if err != nil {
		return "", 0, err
	}
	return name, len(rooms), nil
}

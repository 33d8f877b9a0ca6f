package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/ports"
	"vinyl/pkg/backup"

	"go.uber.org/zap"
)

type RestoreService struct {
	backupService *backup.BackupService
	roomRepo      ports.RoomRepository
	logger        *zap.SugaredLogger
}

func NewRestoreService(
	backupService *backup.BackupService,
	roomRepo ports.RoomRepository,
	logger *zap.SugaredLogger,
) *RestoreService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RestoreService{
		backupService: backupService,
		roomRepo:      roomRepo,
		logger:        logger,
	}
}

// RestoreIfEmpty replays the newest backup when the repository holds no
// rooms. It returns the number of rooms written.
func (rs *RestoreService) RestoreIfEmpty(ctx context.Context) (int, error) {
	rooms, err := rs.roomRepo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list rooms: %w", err)
	}
	if len(rooms) > 0 {
		return 0, nil
	}

	latest, err := rs.backupService.LatestBackup(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to find backup: %w", err)
	}
	if latest == "" {
		return 0, nil
	}
	return rs.RestoreFromBackup(ctx, latest)
}

// RestoreFromBackup writes the rooms of one backup in their original order.
// Rooms that already exist are left untouched.
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, backupName string) (int, error) {
	rs.logger.Infow("starting restore", "backup_name", backupName)

	backupData, err := rs.backupService.RestoreBackup(ctx, backupName)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, rec := range backupData.Rooms {
		id := domain.RoomID(rec.ID)
		room := &domain.Room{
			ID:        id,
			Name:      rec.Name,
			Owner:     domain.UserID(rec.Owner),
			QueueID:   domain.QueueIDFor(id),
			CreatedAt: rec.CreatedAt,
		}
		switch err := rs.roomRepo.Create(ctx, room); {
		case err == nil:
			restored++
		case errors.Is(err, domain.ErrRoomExists):
		default:
			return restored, fmt.Errorf("failed to restore room %s: %w", rec.ID, err)
		}
	}

	rs.logger.Infow("restore completed",
		"backup_name", backupName,
		"restored", restored,
		"in_backup", len(backupData.Rooms),
	)
	return restored, nil
}

// FindBackupByTime returns the newest backup taken at or before targetTime.
func (rs *RestoreService) FindBackupByTime(ctx context.Context, targetTime time.Time) (string, error) {
	backups, err := rs.backupService.ListBackups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}

	for i := len(backups) - 1; i >= 0; i-- {
		ts, _ := backup.BackupTime(backups[i])
		if !ts.After(targetTime) {
			return backups[i], nil
		}
	}
	return "", fmt.Errorf("no backup found before or at target time: %v", targetTime)
}

package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*BackupService, string, *time.Time) {
	t.Helper()
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	service := NewBackupService(storage, "2")
	service.now = func() time.Time { return clock }
	return service, dir, &clock
}

func TestBackupService_CreateAndRestore(t *testing.T) {
	service, dir, _ := newTestService(t)
	ctx := context.Background()

	created := time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC)
	name, err := service.CreateBackup(ctx, &BackupData{
		Rooms: []RoomRecord{
			{ID: "r1", Name: "Lounge", Owner: "u1", CreatedAt: created},
			{ID: "r2", Name: "Basement", Owner: "u2", CreatedAt: created.Add(time.Minute)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "backup-20240301-120000.000.json", name)

	_, err = os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)

	data, err := service.RestoreBackup(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "2", data.Version)
	require.Len(t, data.Rooms, 2)
	assert.Equal(t, "Lounge", data.Rooms[0].Name)
	assert.True(t, created.Equal(data.Rooms[0].CreatedAt))
}

func TestBackupService_ListLatestAndPrune(t *testing.T) {
	service, dir, clock := newTestService(t)
	ctx := context.Background()

	var names []string
	for i := 0; i < 3; i++ {
		name, err := service.CreateBackup(ctx, &BackupData{})
		require.NoError(t, err)
		names = append(names, name)
		*clock = clock.Add(24 * time.Hour)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup-garbage.json"), []byte("{}"), 0644))

	listed, err := service.ListBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, names, listed)

	latest, err := service.LatestBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, names[2], latest)

	deleted, err := service.Prune(ctx, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	listed, err = service.ListBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{names[2]}, listed)
}

func TestBackupService_RejectsUnversioned(t *testing.T) {
	service, dir, _ := newTestService(t)
	name := "backup-20240301-120000.000.json"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`{"rooms":[]}`), 0644))

	_, err := service.RestoreBackup(context.Background(), name)
	assert.ErrorContains(t, err, "missing version")
}

func TestBackupTime(t *testing.T) {
	ts, ok := BackupTime("backup-20240301-120000.250.json")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC), ts)

	for _, name := range []string{"backup-.json", "snapshot-20240301-120000.000.json", "backup-20240301.json"} {
		_, ok := BackupTime(name)
		assert.False(t, ok, name)
	}
}

func TestFileStorage_PathsStayInsideBase(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "passwd"), storage.path("../../etc/passwd"))
}

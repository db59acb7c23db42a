package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parish/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	tempDir := t.TempDir()
	logger := zerolog.Nop()

	db, err := NewDB(filepath.Join(tempDir, "source.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	storagePath := filepath.Join(tempDir, "backups")
	s := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: storagePath, RetentionDays: 1}, &logger)

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(context.Background())
		require.NoError(t, err)
		assert.FileExists(t, path)

		// the copy is a usable database
		copyDB, err := NewDB(path, &logger)
		require.NoError(t, err)
		copyDB.Close()
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, backupPrefix+"old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		foreign := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))
		require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

		assert.Equal(t, 1, s.CleanupOldBackups())
		assert.NoFileExists(t, oldFile)
		assert.FileExists(t, foreign)
	})

	t.Run("Run", func(t *testing.T) {
		s.now = func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }
		s.config.RetentionDays = 0
		require.NoError(t, s.Run(context.Background()))
		assert.FileExists(t, filepath.Join(storagePath, backupPrefix+"20310101_000000.db"))
	})
}

func TestBackupService_BadStoragePath(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, nil, 0o644))

	db := setupTestDB(t)
	logger := zerolog.Nop()
	bs := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: filepath.Join(tmpFile, "sub")}, &logger)

	_, err := bs.PerformBackup(context.Background())
	assert.Error(t, err)
}

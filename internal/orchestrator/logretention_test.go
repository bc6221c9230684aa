package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sconfig "github.com/nimbuscore/sandboxcore/internal/config"
)

func TestCleanupOldLogs_SkipsWhenAutoCleanupDisabled(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "web")
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	path := filepath.Join(logDir, "old.log")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	require.NoError(t, cleanupOldLogs(dir, sconfig.LogRetentionPolicy{AutoCleanup: false}))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestCleanupOldLogs_RemovesFilesOlderThanMaxAge(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "web")
	require.NoError(t, os.MkdirAll(logDir, 0o755))

	oldPath := filepath.Join(logDir, "old.log")
	newPath := filepath.Join(logDir, "new.log")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(oldPath, time.Now().Add(-48*time.Hour), time.Now().Add(-48*time.Hour)))

	policy := sconfig.LogRetentionPolicy{AutoCleanup: true, MaxAge: 24 * time.Hour}
	require.NoError(t, cleanupOldLogs(dir, policy))

	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}

func TestCleanupOldLogs_KeepsOnlyMaxBackupsNewestFiles(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "web")
	require.NoError(t, os.MkdirAll(logDir, 0o755))

	now := time.Now()
	for i := 0; i < 5; i++ {
		p := filepath.Join(logDir, "log"+string(rune('0'+i)))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, now.Add(time.Duration(i)*time.Minute), now.Add(time.Duration(i)*time.Minute)))
	}

	policy := sconfig.LogRetentionPolicy{AutoCleanup: true, MaxBackups: 2}
	require.NoError(t, cleanupOldLogs(dir, policy))

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "log3", entries[0].Name())
	assert.Equal(t, "log4", entries[1].Name())
}

func TestCleanupOldLogs_MissingLogDirIsNotAnError(t *testing.T) {
	err := cleanupOldLogs(filepath.Join(t.TempDir(), "does-not-exist"), sconfig.LogRetentionPolicy{AutoCleanup: true})
	assert.NoError(t, err)
}

package sandboxdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sandbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fs := Filesystem{
		Project: "proj", Name: "alpha", MountDir: "/mnt/alpha", LogPath: "/logs/alpha.log",
		SupervisorPID: 100, NFSServerPID: 101, Status: StatusStarting, CreatedAt: time.Unix(1700000000, 0),
	}
	require.NoError(t, db.Insert(ctx, fs))

	got, err := db.Get(ctx, "proj", "alpha")
	require.NoError(t, err)
	assert.Equal(t, fs.MountDir, got.MountDir)
	assert.Equal(t, StatusStarting, got.Status)
	assert.Equal(t, 100, got.SupervisorPID)
}

func TestGet_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Get(context.Background(), "proj", "missing")
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeNotFound, code)
}

func TestUpdateStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, Filesystem{
		Project: "proj", Name: "beta", Status: StatusStarting, CreatedAt: time.Now(),
	}))
	require.NoError(t, db.UpdateStatus(ctx, "proj", "beta", StatusRunning))

	got, err := db.Get(ctx, "proj", "beta")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestUpdateStatus_MissingRow(t *testing.T) {
	db := openTestDB(t)
	err := db.UpdateStatus(context.Background(), "proj", "ghost", StatusRunning)
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeNotFound, code)
}

func TestListByProject_ScopedAndOrdered(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, db.Insert(ctx, Filesystem{Project: "p1", Name: name, Status: StatusRunning, CreatedAt: time.Now()}))
	}
	require.NoError(t, db.Insert(ctx, Filesystem{Project: "p2", Name: "other", Status: StatusRunning, CreatedAt: time.Now()}))

	rows, err := db.ListByProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, []string{rows[0].Name, rows[1].Name, rows[2].Name})
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, Filesystem{Project: "proj", Name: "gamma", Status: StatusRunning, CreatedAt: time.Now()}))
	require.NoError(t, db.Delete(ctx, "proj", "gamma"))

	_, err := db.Get(ctx, "proj", "gamma")
	require.Error(t, err)
}

func TestUpdateMicroVMPID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, Filesystem{Project: "proj", Name: "delta", Status: StatusStarting, CreatedAt: time.Now()}))
	require.NoError(t, db.UpdateMicroVMPID(ctx, "proj", "delta", 9999))

	got, err := db.Get(ctx, "proj", "delta")
	require.NoError(t, err)
	assert.Equal(t, 9999, got.MicroVMPID)
}

package vfs

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

func TestCreateFileAndReadBack(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()

	require.NoError(t, fs.CreateFile(ctx, "/a.txt", false))
	require.NoError(t, fs.WriteFile(ctx, "/a.txt", 0, []byte("hello")))

	r, err := fs.ReadFile(ctx, "/a.txt", 0, 5)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCreateFile_AlreadyExists(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	require.NoError(t, fs.CreateFile(ctx, "/a.txt", false))

	err := fs.CreateFile(ctx, "/a.txt", false)
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeAlreadyExists, code)

	require.NoError(t, fs.CreateFile(ctx, "/a.txt", true))
}

func TestCreateFile_ParentMissing(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	err := fs.CreateFile(ctx, "/missing/a.txt", false)
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeParentDirectoryNotFound, code)
}

func TestWriteFile_InvalidOffset(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	require.NoError(t, fs.CreateFile(ctx, "/a.txt", false))

	err := fs.WriteFile(ctx, "/a.txt", 10, []byte("x"))
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInvalidOffset, code)
}

func TestWriteFile_ExtendsFile(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	require.NoError(t, fs.CreateFile(ctx, "/a.txt", false))
	require.NoError(t, fs.WriteFile(ctx, "/a.txt", 0, []byte("hello")))
	require.NoError(t, fs.WriteFile(ctx, "/a.txt", 5, []byte(" world")))

	meta, err := fs.GetMetadata(ctx, "/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 11, meta.Size)
}

func TestReadDirectory_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	require.NoError(t, fs.CreateDirectory(ctx, "/d"))
	require.NoError(t, fs.CreateFile(ctx, "/d/z", false))
	require.NoError(t, fs.CreateFile(ctx, "/d/a", false))
	require.NoError(t, fs.CreateFile(ctx, "/d/m", false))

	entries, err := fs.ReadDirectory(ctx, "/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, entries)
}

func TestRemoveDirectory_NotEmpty(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	require.NoError(t, fs.CreateDirectory(ctx, "/d"))
	require.NoError(t, fs.CreateFile(ctx, "/d/a", false))

	err := fs.RemoveDirectory(ctx, "/d")
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeNotEmpty, code)

	require.NoError(t, fs.Remove(ctx, "/d/a"))
	require.NoError(t, fs.RemoveDirectory(ctx, "/d"))
}

func TestSymlink_ReadAndRejectInvalidTarget(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	require.NoError(t, fs.CreateSymlink(ctx, "/link", "/a/b"))

	target, err := fs.ReadSymlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", target)

	err = fs.CreateSymlink(ctx, "/bad", "")
	require.Error(t, err)
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	require.NoError(t, fs.CreateFile(ctx, "/a", false))
	require.NoError(t, fs.Rename(ctx, "/a", "/b"))

	exists, err := fs.Exists(ctx, "/a")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = fs.Exists(ctx, "/b")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestExists_NonexistentParentReturnsFalseNotError(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	exists, err := fs.Exists(ctx, "/missing/deeply/nested")
	require.NoError(t, err)
	assert.False(t, exists)
}

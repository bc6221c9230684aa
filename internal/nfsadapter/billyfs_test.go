package nfsadapter

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscore/sandboxcore/internal/vfs"
)

func TestBillyFS_CreateWriteRead(t *testing.T) {
	root := vfs.NewMemFS()
	fs := New(root)

	f, err := fs.Create("/greeting.txt")
	require.NoError(t, err)
	n, err := f.Write([]byte("hello nfs"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	require.NoError(t, f.Close())

	reader, err := fs.Open("/greeting.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "hello nfs", string(data))
}

func TestBillyFS_ReadDirAndStat(t *testing.T) {
	root := vfs.NewMemFS()
	fs := New(root)

	require.NoError(t, fs.MkdirAll("/a/b", 0o755))
	_, err := fs.Create("/a/b/file")
	require.NoError(t, err)

	infos, err := fs.ReadDir("/a/b")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "file", infos[0].Name())
	assert.False(t, infos[0].IsDir())

	stat, err := fs.Stat("/a/b")
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}

func TestBillyFS_OpenMissingTranslatesToNotExist(t *testing.T) {
	root := vfs.NewMemFS()
	fs := New(root)

	_, err := fs.Open("/nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBillyFS_Symlink(t *testing.T) {
	root := vfs.NewMemFS()
	fs := New(root)

	require.NoError(t, fs.Symlink("/target", "/link"))
	got, err := fs.Readlink("/link")
	require.NoError(t, err)
	assert.Equal(t, "/target", got)
}

package overlay

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscore/sandboxcore/internal/vfs"
)

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

// TestOverlay_UpperWins is scenario S3.
func TestOverlay_UpperWins(t *testing.T) {
	ctx := context.Background()
	lower := vfs.NewMemFS()
	require.NoError(t, lower.CreateDirectory(ctx, "/a"))
	require.NoError(t, lower.CreateFile(ctx, "/a/b.txt", false))
	require.NoError(t, lower.WriteFile(ctx, "/a/b.txt", 0, []byte("old")))

	upper := vfs.NewMemFS()
	ov, err := New(upper, lower)
	require.NoError(t, err)

	require.NoError(t, ov.WriteFile(ctx, "/a/b.txt", 0, []byte("new")))

	r, err := ov.ReadFile(ctx, "/a/b.txt", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "new", readAll(t, r))

	freshUpper := vfs.NewMemFS()
	freshOv, err := New(freshUpper, lower)
	require.NoError(t, err)
	r, err = freshOv.ReadFile(ctx, "/a/b.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "old", readAll(t, r))
}

// TestOverlay_WhiteoutListing is scenario S4.
func TestOverlay_WhiteoutListing(t *testing.T) {
	ctx := context.Background()
	lower := vfs.NewMemFS()
	require.NoError(t, lower.CreateDirectory(ctx, "/d"))
	require.NoError(t, lower.CreateFile(ctx, "/d/x", false))
	require.NoError(t, lower.CreateFile(ctx, "/d/y", false))

	upper := vfs.NewMemFS()
	ov, err := New(upper, lower)
	require.NoError(t, err)

	require.NoError(t, ov.Remove(ctx, "/d/x"))

	entries, err := ov.ReadDirectory(ctx, "/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, entries)

	exists, err := ov.Exists(ctx, "/d/x")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOverlay_CopyUpLeavesLowerUnchanged(t *testing.T) {
	ctx := context.Background()
	lower := vfs.NewMemFS()
	require.NoError(t, lower.CreateFile(ctx, "/f", false))
	require.NoError(t, lower.WriteFile(ctx, "/f", 0, []byte("orig")))

	upper := vfs.NewMemFS()
	ov, err := New(upper, lower)
	require.NoError(t, err)

	require.NoError(t, ov.WriteFile(ctx, "/f", 0, []byte("changed")))

	r, err := lower.ReadFile(ctx, "/f", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "orig", readAll(t, r))
}

func TestOverlay_RecreateAfterWhiteoutClearsIt(t *testing.T) {
	ctx := context.Background()
	lower := vfs.NewMemFS()
	require.NoError(t, lower.CreateFile(ctx, "/f", false))

	upper := vfs.NewMemFS()
	ov, err := New(upper, lower)
	require.NoError(t, err)

	require.NoError(t, ov.Remove(ctx, "/f"))
	exists, err := ov.Exists(ctx, "/f")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, ov.CreateFile(ctx, "/f", false))
	exists, err = ov.Exists(ctx, "/f")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOverlay_RequiresAtLeastOneLayer(t *testing.T) {
	_, err := New()
	require.Error(t, err)
}

func TestOverlay_DuplicateNamesUpperWins(t *testing.T) {
	ctx := context.Background()
	lower := vfs.NewMemFS()
	require.NoError(t, lower.CreateDirectory(ctx, "/d"))
	require.NoError(t, lower.CreateFile(ctx, "/d/shared", false))

	upper := vfs.NewMemFS()
	require.NoError(t, upper.CreateDirectory(ctx, "/d"))
	require.NoError(t, upper.CreateFile(ctx, "/d/shared", false))
	require.NoError(t, upper.CreateFile(ctx, "/d/only-upper", false))

	ov, err := New(upper, lower)
	require.NoError(t, err)

	entries, err := ov.ReadDirectory(ctx, "/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"only-upper", "shared"}, entries)
}

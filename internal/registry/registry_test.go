package registry

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscore/sandboxcore/internal/store"
	"github.com/nimbuscore/sandboxcore/internal/store/chunk"
	"github.com/nimbuscore/sandboxcore/internal/store/layout"
)

type fakePuller struct {
	data []byte
	err  error
}

func (f *fakePuller) PullLayer(ctx context.Context, ref LayerRef) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func TestMaterialize_OrganizesPulledBytes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(store.Config{})
	chunker := chunk.NewFixedSizeChunker(8)
	lay := layout.FlatLayout{}

	puller := &fakePuller{data: []byte("the quick brown fox jumps over the lazy dog")}
	root, err := Materialize(ctx, puller, LayerRef{Bucket: "images", Key: "layer1"}, st, chunker, lay)
	require.NoError(t, err)
	assert.False(t, root.IsZero())

	size, err := layout.Size(ctx, root, st)
	require.NoError(t, err)
	assert.Equal(t, int64(len(puller.data)), size)
}

func TestMaterialize_PullErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(store.Config{})
	chunker := chunk.NewFixedSizeChunker(8)
	lay := layout.FlatLayout{}

	puller := &fakePuller{err: assertError{"network down"}}
	_, err := Materialize(ctx, puller, LayerRef{Bucket: "images", Key: "layer1"}, st, chunker, lay)
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Greater(t, cfg.MultipartThreshold, int64(0))
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

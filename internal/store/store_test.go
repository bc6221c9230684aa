package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

func TestPutRaw_Idempotent(t *testing.T) {
	s := NewMemStore(Config{})
	ctx := context.Background()

	cid1, err := s.PutRaw(ctx, []byte("hello"))
	require.NoError(t, err)
	cid2, err := s.PutRaw(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, cid1, cid2)

	count, err := s.BlockCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestPutRaw_TooLarge(t *testing.T) {
	s := NewMemStore(Config{MaxRawSize: 4})
	_, err := s.PutRaw(context.Background(), []byte("hello"))
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeRawBlockTooLarge, code)
}

func TestGetRaw_WrongCodec(t *testing.T) {
	s := NewMemStore(Config{})
	ctx := context.Background()
	cid, err := s.PutNode(ctx, Node{})
	require.NoError(t, err)

	_, err = s.GetRaw(ctx, cid)
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeUnexpectedCodec, code)
}

func TestGetRaw_NotFound(t *testing.T) {
	s := NewMemStore(Config{})
	ctx := context.Background()
	missing := NewCID(Raw, []byte("never put"))
	_, err := s.GetRaw(ctx, missing)
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeBlockNotFound, code)
}

func TestPutNode_IncrementsRefcount(t *testing.T) {
	s := NewMemStore(Config{})
	ctx := context.Background()

	chunkCID, err := s.PutRaw(ctx, []byte("chunk"))
	require.NoError(t, err)

	_, err = s.PutNode(ctx, Node{Refs: []CID{chunkCID}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.RefCount(chunkCID))

	_, err = s.PutNode(ctx, Node{Refs: []CID{chunkCID}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.RefCount(chunkCID))
}

func TestGetNode_RoundTrip(t *testing.T) {
	s := NewMemStore(Config{})
	ctx := context.Background()

	a, err := s.PutRaw(ctx, []byte("a"))
	require.NoError(t, err)
	b, err := s.PutRaw(ctx, []byte("b"))
	require.NoError(t, err)

	nodeCID, err := s.PutNode(ctx, Node{Refs: []CID{a, b}, Data: []byte("meta")})
	require.NoError(t, err)

	got, err := s.GetNode(ctx, nodeCID)
	require.NoError(t, err)
	assert.Equal(t, []CID{a, b}, got.Refs)
	assert.Equal(t, []byte("meta"), got.Data)
}

func TestHas(t *testing.T) {
	s := NewMemStore(Config{})
	ctx := context.Background()
	cid, err := s.PutRaw(ctx, []byte("x"))
	require.NoError(t, err)

	ok, err := s.Has(ctx, cid)
	require.NoError(t, err)
	assert.True(t, ok)

	missing := NewCID(Raw, []byte("y"))
	ok, err = s.Has(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCID_StringRoundTrip(t *testing.T) {
	cid := NewCID(DagNode, []byte("payload"))
	parsed, err := ParseCID(cid.String())
	require.NoError(t, err)
	assert.Equal(t, cid, parsed)
}

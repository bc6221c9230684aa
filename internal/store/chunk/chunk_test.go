package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFixedSizeChunker_Vector reuses the exact vector from the chunker this
// package is ported from: 56 bytes, chunk size 10, six chunks with the
// last one short.
func TestFixedSizeChunker_Vector(t *testing.T) {
	input := "Lorem ipsum dolor sit amet, consectetur adipiscing elit."
	require.Len(t, input, 56)

	c := NewFixedSizeChunker(10)
	out := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Chunk(context.Background(), strings.NewReader(input), out)
	}()

	var chunks []string
	for chunk := range out {
		chunks = append(chunks, string(chunk))
	}
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{
		"Lorem ipsu",
		"m dolor si",
		"t amet, co",
		"nsectetur ",
		"adipiscing",
		" elit.",
	}, chunks)
}

func TestFixedSizeChunker_NeverYieldsEmptyChunk(t *testing.T) {
	c := NewFixedSizeChunker(5)
	out := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Chunk(context.Background(), strings.NewReader("exactly10!"), out)
	}()

	var chunks [][]byte
	for chunk := range out {
		chunks = append(chunks, chunk)
	}
	require.NoError(t, <-errCh)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.NotEmpty(t, c)
	}
}

func TestFixedSizeChunker_EmptyInput(t *testing.T) {
	c := NewFixedSizeChunker(5)
	out := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Chunk(context.Background(), strings.NewReader(""), out)
	}()

	var count int
	for range out {
		count++
	}
	require.NoError(t, <-errCh)
	assert.Zero(t, count)
}

func TestMaxChunkSize(t *testing.T) {
	c := NewFixedSizeChunker(128)
	size, ok := c.MaxChunkSize()
	assert.True(t, ok)
	assert.Equal(t, int64(128), size)
}

// Package chunk implements the chunker half of spec §4.C: splitting a byte
// stream into size-bounded leaf blocks for the store to put as raw blocks.
//
// Grounded on original_source/ipldstore/lib/implementations/chunkers/
// fixed.rs: FixedSizeChunker reads up to chunk_size bytes repeatedly,
// yields each as a chunk, and never yields an empty chunk at EOF.
package chunk

import (
	"context"
	"io"
)

// DefaultMaxChunkSize matches the default used when no size is configured.
const DefaultMaxChunkSize = 256 * 1024

// Chunker splits a stream into bounded-size chunks.
type Chunker interface {
	// Chunk reads all of r, sending each chunk to out in order, and closes
	// out when the stream is exhausted or ctx is cancelled.
	Chunk(ctx context.Context, r io.Reader, out chan<- []byte) error

	// MaxChunkSize reports the fixed upper bound on a chunk's size, or 0
	// if the chunker has no such bound (ok reports whether a bound
	// exists, mirroring the spec's Option<u64>).
	MaxChunkSize() (size int64, ok bool)
}

// FixedSizeChunker emits chunks of exactly ChunkSize bytes, except the
// final chunk which may be shorter.
type FixedSizeChunker struct {
	ChunkSize int64
}

// NewFixedSizeChunker returns a FixedSizeChunker with the given chunk size,
// falling back to DefaultMaxChunkSize if size <= 0.
func NewFixedSizeChunker(size int64) FixedSizeChunker {
	if size <= 0 {
		size = DefaultMaxChunkSize
	}
	return FixedSizeChunker{ChunkSize: size}
}

// Chunk reads r in ChunkSize-byte windows, sending each non-empty result to
// out. A short final read still yields; a zero-byte read (clean EOF with
// nothing left) never does.
func (c FixedSizeChunker) Chunk(ctx context.Context, r io.Reader, out chan<- []byte) error {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		buf := make([]byte, c.ChunkSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf[:n]
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		switch {
		case err == nil:
			continue
		case err == io.EOF, err == io.ErrUnexpectedEOF:
			return nil
		default:
			return err
		}
	}
}

// MaxChunkSize reports the configured, fixed chunk size.
func (c FixedSizeChunker) MaxChunkSize() (int64, bool) {
	return c.ChunkSize, true
}

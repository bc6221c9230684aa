// Package layout assembles chunk CIDs into a retrievable stream (spec
// §4.C). The flat layout writes a single node listing every chunk CID in
// order and hands back that node's CID as the stream's root.
package layout

import (
	"bytes"
	"context"
	"io"

	"github.com/nimbuscore/sandboxcore/internal/store"
	"github.com/nimbuscore/sandboxcore/internal/store/chunk"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// Layout organizes a chunk stream into a store and retrieves it back out.
type Layout interface {
	Organize(ctx context.Context, chunks <-chan []byte, s store.Store) (store.CID, error)
	Retrieve(ctx context.Context, root store.CID, s store.Store) (io.ReadCloser, error)
}

// FlatLayout lists every chunk CID, in order, in a single node.
type FlatLayout struct{}

// Organize drains chunks, put_raw-ing each and collecting the resulting
// CIDs, then writes one layout node listing them and returns its CID. The
// channel must be consumed fully; the returned CID is the root.
func (FlatLayout) Organize(ctx context.Context, chunks <-chan []byte, s store.Store) (store.CID, error) {
	var refs []store.CID
	for c := range chunks {
		cid, err := s.PutRaw(ctx, c)
		if err != nil {
			return store.CID{}, err
		}
		refs = append(refs, cid)
	}
	root, err := s.PutNode(ctx, store.Node{Refs: refs})
	if err != nil {
		return store.CID{}, err
	}
	return root, nil
}

// Retrieve loads the layout node at root and returns a reader that fetches
// and streams each referenced chunk in order.
func (FlatLayout) Retrieve(ctx context.Context, root store.CID, s store.Store) (io.ReadCloser, error) {
	node, err := s.GetNode(ctx, root)
	if err != nil {
		return nil, err
	}
	return &chunkReader{ctx: ctx, store: s, refs: node.Refs}, nil
}

// chunkReader concatenates the referenced chunks lazily, fetching the next
// one only once the current is exhausted.
type chunkReader struct {
	ctx   context.Context
	store store.Store
	refs  []store.CID
	idx   int
	buf   *bytes.Reader
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for {
		if r.buf != nil && r.buf.Len() > 0 {
			return r.buf.Read(p)
		}
		if r.idx >= len(r.refs) {
			return 0, io.EOF
		}
		data, err := r.store.GetRaw(r.ctx, r.refs[r.idx])
		if err != nil {
			return 0, err
		}
		r.idx++
		r.buf = bytes.NewReader(data)
	}
}

func (r *chunkReader) Close() error { return nil }

// OrganizeReader is a convenience composing a Chunker with a Layout over a
// plain io.Reader, the shape put_bytes needs without folding chunker/
// layout concerns into the Store interface itself (Store lives one
// package below layout and chunk to avoid an import cycle between them).
func OrganizeReader(ctx context.Context, c chunk.Chunker, l Layout, s store.Store, r io.Reader) (store.CID, error) {
	chunks := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Chunk(ctx, r, chunks)
	}()

	root, organizeErr := l.Organize(ctx, chunks, s)
	chunkErr := <-errCh
	if chunkErr != nil {
		return store.CID{}, errs.Wrap(errs.CodeInternal, chunkErr, "chunk stream").WithComponent("layout", "organize_reader")
	}
	if organizeErr != nil {
		return store.CID{}, organizeErr
	}
	return root, nil
}

// Size sums the byte length of every chunk referenced by root, without
// materializing them (get_bytes_size).
func Size(ctx context.Context, root store.CID, s store.Store) (int64, error) {
	node, err := s.GetNode(ctx, root)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, ref := range node.Refs {
		n, err := s.Size(ctx, ref)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// SeekableRetrieve implements retrieve_seekable: when c declares a fixed
// maximum chunk size, a seek to byte b maps to chunk index b/max and
// intra-chunk offset b%max. Seeks past end clamp to end.
func SeekableRetrieve(ctx context.Context, root store.CID, s store.Store, c chunk.Chunker, offset int64) (io.ReadCloser, error) {
	max, ok := c.MaxChunkSize()
	if !ok {
		return nil, errs.New(errs.CodeInvalidArgument, "chunker has no fixed maximum chunk size; seekable retrieval unavailable").
			WithComponent("layout", "seekable_retrieve")
	}

	node, err := s.GetNode(ctx, root)
	if err != nil {
		return nil, err
	}

	startChunk := int(offset / max)
	if startChunk > len(node.Refs) {
		startChunk = len(node.Refs)
	}
	intraOffset := offset % max

	cr := &chunkReader{ctx: ctx, store: s, refs: node.Refs, idx: startChunk}
	if startChunk < len(node.Refs) && intraOffset > 0 {
		data, err := s.GetRaw(ctx, node.Refs[startChunk])
		if err != nil {
			return nil, err
		}
		if intraOffset > int64(len(data)) {
			intraOffset = int64(len(data))
		}
		cr.idx = startChunk + 1
		cr.buf = bytes.NewReader(data[intraOffset:])
	}
	return cr, nil
}

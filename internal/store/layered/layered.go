// Package layered implements the dual (upper/lower) store of spec §4.D: a
// writable upper composed over a read-only lower, with get-fallthrough.
package layered

import (
	"context"

	"github.com/nimbuscore/sandboxcore/internal/store"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// LayeredStore writes only to upper; reads try upper first, falling
// through to lower on BlockNotFound. The lower is shared, not owned: it
// may back more than one LayeredStore at once.
type LayeredStore struct {
	upper store.Store
	lower store.Store
}

// New composes upper (writable) over lower (read-only).
func New(upper, lower store.Store) *LayeredStore {
	return &LayeredStore{upper: upper, lower: lower}
}

func (l *LayeredStore) PutRaw(ctx context.Context, data []byte) (store.CID, error) {
	return l.upper.PutRaw(ctx, data)
}

func (l *LayeredStore) PutNode(ctx context.Context, node store.Node) (store.CID, error) {
	return l.upper.PutNode(ctx, node)
}

func (l *LayeredStore) GetRaw(ctx context.Context, cid store.CID) ([]byte, error) {
	data, err := l.upper.GetRaw(ctx, cid)
	if err == nil {
		return data, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return l.lower.GetRaw(ctx, cid)
}

func (l *LayeredStore) GetNode(ctx context.Context, cid store.CID) (store.Node, error) {
	node, err := l.upper.GetNode(ctx, cid)
	if err == nil {
		return node, nil
	}
	if !isNotFound(err) {
		return store.Node{}, err
	}
	return l.lower.GetNode(ctx, cid)
}

func (l *LayeredStore) Has(ctx context.Context, cid store.CID) (bool, error) {
	ok, err := l.upper.Has(ctx, cid)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return l.lower.Has(ctx, cid)
}

func (l *LayeredStore) Size(ctx context.Context, cid store.CID) (int64, error) {
	size, err := l.upper.Size(ctx, cid)
	if err == nil {
		return size, nil
	}
	if !isNotFound(err) {
		return 0, err
	}
	return l.lower.Size(ctx, cid)
}

// BlockCount sums the block counts of both layers. Blocks present in both
// (same CID written to upper after already existing in lower) are counted
// twice, matching spec §4.D's "sums both" rule literally.
func (l *LayeredStore) BlockCount(ctx context.Context) (uint64, error) {
	u, err := l.upper.BlockCount(ctx)
	if err != nil {
		return 0, err
	}
	lo, err := l.lower.BlockCount(ctx)
	if err != nil {
		return 0, err
	}
	return u + lo, nil
}

// MaxRawSize is the minimum of the two layers' maxima: the more
// restrictive bound wins.
func (l *LayeredStore) MaxRawSize() int64 {
	return minInt64(l.upper.MaxRawSize(), l.lower.MaxRawSize())
}

// MaxNodeSize is the minimum of the two layers' maxima.
func (l *LayeredStore) MaxNodeSize() int64 {
	return minInt64(l.upper.MaxNodeSize(), l.lower.MaxNodeSize())
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func isNotFound(err error) bool {
	code, ok := errs.CodeOf(err)
	return ok && code == errs.CodeBlockNotFound
}

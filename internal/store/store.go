package store

import (
	"context"
	"sync"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// DefaultMaxRawSize and DefaultMaxNodeSize bound block sizes when a Config
// does not override them.
const (
	DefaultMaxRawSize  = 4 << 20 // 4 MiB
	DefaultMaxNodeSize = 1 << 20 // 1 MiB
)

// Store is the content-addressed block store contract of spec §4.B: put
// and get raw and node blocks keyed by CID, with size ceilings and a
// refcount kept for node references (garbage collection itself is out of
// scope; has/block_count do not consult the count).
type Store interface {
	PutRaw(ctx context.Context, data []byte) (CID, error)
	PutNode(ctx context.Context, node Node) (CID, error)
	GetRaw(ctx context.Context, cid CID) ([]byte, error)
	GetNode(ctx context.Context, cid CID) (Node, error)
	Has(ctx context.Context, cid CID) (bool, error)
	Size(ctx context.Context, cid CID) (int64, error)
	BlockCount(ctx context.Context) (uint64, error)
	MaxRawSize() int64
	MaxNodeSize() int64
}

// MemStore is an in-memory Store, the reference implementation the
// supervisor and orchestrator use directly and the layered store composes
// as upper and/or lower.
type MemStore struct {
	mu          sync.RWMutex
	blocks      map[CID][]byte
	refcount    map[CID]uint64
	maxRawSize  int64
	maxNodeSize int64
}

// Config bounds a MemStore's block sizes; zero values fall back to the
// package defaults.
type Config struct {
	MaxRawSize  int64
	MaxNodeSize int64
}

// NewMemStore creates an empty store.
func NewMemStore(cfg Config) *MemStore {
	maxRaw := cfg.MaxRawSize
	if maxRaw <= 0 {
		maxRaw = DefaultMaxRawSize
	}
	maxNode := cfg.MaxNodeSize
	if maxNode <= 0 {
		maxNode = DefaultMaxNodeSize
	}
	return &MemStore{
		blocks:      make(map[CID][]byte),
		refcount:    make(map[CID]uint64),
		maxRawSize:  maxRaw,
		maxNodeSize: maxNode,
	}
}

func (s *MemStore) MaxRawSize() int64  { return s.maxRawSize }
func (s *MemStore) MaxNodeSize() int64 { return s.maxNodeSize }

// PutRaw writes a single raw block. Idempotent: identical bytes yield an
// identical CID and a repeated put is a no-op beyond the identity check.
func (s *MemStore) PutRaw(_ context.Context, data []byte) (CID, error) {
	if int64(len(data)) > s.maxRawSize {
		return CID{}, errs.New(errs.CodeRawBlockTooLarge, "raw block exceeds store maximum").
			WithComponent("store", "put_raw").
			WithDetail("size", len(data)).WithDetail("max", s.maxRawSize)
	}

	cid := NewCID(Raw, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocks[cid]; !exists {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.blocks[cid] = cp
	}
	return cid, nil
}

// PutNode serializes node and writes it as a DagNode block, incrementing
// the refcount of every CID it references.
func (s *MemStore) PutNode(_ context.Context, node Node) (CID, error) {
	data, err := node.Marshal()
	if err != nil {
		return CID{}, errs.Wrap(errs.CodeInternal, err, "marshal node").WithComponent("store", "put_node")
	}
	if int64(len(data)) > s.maxNodeSize {
		return CID{}, errs.New(errs.CodeNodeBlockTooLarge, "node block exceeds store maximum").
			WithComponent("store", "put_node").
			WithDetail("size", len(data)).WithDetail("max", s.maxNodeSize)
	}

	cid := NewCID(DagNode, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocks[cid]; !exists {
		s.blocks[cid] = data
	}
	for _, ref := range node.Refs {
		s.refcount[ref]++
	}
	return cid, nil
}

func (s *MemStore) GetRaw(_ context.Context, cid CID) ([]byte, error) {
	if cid.Codec() != Raw {
		return nil, errs.New(errs.CodeUnexpectedCodec, "cid does not name a raw block").
			WithComponent("store", "get_raw").WithDetail("codec", cid.Codec().String())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[cid]
	if !ok {
		return nil, errs.New(errs.CodeBlockNotFound, "block not found").WithComponent("store", "get_raw")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemStore) GetNode(_ context.Context, cid CID) (Node, error) {
	if cid.Codec() != DagNode {
		return Node{}, errs.New(errs.CodeUnexpectedCodec, "cid does not name a node block").
			WithComponent("store", "get_node").WithDetail("codec", cid.Codec().String())
	}
	s.mu.RLock()
	data, ok := s.blocks[cid]
	s.mu.RUnlock()
	if !ok {
		return Node{}, errs.New(errs.CodeBlockNotFound, "block not found").WithComponent("store", "get_node")
	}
	return UnmarshalNode(data)
}

func (s *MemStore) Has(_ context.Context, cid CID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[cid]
	return ok, nil
}

// Size returns the byte length of the block named by cid without
// requiring the caller to materialize it (get_bytes_size sums these
// across a layout's chunks).
func (s *MemStore) Size(_ context.Context, cid CID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[cid]
	if !ok {
		return 0, errs.New(errs.CodeBlockNotFound, "block not found").WithComponent("store", "size")
	}
	return int64(len(data)), nil
}

func (s *MemStore) BlockCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.blocks)), nil
}

// RefCount reports how many times cid has been referenced by a node put.
// Not part of the spec's public contract; exposed for tests and for a
// future GC pass (explicitly deferred by spec §4.B).
func (s *MemStore) RefCount(cid CID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refcount[cid]
}

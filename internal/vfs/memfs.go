package vfs

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/nimbuscore/sandboxcore/internal/pathseg"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// entity is one node of the in-memory tree. Directories keep children in
// insertion order (spec §4.E: "insertion order for the in-memory impl").
type entity struct {
	kind  Kind
	mtime time.Time

	data []byte // file

	children map[string]*entity // directory
	order    []string           // directory, insertion order

	target string // symlink
}

func newDirEntity() *entity {
	return &entity{kind: KindDirectory, mtime: time.Now(), children: map[string]*entity{}}
}

// MemFS is the in-memory VirtualFileSystem implementation.
type MemFS struct {
	mu   sync.RWMutex
	root *entity
}

// NewMemFS returns an empty filesystem with just a root directory.
func NewMemFS() *MemFS {
	return &MemFS{root: newDirEntity()}
}

// walk resolves path to its entity, or returns NotFound/NotADirectory as
// appropriate for an intermediate segment.
func (m *MemFS) walk(path string) (*entity, error) {
	norm, err := normalizeAbs(path)
	if err != nil {
		return nil, err
	}
	segs, err := pathseg.Segments(norm)
	if err != nil {
		return nil, err
	}

	cur := m.root
	for _, seg := range segs {
		if cur.kind != KindDirectory {
			return nil, errs.New(errs.CodeNotADirectory, "path component is not a directory").
				WithComponent("vfs", "walk").WithDetail("path", path)
		}
		next, ok := cur.children[seg.String()]
		if !ok {
			return nil, errs.New(errs.CodeNotFound, "path not found").WithComponent("vfs", "walk").WithDetail("path", path)
		}
		cur = next
	}
	return cur, nil
}

// walkParent resolves path's parent directory and final segment.
func (m *MemFS) walkParent(path string) (*entity, pathseg.Segment, error) {
	norm, err := normalizeAbs(path)
	if err != nil {
		return nil, "", err
	}
	segs, err := pathseg.Segments(norm)
	if err != nil {
		return nil, "", err
	}
	if len(segs) == 0 {
		return nil, "", errs.New(errs.CodeInvalidArgument, "path has no final segment").WithComponent("vfs", "walk_parent")
	}

	cur := m.root
	for _, seg := range segs[:len(segs)-1] {
		if cur.kind != KindDirectory {
			return nil, "", errs.New(errs.CodeNotADirectory, "path component is not a directory").WithComponent("vfs", "walk_parent")
		}
		next, ok := cur.children[seg.String()]
		if !ok {
			return nil, "", errs.New(errs.CodeParentDirectoryNotFound, "parent directory missing").
				WithComponent("vfs", "walk_parent").WithDetail("path", path)
		}
		cur = next
	}
	if cur.kind != KindDirectory {
		return nil, "", errs.New(errs.CodeNotADirectory, "parent is not a directory").WithComponent("vfs", "walk_parent")
	}
	return cur, segs[len(segs)-1], nil
}

func (m *MemFS) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.walk(path)
	if err == nil {
		return true, nil
	}
	if code, ok := errs.CodeOf(err); ok && (code == errs.CodeNotFound || code == errs.CodeNotADirectory) {
		return false, nil
	}
	return false, err
}

func (m *MemFS) CreateFile(_ context.Context, path string, existsOK bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, seg, err := m.walkParent(path)
	if err != nil {
		return err
	}
	if existing, ok := parent.children[seg.String()]; ok {
		if existsOK && existing.kind == KindFile {
			return nil
		}
		return errs.New(errs.CodeAlreadyExists, "entity already exists").WithComponent("vfs", "create_file").WithDetail("path", path)
	}
	parent.children[seg.String()] = &entity{kind: KindFile, mtime: time.Now()}
	parent.order = append(parent.order, seg.String())
	return nil
}

func (m *MemFS) CreateDirectory(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, seg, err := m.walkParent(path)
	if err != nil {
		return err
	}
	if _, ok := parent.children[seg.String()]; ok {
		return errs.New(errs.CodeAlreadyExists, "entity already exists").WithComponent("vfs", "create_directory").WithDetail("path", path)
	}
	parent.children[seg.String()] = newDirEntity()
	parent.order = append(parent.order, seg.String())
	return nil
}

func (m *MemFS) CreateSymlink(_ context.Context, path, target string) error {
	if target == "" {
		return errs.New(errs.CodeInvalidSymlinkTarget, "symlink target is empty").WithComponent("vfs", "create_symlink")
	}
	if _, err := pathseg.Normalize(target, pathseg.Any); err != nil {
		return errs.Wrap(errs.CodeInvalidSymlinkTarget, err, "symlink target is not a syntactically valid path").
			WithComponent("vfs", "create_symlink").WithDetail("target", target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, seg, err := m.walkParent(path)
	if err != nil {
		return err
	}
	if _, ok := parent.children[seg.String()]; ok {
		return errs.New(errs.CodeAlreadyExists, "entity already exists").WithComponent("vfs", "create_symlink").WithDetail("path", path)
	}
	parent.children[seg.String()] = &entity{kind: KindSymlink, mtime: time.Now(), target: target}
	parent.order = append(parent.order, seg.String())
	return nil
}

func (m *MemFS) ReadFile(_ context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, err := m.walk(path)
	if err != nil {
		return nil, err
	}
	if e.kind != KindFile {
		return nil, errs.New(errs.CodeNotAFile, "not a file").WithComponent("vfs", "read_file").WithDetail("path", path)
	}
	if offset > int64(len(e.data)) {
		return nil, errs.New(errs.CodeInvalidOffset, "offset beyond end of file").WithComponent("vfs", "read_file").WithDetail("path", path)
	}

	end := offset + length
	if length < 0 || end > int64(len(e.data)) {
		end = int64(len(e.data))
	}
	return io.NopCloser(bytes.NewReader(e.data[offset:end])), nil
}

func (m *MemFS) ReadDirectory(_ context.Context, path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, err := m.walk(path)
	if err != nil {
		return nil, err
	}
	if e.kind != KindDirectory {
		return nil, errs.New(errs.CodeNotADirectory, "not a directory").WithComponent("vfs", "read_directory").WithDetail("path", path)
	}
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out, nil
}

func (m *MemFS) ReadSymlink(_ context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, err := m.walk(path)
	if err != nil {
		return "", err
	}
	if e.kind != KindSymlink {
		return "", errs.New(errs.CodeNotASymlink, "not a symlink").WithComponent("vfs", "read_symlink").WithDetail("path", path)
	}
	return e.target, nil
}

func (m *MemFS) GetMetadata(_ context.Context, path string) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, err := m.walk(path)
	if err != nil {
		return Metadata{}, err
	}
	size := int64(0)
	if e.kind == KindFile {
		size = int64(len(e.data))
	}
	return Metadata{Kind: e.kind, Size: size, Mtime: e.mtime}, nil
}

func (m *MemFS) WriteFile(_ context.Context, path string, offset int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.walk(path)
	if err != nil {
		return err
	}
	if e.kind != KindFile {
		return errs.New(errs.CodeNotAFile, "not a file").WithComponent("vfs", "write_file").WithDetail("path", path)
	}
	if offset > int64(len(e.data)) {
		return errs.New(errs.CodeInvalidOffset, "offset beyond end of file").WithComponent("vfs", "write_file").WithDetail("path", path)
	}

	end := offset + int64(len(data))
	if end > int64(len(e.data)) {
		grown := make([]byte, end)
		copy(grown, e.data)
		e.data = grown
	}
	copy(e.data[offset:end], data)
	e.mtime = time.Now()
	return nil
}

func (m *MemFS) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, seg, err := m.walkParent(path)
	if err != nil {
		return err
	}
	e, ok := parent.children[seg.String()]
	if !ok {
		return errs.New(errs.CodeNotFound, "not found").WithComponent("vfs", "remove").WithDetail("path", path)
	}
	if e.kind == KindDirectory {
		return errs.New(errs.CodeNotAFile, "entity is a directory").WithComponent("vfs", "remove").WithDetail("path", path)
	}
	delete(parent.children, seg.String())
	parent.order = removeName(parent.order, seg.String())
	return nil
}

func (m *MemFS) RemoveDirectory(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, seg, err := m.walkParent(path)
	if err != nil {
		return err
	}
	e, ok := parent.children[seg.String()]
	if !ok {
		return errs.New(errs.CodeNotFound, "not found").WithComponent("vfs", "remove_directory").WithDetail("path", path)
	}
	if e.kind != KindDirectory {
		return errs.New(errs.CodeNotADirectory, "not a directory").WithComponent("vfs", "remove_directory").WithDetail("path", path)
	}
	if len(e.order) > 0 {
		return errs.New(errs.CodeNotEmpty, "directory not empty").WithComponent("vfs", "remove_directory").WithDetail("path", path)
	}
	delete(parent.children, seg.String())
	parent.order = removeName(parent.order, seg.String())
	return nil
}

func (m *MemFS) Rename(_ context.Context, oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldParent, oldSeg, err := m.walkParent(oldPath)
	if err != nil {
		return err
	}
	e, ok := oldParent.children[oldSeg.String()]
	if !ok {
		return errs.New(errs.CodeNotFound, "not found").WithComponent("vfs", "rename").WithDetail("path", oldPath)
	}

	newParent, newSeg, err := m.walkParent(newPath)
	if err != nil {
		return err
	}
	if _, exists := newParent.children[newSeg.String()]; exists {
		return errs.New(errs.CodeAlreadyExists, "destination already exists").WithComponent("vfs", "rename").WithDetail("path", newPath)
	}

	delete(oldParent.children, oldSeg.String())
	oldParent.order = removeName(oldParent.order, oldSeg.String())
	newParent.children[newSeg.String()] = e
	newParent.order = append(newParent.order, newSeg.String())
	return nil
}

func removeName(order []string, name string) []string {
	for i, n := range order {
		if n == name {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

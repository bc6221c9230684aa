// Package vfs implements the capability interface of spec §4.E over a
// hierarchical file/directory/symlink tree, plus an in-memory
// implementation used directly by tests and as the writable upper of an
// overlay (internal/vfs/overlay).
package vfs

import (
	"context"
	"io"
	"time"

	"github.com/nimbuscore/sandboxcore/internal/pathseg"
)

// Kind tags a Metadata value by entity variant.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Metadata is the {kind, size, mtime} triple get_metadata returns.
type Metadata struct {
	Kind  Kind
	Size  int64
	Mtime time.Time
}

// VirtualFileSystem is the capability set spec §4.E names. All paths
// passed in are normalized and segment-validated before dispatch; callers
// get EmptyPathSegment/InvalidPathComponent for malformed paths.
type VirtualFileSystem interface {
	Exists(ctx context.Context, path string) (bool, error)
	CreateFile(ctx context.Context, path string, existsOK bool) error
	CreateDirectory(ctx context.Context, path string) error
	CreateSymlink(ctx context.Context, path, target string) error
	ReadFile(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)
	ReadDirectory(ctx context.Context, path string) ([]string, error)
	ReadSymlink(ctx context.Context, path string) (string, error)
	GetMetadata(ctx context.Context, path string) (Metadata, error)
	WriteFile(ctx context.Context, path string, offset int64, data []byte) error
	Remove(ctx context.Context, path string) error
	RemoveDirectory(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
}

// normalizeAbs normalizes path as an absolute path, returning pathseg's
// errors as they are.
func normalizeAbs(path string) (string, error) {
	norm, err := pathseg.Normalize(path, pathseg.Absolute)
	if err != nil {
		return "", err
	}
	return norm, nil
}

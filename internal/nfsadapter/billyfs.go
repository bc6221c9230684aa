// Package nfsadapter maps the virtual filesystem onto a user-space NFSv3
// server (spec §4.G), by implementing billy.Filesystem over a
// vfs.VirtualFileSystem and handing that to willscott/go-nfs, the same
// composition rclone's NFS server uses over its own VFS layer.
package nfsadapter

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"

	"github.com/nimbuscore/sandboxcore/internal/vfs"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// FS adapts a vfs.VirtualFileSystem (typically an overlay.Overlay) to
// billy.Filesystem. The adapter is stateless between requests per spec
// §4.G: all state lives in the backing VFS.
type FS struct {
	vfs vfs.VirtualFileSystem
	ctx context.Context
}

// New wraps root as a billy.Filesystem for an NFS server to mount.
func New(root vfs.VirtualFileSystem) *FS {
	return &FS{vfs: root, ctx: context.Background()}
}

func (f *FS) ReadDir(p string) ([]os.FileInfo, error) {
	names, err := f.vfs.ReadDirectory(f.ctx, p)
	if err != nil {
		return nil, translate(err)
	}
	infos := make([]os.FileInfo, 0, len(names))
	for _, name := range names {
		meta, err := f.vfs.GetMetadata(f.ctx, path.Join(p, name))
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{name: name, meta: meta})
	}
	return infos, nil
}

func (f *FS) Create(filename string) (billy.File, error) {
	if err := f.vfs.CreateFile(f.ctx, filename, false); err != nil {
		return nil, translate(err)
	}
	return newBillyFile(f, filename, true), nil
}

func (f *FS) Open(filename string) (billy.File, error) {
	meta, err := f.vfs.GetMetadata(f.ctx, filename)
	if err != nil {
		return nil, translate(err)
	}
	if meta.Kind != vfs.KindFile {
		return nil, errs.New(errs.CodeNotAFile, "not a file").WithComponent("nfsadapter", "open")
	}
	return newBillyFile(f, filename, false), nil
}

func (f *FS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	exists, err := f.vfs.Exists(f.ctx, filename)
	if err != nil {
		return nil, translate(err)
	}
	if !exists {
		if flag&os.O_CREATE == 0 {
			return nil, os.ErrNotExist
		}
		if err := f.vfs.CreateFile(f.ctx, filename, true); err != nil {
			return nil, translate(err)
		}
	}
	return newBillyFile(f, filename, flag&os.O_TRUNC != 0), nil
}

func (f *FS) Stat(filename string) (os.FileInfo, error) {
	meta, err := f.vfs.GetMetadata(f.ctx, filename)
	if err != nil {
		return nil, translate(err)
	}
	return fileInfo{name: path.Base(filename), meta: meta}, nil
}

func (f *FS) Lstat(filename string) (os.FileInfo, error) { return f.Stat(filename) }

func (f *FS) Rename(oldpath, newpath string) error {
	return translate(f.vfs.Rename(f.ctx, oldpath, newpath))
}

func (f *FS) Remove(filename string) error {
	meta, err := f.vfs.GetMetadata(f.ctx, filename)
	if err != nil {
		return translate(err)
	}
	if meta.Kind == vfs.KindDirectory {
		return translate(f.vfs.RemoveDirectory(f.ctx, filename))
	}
	return translate(f.vfs.Remove(f.ctx, filename))
}

func (f *FS) Join(elem ...string) string { return path.Join(elem...) }

func (f *FS) TempFile(_, _ string) (billy.File, error) { return nil, os.ErrInvalid }

func (f *FS) MkdirAll(filename string, _ os.FileMode) error {
	parts := strings.Split(strings.Trim(filename, "/"), "/")
	cur := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		cur += "/" + part
		exists, err := f.vfs.Exists(f.ctx, cur)
		if err != nil {
			return translate(err)
		}
		if !exists {
			if err := f.vfs.CreateDirectory(f.ctx, cur); err != nil {
				if code, ok := errs.CodeOf(err); !ok || code != errs.CodeAlreadyExists {
					return translate(err)
				}
			}
		}
	}
	return nil
}

func (f *FS) Symlink(target, link string) error {
	return translate(f.vfs.CreateSymlink(f.ctx, link, target))
}

func (f *FS) Readlink(link string) (string, error) {
	target, err := f.vfs.ReadSymlink(f.ctx, link)
	if err != nil {
		return "", translate(err)
	}
	return target, nil
}

// Chmod/Chown/Chtimes are no-ops: spec's data model carries no POSIX
// permission bits beyond the coarse file/dir/symlink kind (an explicit
// Non-goal), so there is nothing to persist.
func (f *FS) Chmod(string, os.FileMode) error            { return nil }
func (f *FS) Lchown(string, int, int) error              { return nil }
func (f *FS) Chown(string, int, int) error               { return nil }
func (f *FS) Chtimes(string, time.Time, time.Time) error { return nil }

func (f *FS) Chroot(string) (billy.Filesystem, error) { return nil, os.ErrInvalid }

func (f *FS) Root() string { return "/" }

func (f *FS) Capabilities() billy.Capability {
	return billy.WriteCapability | billy.ReadCapability |
		billy.ReadAndWriteCapability | billy.SeekCapability | billy.TruncateCapability
}

var (
	_ billy.Filesystem = (*FS)(nil)
)

// fileInfo adapts vfs.Metadata to os.FileInfo.
type fileInfo struct {
	name string
	meta vfs.Metadata
}

func (fi fileInfo) Name() string { return fi.name }
func (fi fileInfo) Size() int64  { return fi.meta.Size }
func (fi fileInfo) Mode() os.FileMode {
	if fi.meta.Kind == vfs.KindDirectory {
		return os.ModeDir | 0o755
	}
	if fi.meta.Kind == vfs.KindSymlink {
		return os.ModeSymlink | 0o777
	}
	return 0o644
}
func (fi fileInfo) ModTime() time.Time { return fi.meta.Mtime }
func (fi fileInfo) IsDir() bool        { return fi.meta.Kind == vfs.KindDirectory }
func (fi fileInfo) Sys() interface{}   { return nil }

// translate maps the store/vfs error taxonomy onto stdlib error values
// go-nfs (and its underlying OS-facing plumbing) already know how to
// render as NFSv3 status codes, per the table in spec §4.G.
func translate(err error) error {
	if err == nil {
		return nil
	}
	code, ok := errs.CodeOf(err)
	if !ok {
		return err
	}
	switch code {
	case errs.CodeNotFound, errs.CodeParentDirectoryNotFound:
		return os.ErrNotExist
	case errs.CodeAlreadyExists:
		return os.ErrExist
	case errs.CodeNotADirectory:
		return syscallENOTDIR
	case errs.CodeNotAFile, errs.CodeNotASymlink, errs.CodeInvalidPathComponent, errs.CodeInvalidOffset:
		return os.ErrInvalid
	case errs.CodeNotEmpty:
		return syscallENOTEMPTY
	case errs.CodePermissionDenied:
		return os.ErrPermission
	case errs.CodeReadOnlyFilesystem:
		return syscallEROFS
	default:
		return err
	}
}

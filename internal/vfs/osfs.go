package vfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// OSFS is a VirtualFileSystem backed by a real directory on the host.
// It exists so the nfs-server subcommand has something to export: the
// block store and overlay give a sandbox's rootfs its content, but
// something has to hand that content to the NFS layer as a live
// directory tree, and an in-memory tree can't survive past the process
// that built it.
//
// Unlike MemFS and Overlay, OSFS delegates directly to the host kernel's
// own filesystem, so concurrent access and permissions follow whatever
// the host enforces; this type only translates paths and errors.
type OSFS struct {
	root string
}

// NewOSFS roots a VirtualFileSystem at dir, creating it if absent.
func NewOSFS(dir string) (*OSFS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "create osfs root").WithComponent("vfs", "new_osfs")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "resolve osfs root").WithComponent("vfs", "new_osfs")
	}
	return &OSFS{root: abs}, nil
}

func (o *OSFS) hostPath(path string) (string, error) {
	norm, err := normalizeAbs(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(o.root, filepath.FromSlash(norm)), nil
}

func translateOSError(op, path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errs.Wrap(errs.CodeNotFound, err, "path not found").WithComponent("vfs", op).WithDetail("path", path)
	case os.IsExist(err):
		return errs.Wrap(errs.CodeAlreadyExists, err, "path already exists").WithComponent("vfs", op).WithDetail("path", path)
	case os.IsPermission(err):
		return errs.Wrap(errs.CodePermissionDenied, err, "permission denied").WithComponent("vfs", op).WithDetail("path", path)
	default:
		return errs.Wrap(errs.CodeInternal, err, "filesystem operation failed").WithComponent("vfs", op).WithDetail("path", path)
	}
}

func (o *OSFS) Exists(_ context.Context, path string) (bool, error) {
	hp, err := o.hostPath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(hp); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, translateOSError("exists", path, err)
	}
	return true, nil
}

func (o *OSFS) CreateFile(_ context.Context, path string, existsOK bool) error {
	hp, err := o.hostPath(path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(hp, os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) && existsOK {
			return nil
		}
		return translateOSError("create_file", path, err)
	}
	return f.Close()
}

func (o *OSFS) CreateDirectory(_ context.Context, path string) error {
	hp, err := o.hostPath(path)
	if err != nil {
		return err
	}
	if err := os.Mkdir(hp, 0o755); err != nil {
		return translateOSError("create_directory", path, err)
	}
	return nil
}

func (o *OSFS) CreateSymlink(_ context.Context, path, target string) error {
	hp, err := o.hostPath(path)
	if err != nil {
		return err
	}
	if err := os.Symlink(target, hp); err != nil {
		return translateOSError("create_symlink", path, err)
	}
	return nil
}

func (o *OSFS) ReadFile(_ context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	hp, err := o.hostPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(hp)
	if err != nil {
		return nil, translateOSError("read_file", path, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, errs.Wrap(errs.CodeInvalidOffset, err, "seek to offset").WithComponent("vfs", "read_file").WithDetail("path", path)
		}
	}
	if length < 0 {
		return f, nil
	}
	return &limitedReadCloser{r: io.LimitReader(f, length), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

func (o *OSFS) ReadDirectory(_ context.Context, path string) ([]string, error) {
	hp, err := o.hostPath(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(hp)
	if err != nil {
		return nil, translateOSError("read_directory", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (o *OSFS) ReadSymlink(_ context.Context, path string) (string, error) {
	hp, err := o.hostPath(path)
	if err != nil {
		return "", err
	}
	target, err := os.Readlink(hp)
	if err != nil {
		return "", translateOSError("read_symlink", path, err)
	}
	return target, nil
}

func (o *OSFS) GetMetadata(_ context.Context, path string) (Metadata, error) {
	hp, err := o.hostPath(path)
	if err != nil {
		return Metadata{}, err
	}
	info, err := os.Lstat(hp)
	if err != nil {
		return Metadata{}, translateOSError("get_metadata", path, err)
	}
	kind := KindFile
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		kind = KindSymlink
	case info.IsDir():
		kind = KindDirectory
	}
	return Metadata{Kind: kind, Size: info.Size(), Mtime: info.ModTime()}, nil
}

func (o *OSFS) WriteFile(_ context.Context, path string, offset int64, data []byte) error {
	hp, err := o.hostPath(path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(hp, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return translateOSError("write_file", path, err)
	}
	defer f.Close()
	if offset < 0 {
		return errs.New(errs.CodeInvalidOffset, "negative write offset").WithComponent("vfs", "write_file").WithDetail("path", path)
	}
	if _, err := f.WriteAt(data, offset); err != nil {
		return translateOSError("write_file", path, err)
	}
	return nil
}

func (o *OSFS) Remove(_ context.Context, path string) error {
	hp, err := o.hostPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(hp); err != nil {
		return translateOSError("remove", path, err)
	}
	return nil
}

func (o *OSFS) RemoveDirectory(_ context.Context, path string) error {
	hp, err := o.hostPath(path)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(hp)
	if err != nil {
		return translateOSError("remove_directory", path, err)
	}
	if len(entries) > 0 {
		return errs.New(errs.CodeNotEmpty, "directory is not empty").WithComponent("vfs", "remove_directory").WithDetail("path", path)
	}
	if err := os.Remove(hp); err != nil {
		return translateOSError("remove_directory", path, err)
	}
	return nil
}

func (o *OSFS) Rename(_ context.Context, oldPath, newPath string) error {
	oldHP, err := o.hostPath(oldPath)
	if err != nil {
		return err
	}
	newHP, err := o.hostPath(newPath)
	if err != nil {
		return err
	}
	if err := os.Rename(oldHP, newHP); err != nil {
		return translateOSError("rename", strings.Join([]string{oldPath, newPath}, " -> "), err)
	}
	return nil
}

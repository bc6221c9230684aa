package nfsadapter

import (
	"io"

	billy "github.com/go-git/go-billy/v5"

	"github.com/nimbuscore/sandboxcore/internal/vfs"
)

// billyFile adapts file reads/writes against the VFS to billy.File's
// stateful, offset-tracking interface. The VFS itself is stateless
// between calls; the cursor lives here, per file handle.
type billyFile struct {
	fs     *FS
	name   string
	offset int64
	closed bool
}

func newBillyFile(fs *FS, name string, truncate bool) *billyFile {
	f := &billyFile{fs: fs, name: name}
	if truncate {
		_ = f.Truncate(0)
	}
	return f
}

func (f *billyFile) Name() string { return f.name }

func (f *billyFile) Write(p []byte) (int, error) {
	if err := f.fs.vfs.WriteFile(f.fs.ctx, f.name, f.offset, p); err != nil {
		return 0, translate(err)
	}
	f.offset += int64(len(p))
	return len(p), nil
}

func (f *billyFile) Read(p []byte) (int, error) {
	r, err := f.fs.vfs.ReadFile(f.fs.ctx, f.name, f.offset, int64(len(p)))
	if err != nil {
		return 0, translate(err)
	}
	defer r.Close()
	n, err := io.ReadFull(r, p)
	f.offset += int64(n)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if n == 0 && err == nil {
		err = io.EOF
	}
	return n, err
}

func (f *billyFile) ReadAt(p []byte, off int64) (int, error) {
	r, err := f.fs.vfs.ReadFile(f.fs.ctx, f.name, off, int64(len(p)))
	if err != nil {
		return 0, translate(err)
	}
	defer r.Close()
	n, err := io.ReadFull(r, p)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if n == 0 && err == nil {
		err = io.EOF
	}
	return n, err
}

func (f *billyFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		meta, err := f.fs.vfs.GetMetadata(f.fs.ctx, f.name)
		if err != nil {
			return 0, translate(err)
		}
		f.offset = meta.Size + offset
	}
	return f.offset, nil
}

func (f *billyFile) Close() error {
	f.closed = true
	return nil
}

func (f *billyFile) Lock() error   { return nil }
func (f *billyFile) Unlock() error { return nil }

func (f *billyFile) Truncate(size int64) error {
	meta, err := f.fs.vfs.GetMetadata(f.fs.ctx, f.name)
	if err != nil {
		return translate(err)
	}
	if size >= meta.Size {
		return nil
	}
	r, err := f.fs.vfs.ReadFile(f.fs.ctx, f.name, 0, size)
	if err != nil {
		return translate(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	// The VFS has no shrink operation: re-create the file and write back
	// the retained prefix.
	if err := f.fs.vfs.Remove(f.fs.ctx, f.name); err != nil {
		return translate(err)
	}
	if err := f.fs.vfs.CreateFile(f.fs.ctx, f.name, false); err != nil {
		return translate(err)
	}
	return translate(f.fs.vfs.WriteFile(f.fs.ctx, f.name, 0, data))
}

var _ billy.File = (*billyFile)(nil)

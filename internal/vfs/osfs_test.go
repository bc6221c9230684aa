package vfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFS_CreateWriteReadFile(t *testing.T) {
	fs, err := NewOSFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := fs.CreateFile(ctx, "/a.txt", false); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile(ctx, "/a.txt", 0, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	r, err := fs.ReadFile(ctx, "/a.txt", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}

func TestOSFS_ExistsFalseForMissing(t *testing.T) {
	fs, err := NewOSFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ok, err := fs.Exists(context.Background(), "/nope")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false for missing path")
	}
}

func TestOSFS_ReadDirectoryListsCreatedEntries(t *testing.T) {
	fs, err := NewOSFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := fs.CreateDirectory(ctx, "/dir"); err != nil {
		t.Fatal(err)
	}
	if err := fs.CreateFile(ctx, "/dir/f.txt", false); err != nil {
		t.Fatal(err)
	}
	names, err := fs.ReadDirectory(ctx, "/dir")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "f.txt" {
		t.Fatalf("got %v", names)
	}
}

func TestOSFS_RemoveDirectoryRejectsNonEmpty(t *testing.T) {
	fs, err := NewOSFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := fs.CreateDirectory(ctx, "/dir"); err != nil {
		t.Fatal(err)
	}
	if err := fs.CreateFile(ctx, "/dir/f.txt", false); err != nil {
		t.Fatal(err)
	}
	if err := fs.RemoveDirectory(ctx, "/dir"); err == nil {
		t.Fatal("expected error removing non-empty directory")
	}
}

func TestOSFS_SymlinkRoundTrip(t *testing.T) {
	fs, err := NewOSFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := fs.CreateSymlink(ctx, "/link", "/target"); err != nil {
		t.Fatal(err)
	}
	target, err := fs.ReadSymlink(ctx, "/link")
	if err != nil {
		t.Fatal(err)
	}
	if target != "/target" {
		t.Fatalf("got %q", target)
	}
}

func TestOSFS_RootIsIsolatedFromHostPaths(t *testing.T) {
	root := t.TempDir()
	fs, err := NewOSFS(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.CreateFile(context.Background(), "/a.txt", false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "a.txt")); err != nil {
		t.Fatalf("expected file created under root: %v", err)
	}
}

// Package overlay implements the N-layer merge filesystem of spec §4.F:
// copy-up semantics, whiteouts, and deterministic directory iteration over
// a stack of vfs.VirtualFileSystem backing filesystems.
//
// Whiteout marker convention (an Open Question the spec leaves to the
// implementation, decided here and recorded in DESIGN.md): a whiteout for
// entry "name" is a file named ".wh.name" in the same directory, in L0.
package overlay

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/nimbuscore/sandboxcore/internal/pathseg"
	"github.com/nimbuscore/sandboxcore/internal/vfs"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

const whiteoutPrefix = ".wh."

func whiteoutName(name string) string { return whiteoutPrefix + name }

func stripWhiteout(entryName string) (string, bool) {
	if strings.HasPrefix(entryName, whiteoutPrefix) {
		return entryName[len(whiteoutPrefix):], true
	}
	return "", false
}

// Overlay is an N-layer merge: layers[0] is the upper (writable); the rest
// are lower (read-only, possibly shared with other Overlays).
type Overlay struct {
	layers []vfs.VirtualFileSystem
}

// New composes layers (upper first) into a single Overlay.
func New(layers ...vfs.VirtualFileSystem) (*Overlay, error) {
	if len(layers) == 0 {
		return nil, errs.New(errs.CodeOverlayRequiresOneLayer, "overlay requires at least one layer").
			WithComponent("overlay", "new")
	}
	return &Overlay{layers: layers}, nil
}

func (o *Overlay) upper() vfs.VirtualFileSystem { return o.layers[0] }

// isWhitedOut reports whether path is hidden by a whiteout marker in the
// upper layer's copy of its parent directory.
func (o *Overlay) isWhitedOut(ctx context.Context, path string) bool {
	parent := pathseg.Parent(path)
	base := pathseg.Base(path)
	entries, err := o.upper().ReadDirectory(ctx, parent)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e == whiteoutName(base) {
			return true
		}
	}
	return false
}

// resolve finds the first layer (in order) that has path, honoring
// upper-layer whiteouts. Returns the layer index and its metadata.
func (o *Overlay) resolve(ctx context.Context, path string) (int, vfs.Metadata, error) {
	if path == "/" {
		return 0, vfs.Metadata{Kind: vfs.KindDirectory}, nil
	}
	if o.isWhitedOut(ctx, path) {
		return 0, vfs.Metadata{}, errs.New(errs.CodeNotFound, "path not found").WithComponent("overlay", "resolve").WithDetail("path", path)
	}
	for i, layer := range o.layers {
		ok, err := layer.Exists(ctx, path)
		if err != nil {
			return 0, vfs.Metadata{}, err
		}
		if !ok {
			continue
		}
		meta, err := layer.GetMetadata(ctx, path)
		if err != nil {
			return 0, vfs.Metadata{}, err
		}
		return i, meta, nil
	}
	return 0, vfs.Metadata{}, errs.New(errs.CodeNotFound, "path not found").WithComponent("overlay", "resolve").WithDetail("path", path)
}

func (o *Overlay) Exists(ctx context.Context, path string) (bool, error) {
	_, _, err := o.resolve(ctx, path)
	if err == nil {
		return true, nil
	}
	if code, ok := errs.CodeOf(err); ok && code == errs.CodeNotFound {
		return false, nil
	}
	return false, err
}

func (o *Overlay) GetMetadata(ctx context.Context, path string) (vfs.Metadata, error) {
	_, meta, err := o.resolve(ctx, path)
	return meta, err
}

// ensureParentCopiedUp creates the directory path, and each of its
// ancestors, in the upper layer; callers pass the parent of the entry they
// are about to create (structure only — contents continue to come from
// whichever layer the merge resolves a given descendant to).
func (o *Overlay) ensureParentCopiedUp(ctx context.Context, path string) error {
	norm, err := pathseg.Normalize(path, pathseg.Absolute)
	if err != nil {
		return err
	}
	segs, err := pathseg.Segments(norm)
	if err != nil {
		return err
	}

	cur := "/"
	for _, seg := range segs {
		cur = pathseg.Join(cur, seg)
		ok, err := o.upper().Exists(ctx, cur)
		if err != nil {
			return err
		}
		if !ok {
			if err := o.upper().CreateDirectory(ctx, cur); err != nil {
				if code, ok := errs.CodeOf(err); !ok || code != errs.CodeAlreadyExists {
					return err
				}
			}
		}
	}
	return nil
}

func (o *Overlay) clearWhiteout(ctx context.Context, path string) {
	parent := pathseg.Parent(path)
	base := pathseg.Base(path)
	_ = o.ensureParentCopiedUp(ctx, parent)
	_ = o.upper().Remove(ctx, pathseg.Join(parent, mustSegment(whiteoutName(base))))
}

func (o *Overlay) writeWhiteout(ctx context.Context, path string) error {
	parent := pathseg.Parent(path)
	base := pathseg.Base(path)
	if err := o.ensureParentCopiedUp(ctx, parent); err != nil {
		return err
	}
	wpath := pathseg.Join(parent, mustSegment(whiteoutName(base)))
	if err := o.upper().CreateFile(ctx, wpath, true); err != nil {
		return err
	}
	return nil
}

func mustSegment(s string) pathseg.Segment {
	seg, err := pathseg.SegmentFrom(s)
	if err != nil {
		panic("overlay: whiteout name is not a valid segment: " + s)
	}
	return seg
}

func (o *Overlay) existsBelow(ctx context.Context, path string) (bool, error) {
	for _, layer := range o.layers[1:] {
		ok, err := layer.Exists(ctx, path)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (o *Overlay) CreateFile(ctx context.Context, path string, existsOK bool) error {
	_, meta, err := o.resolve(ctx, path)
	if err == nil {
		if existsOK && meta.Kind == vfs.KindFile {
			return nil
		}
		return errs.New(errs.CodeAlreadyExists, "entity already exists").WithComponent("overlay", "create_file").WithDetail("path", path)
	}
	if code, ok := errs.CodeOf(err); !ok || code != errs.CodeNotFound {
		return err
	}

	parent := pathseg.Parent(path)
	if err := o.ensureParentCopiedUp(ctx, parent); err != nil {
		return err
	}
	if err := o.upper().CreateFile(ctx, path, false); err != nil {
		return err
	}
	o.clearWhiteout(ctx, path)
	return nil
}

func (o *Overlay) CreateDirectory(ctx context.Context, path string) error {
	_, _, err := o.resolve(ctx, path)
	if err == nil {
		return errs.New(errs.CodeAlreadyExists, "entity already exists").WithComponent("overlay", "create_directory").WithDetail("path", path)
	}
	if code, ok := errs.CodeOf(err); !ok || code != errs.CodeNotFound {
		return err
	}

	parent := pathseg.Parent(path)
	if err := o.ensureParentCopiedUp(ctx, parent); err != nil {
		return err
	}
	if err := o.upper().CreateDirectory(ctx, path); err != nil {
		return err
	}
	o.clearWhiteout(ctx, path)
	return nil
}

func (o *Overlay) CreateSymlink(ctx context.Context, path, target string) error {
	_, _, err := o.resolve(ctx, path)
	if err == nil {
		return errs.New(errs.CodeAlreadyExists, "entity already exists").WithComponent("overlay", "create_symlink").WithDetail("path", path)
	}
	if code, ok := errs.CodeOf(err); !ok || code != errs.CodeNotFound {
		return err
	}

	parent := pathseg.Parent(path)
	if err := o.ensureParentCopiedUp(ctx, parent); err != nil {
		return err
	}
	if err := o.upper().CreateSymlink(ctx, path, target); err != nil {
		return err
	}
	o.clearWhiteout(ctx, path)
	return nil
}

func (o *Overlay) ReadFile(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	idx, meta, err := o.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta.Kind != vfs.KindFile {
		return nil, errs.New(errs.CodeNotAFile, "not a file").WithComponent("overlay", "read_file").WithDetail("path", path)
	}
	return o.layers[idx].ReadFile(ctx, path, offset, length)
}

func (o *Overlay) ReadSymlink(ctx context.Context, path string) (string, error) {
	idx, meta, err := o.resolve(ctx, path)
	if err != nil {
		return "", err
	}
	if meta.Kind != vfs.KindSymlink {
		return "", errs.New(errs.CodeNotASymlink, "not a symlink").WithComponent("overlay", "read_symlink").WithDetail("path", path)
	}
	return o.layers[idx].ReadSymlink(ctx, path)
}

// ReadDirectory returns the union of children from every layer that has
// path as a directory: entries whited out in the upper are suppressed,
// duplicate names resolve to the lowest-index (uppermost) layer, and the
// result is sorted lexicographically for cross-run stability.
func (o *Overlay) ReadDirectory(ctx context.Context, path string) ([]string, error) {
	_, meta, err := o.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta.Kind != vfs.KindDirectory {
		return nil, errs.New(errs.CodeNotADirectory, "not a directory").WithComponent("overlay", "read_directory").WithDetail("path", path)
	}

	whiteouts := map[string]bool{}
	if upperEntries, err := o.upper().ReadDirectory(ctx, path); err == nil {
		for _, e := range upperEntries {
			if name, ok := stripWhiteout(e); ok {
				whiteouts[name] = true
			}
		}
	}

	seen := map[string]bool{}
	var names []string
	for _, layer := range o.layers {
		ok, err := layer.Exists(ctx, path)
		if err != nil || !ok {
			continue
		}
		lmeta, err := layer.GetMetadata(ctx, path)
		if err != nil || lmeta.Kind != vfs.KindDirectory {
			continue
		}
		entries, err := layer.ReadDirectory(ctx, path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if _, isWh := stripWhiteout(e); isWh {
				continue
			}
			if whiteouts[e] || seen[e] {
				continue
			}
			seen[e] = true
			names = append(names, e)
		}
	}
	sort.Strings(names)
	return names, nil
}

// WriteFile applies the copy-up policy: a write to a lower-only file
// copies its full contents into the upper before the write is applied.
func (o *Overlay) WriteFile(ctx context.Context, path string, offset int64, data []byte) error {
	idx, meta, err := o.resolve(ctx, path)
	if err != nil {
		return err
	}
	if meta.Kind != vfs.KindFile {
		return errs.New(errs.CodeNotAFile, "not a file").WithComponent("overlay", "write_file").WithDetail("path", path)
	}

	if idx != 0 {
		if err := o.copyUpFile(ctx, path, idx); err != nil {
			return err
		}
	}
	return o.upper().WriteFile(ctx, path, offset, data)
}

func (o *Overlay) copyUpFile(ctx context.Context, path string, fromIdx int) error {
	parent := pathseg.Parent(path)
	if err := o.ensureParentCopiedUp(ctx, parent); err != nil {
		return err
	}
	r, err := o.layers[fromIdx].ReadFile(ctx, path, 0, -1)
	if err != nil {
		return err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := o.upper().CreateFile(ctx, path, true); err != nil {
		return err
	}
	return o.upper().WriteFile(ctx, path, 0, data)
}

// Remove deletes a file or symlink. A lower-only entry is hidden with a
// whiteout rather than touched; an upper entry that shadows a lower one is
// deleted and whited out so the lower copy stays hidden.
func (o *Overlay) Remove(ctx context.Context, path string) error {
	idx, meta, err := o.resolve(ctx, path)
	if err != nil {
		return err
	}
	if meta.Kind == vfs.KindDirectory {
		return errs.New(errs.CodeNotAFile, "entity is a directory").WithComponent("overlay", "remove").WithDetail("path", path)
	}

	if idx != 0 {
		return o.writeWhiteout(ctx, path)
	}

	hasBelow, err := o.existsBelow(ctx, path)
	if err != nil {
		return err
	}
	if err := o.upper().Remove(ctx, path); err != nil {
		return err
	}
	if hasBelow {
		return o.writeWhiteout(ctx, path)
	}
	return nil
}

// RemoveDirectory fails NotEmpty if the merged view has any entry.
func (o *Overlay) RemoveDirectory(ctx context.Context, path string) error {
	idx, meta, err := o.resolve(ctx, path)
	if err != nil {
		return err
	}
	if meta.Kind != vfs.KindDirectory {
		return errs.New(errs.CodeNotADirectory, "not a directory").WithComponent("overlay", "remove_directory").WithDetail("path", path)
	}
	entries, err := o.ReadDirectory(ctx, path)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return errs.New(errs.CodeNotEmpty, "directory not empty").WithComponent("overlay", "remove_directory").WithDetail("path", path)
	}

	if idx != 0 {
		return o.writeWhiteout(ctx, path)
	}

	hasBelow, err := o.existsBelow(ctx, path)
	if err != nil {
		return err
	}
	if err := o.upper().RemoveDirectory(ctx, path); err != nil {
		return err
	}
	if hasBelow {
		return o.writeWhiteout(ctx, path)
	}
	return nil
}

// Rename requires the source to be reachable; a lower-only source is
// copied up recursively before the move (directories are not deep-copied
// entry by entry here — the common case driving this spec is renaming
// upper-resident or file entities; a lower-only directory rename copies
// up only its own node, matching the file path exactly and leaving its
// children to resolve through the merge at their own paths).
func (o *Overlay) Rename(ctx context.Context, oldPath, newPath string) error {
	idx, meta, err := o.resolve(ctx, oldPath)
	if err != nil {
		return err
	}
	if ok, err := o.Exists(ctx, newPath); err != nil {
		return err
	} else if ok {
		return errs.New(errs.CodeAlreadyExists, "destination already exists").WithComponent("overlay", "rename").WithDetail("path", newPath)
	}

	if idx != 0 && meta.Kind == vfs.KindFile {
		if err := o.copyUpFile(ctx, oldPath, idx); err != nil {
			return err
		}
		idx = 0
	} else if idx != 0 {
		parent := pathseg.Parent(oldPath)
		if err := o.ensureParentCopiedUp(ctx, parent); err != nil {
			return err
		}
		switch meta.Kind {
		case vfs.KindDirectory:
			if err := o.upper().CreateDirectory(ctx, oldPath); err != nil {
				return err
			}
		case vfs.KindSymlink:
			target, err := o.layers[idx].ReadSymlink(ctx, oldPath)
			if err != nil {
				return err
			}
			if err := o.upper().CreateSymlink(ctx, oldPath, target); err != nil {
				return err
			}
		}
		idx = 0
	}

	if err := o.upper().Rename(ctx, oldPath, newPath); err != nil {
		return err
	}

	hasBelow, err := o.existsBelow(ctx, oldPath)
	if err != nil {
		return err
	}
	if hasBelow {
		return o.writeWhiteout(ctx, oldPath)
	}
	return nil
}

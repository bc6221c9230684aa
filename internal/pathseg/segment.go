// Package pathseg implements validated path primitives shared across the
// virtual filesystem, the overlay, and the NFS adapter: path segments,
// normalization, and overlap checks (spec §4.A).
//
// Grounded on monofs's Utf8UnixPathSegment (original_source/monofs/lib/
// filesystem/dir/segment.rs): a segment must be a single "normal"
// component — never empty, ".", "..", or a separator-bearing string.
package pathseg

import (
	"strings"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// Segment is one validated, non-empty path component.
type Segment string

// SegmentFrom validates s as a single path component.
func SegmentFrom(s string) (Segment, error) {
	if s == "" {
		return "", errs.New(errs.CodeEmptyPathSegment, "path segment is empty").WithComponent("pathseg", "segment_from")
	}
	if strings.ContainsRune(s, '/') {
		return "", errs.New(errs.CodeInvalidPathComponent, "path segment contains separator").
			WithComponent("pathseg", "segment_from").WithDetail("segment", s)
	}
	switch s {
	case ".", "..":
		return "", errs.New(errs.CodeInvalidPathComponent, "path segment is a relative marker").
			WithComponent("pathseg", "segment_from").WithDetail("segment", s)
	}
	return Segment(s), nil
}

func (s Segment) String() string { return string(s) }

// Kind constrains how a path is interpreted by Normalize.
type Kind int

const (
	// Absolute requires the path to begin at the logical root.
	Absolute Kind = iota
	// Relative forbids a leading root.
	Relative
	// Any accepts either.
	Any
)

// Normalize resolves "." and ".." against depth bookkeeping, collapses
// adjacent separators, strips a trailing slash, and enforces kind. A ".."
// that would escape an absolute path's root is an error — never silently
// clamped; a relative path keeps such ".." segments at its start.
func Normalize(p string, kind Kind) (string, error) {
	hasRoot := strings.HasPrefix(p, "/")

	switch kind {
	case Absolute:
		if !hasRoot {
			return "", errs.New(errs.CodePathValidation, "path must be absolute").WithComponent("pathseg", "normalize").WithDetail("path", p)
		}
	case Relative:
		if hasRoot {
			return "", errs.New(errs.CodePathHasRoot, "path must be relative").WithComponent("pathseg", "normalize").WithDetail("path", p)
		}
	}

	raw := strings.Split(p, "/")
	var stack []string
	for _, part := range raw {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				if hasRoot {
					return "", errs.New(errs.CodePathValidation, "path traversal escapes root").
						WithComponent("pathseg", "normalize").WithDetail("path", p)
				}
				// Relative paths have no root to escape: a ".." with
				// nothing left to pop is kept as a leading ".." segment.
				stack = append(stack, "..")
				continue
			}
			if stack[len(stack)-1] == ".." {
				stack = append(stack, "..")
				continue
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, part)
		}
	}

	joined := strings.Join(stack, "/")
	if hasRoot {
		return "/" + joined, nil
	}
	if joined == "" {
		return ".", nil
	}
	return joined, nil
}

// Segments splits an already-normalized absolute or relative path into its
// validated segments, in order.
func Segments(normalized string) ([]Segment, error) {
	trimmed := strings.TrimPrefix(normalized, "/")
	if trimmed == "" || trimmed == "." {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	segs := make([]Segment, 0, len(parts))
	for _, part := range parts {
		seg, err := SegmentFrom(part)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// Overlap reports whether one of a, b — with a trailing slash appended —
// is a prefix of the other, i.e. one path is the other or an ancestor of
// it.
func Overlap(a, b string) bool {
	aSlash := ensureTrailingSlash(a)
	bSlash := ensureTrailingSlash(b)
	return strings.HasPrefix(bSlash, aSlash) || strings.HasPrefix(aSlash, bSlash)
}

func ensureTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// Parent returns the normalized parent of p: "/" for the root or a
// top-level absolute entry, "" for a single-segment relative path.
func Parent(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		if strings.HasPrefix(p, "/") {
			return "/"
		}
		return ""
	}
	return trimmed[:idx]
}

// Base returns the final segment of p.
func Base(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	return trimmed[idx+1:]
}

// Join joins a directory path and a segment.
func Join(dir string, seg Segment) string {
	if dir == "/" {
		return "/" + seg.String()
	}
	return strings.TrimSuffix(dir, "/") + "/" + seg.String()
}

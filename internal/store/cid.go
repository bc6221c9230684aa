// Package store implements the content-addressed block store and its
// raw/node block distinction described in spec §4.B. The layered
// (upper/lower) composition of §4.D lives in internal/store/layered.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// Codec distinguishes opaque raw bytes from structured node serializations.
type Codec uint8

const (
	// Raw identifies an opaque leaf block (a chunk).
	Raw Codec = iota
	// DagNode identifies a structured node (a layout node or directory index).
	DagNode
)

func (c Codec) String() string {
	switch c {
	case Raw:
		return "raw"
	case DagNode:
		return "dag-node"
	default:
		return "unknown"
	}
}

// CID is a fixed-format content identifier: a collision-resistant digest
// paired with the codec of the block it names. Reads verify the codec
// matches what the caller expects (get_raw vs get_node).
type CID struct {
	codec  Codec
	digest [sha256.Size]byte
}

// NewCID computes the CID for bytes under the given codec.
func NewCID(codec Codec, data []byte) CID {
	return CID{codec: codec, digest: sha256.Sum256(data)}
}

// Codec reports the CID's codec tag.
func (c CID) Codec() Codec { return c.codec }

// IsZero reports whether c is the zero value (no block named).
func (c CID) IsZero() bool { return c == CID{} }

// String renders the CID as "<codec>:<hex digest>", the form persisted in
// layout nodes and directory indices.
func (c CID) String() string {
	return fmt.Sprintf("%s:%s", c.codec, hex.EncodeToString(c.digest[:]))
}

// ParseCID parses the String() form back into a CID.
func ParseCID(s string) (CID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return CID{}, errs.New(errs.CodeInvalidArgument, fmt.Sprintf("malformed cid %q", s)).
			WithComponent("store", "parse_cid")
	}
	var codec Codec
	switch parts[0] {
	case "raw":
		codec = Raw
	case "dag-node":
		codec = DagNode
	default:
		return CID{}, errs.New(errs.CodeUnsupportedCodec, fmt.Sprintf("unknown codec %q", parts[0])).
			WithComponent("store", "parse_cid")
	}
	digest, err := hex.DecodeString(parts[1])
	if err != nil || len(digest) != sha256.Size {
		return CID{}, errs.New(errs.CodeInvalidArgument, fmt.Sprintf("malformed digest in cid %q", s)).
			WithComponent("store", "parse_cid")
	}
	var out CID
	out.codec = codec
	copy(out.digest[:], digest)
	return out, nil
}

// Package registry resolves an image reference into block-store content:
// it fetches an OCI layer's bytes from an S3-compatible layer cache and
// hands them to the store/chunk/layout pipeline to be organized into a
// content-addressed root.
//
// Grounded on the teacher's internal/storage/s3 client (NewClientManager,
// GetObject) for the S3 composition, and on spec §4.J step 1 ("ensure the
// image's layers are in the block store, pulling if needed") for the
// Puller contract.
package registry

import (
	"context"
	"io"

	"github.com/nimbuscore/sandboxcore/internal/store"
	"github.com/nimbuscore/sandboxcore/internal/store/chunk"
	"github.com/nimbuscore/sandboxcore/internal/store/layout"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// LayerRef identifies one OCI layer to pull: bucket-qualified so a single
// Puller can serve more than one registry's layer cache.
type LayerRef struct {
	Bucket string
	Key    string
}

// Puller fetches an OCI layer's raw bytes. S3Puller (NewS3Puller) wraps
// its own calls in a circuit breaker so a flaky registry doesn't wedge
// the orchestrator's reconcile loop.
type Puller interface {
	PullLayer(ctx context.Context, ref LayerRef) (io.ReadCloser, error)
}

// Materialize pulls ref and organizes it into st via chunker/lay,
// implementing the CID-yielding half of spec §4.J step 1. The caller is
// responsible for resolving which layers an image reference names and
// calling Materialize once per layer.
func Materialize(ctx context.Context, puller Puller, ref LayerRef, st store.Store, chunker chunk.Chunker, lay layout.Layout) (store.CID, error) {
	r, err := puller.PullLayer(ctx, ref)
	if err != nil {
		return store.CID{}, errs.Wrap(errs.CodeSandboxServerError, err, "pull layer").
			WithComponent("registry", "materialize").
			WithDetail("bucket", ref.Bucket).WithDetail("key", ref.Key)
	}
	defer r.Close()

	root, err := layout.OrganizeReader(ctx, chunker, lay, st, r)
	if err != nil {
		return store.CID{}, errs.Wrap(errs.CodeSandboxServerError, err, "organize pulled layer").
			WithComponent("registry", "materialize").
			WithDetail("bucket", ref.Bucket).WithDetail("key", ref.Key)
	}
	return root, nil
}

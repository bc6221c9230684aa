package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssdkconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nimbuscore/sandboxcore/internal/circuit"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// Config configures the S3-backed layer cache. Multipart settings size
// the concurrent ranged downloader a layer pull goes through.
type Config struct {
	Region             string
	Endpoint           string
	ForcePathStyle     bool
	AccessKeyID        string
	SecretAccessKey    string
	MultipartThreshold int64
	MultipartChunkSize int64
	Concurrency        int
}

// DefaultConfig mirrors the teacher's NewDefaultConfig defaults for the
// fields this domain carries forward.
func DefaultConfig() Config {
	return Config{
		Region:             "us-east-1",
		MultipartThreshold: 64 << 20,
		MultipartChunkSize: 16 << 20,
		Concurrency:        4,
	}
}

// S3Puller pulls layers from an S3-compatible bucket, wrapped in a
// circuit breaker so repeated registry failures stop fast instead of
// stalling each sandbox start in turn.
type S3Puller struct {
	client             *s3.Client
	downloader         *manager.Downloader
	multipartThreshold int64
	breaker            *circuit.CircuitBreaker
}

// NewS3Puller loads AWS configuration and builds a client for cfg's
// endpoint, following the teacher's NewClientManager composition.
func NewS3Puller(ctx context.Context, cfg Config, breakerName string) (*S3Puller, error) {
	opts := []func(*awssdkconfig.LoadOptions) error{awssdkconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		// Self-hosted, non-IAM registries (e.g. a MinIO bucket) have no
		// metadata service for the default credential chain to find.
		opts = append(opts, awssdkconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awssdkconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "load aws config").WithComponent("registry", "new_s3_puller")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		if cfg.MultipartChunkSize > 0 {
			d.PartSize = cfg.MultipartChunkSize
		}
		if cfg.Concurrency > 0 {
			d.Concurrency = cfg.Concurrency
		}
	})

	threshold := cfg.MultipartThreshold
	if threshold <= 0 {
		threshold = DefaultConfig().MultipartThreshold
	}

	breaker := circuit.NewCircuitBreaker(breakerName, circuit.Config{})

	return &S3Puller{client: client, downloader: downloader, multipartThreshold: threshold, breaker: breaker}, nil
}

// PullLayer fetches ref's object, circuit-breaker guarded. Layers at or
// above cfg.MultipartThreshold are pulled with the concurrent ranged
// downloader; smaller ones go through a single GetObject, since the
// downloader's HEAD-then-range overhead isn't worth it below that size.
func (p *S3Puller) PullLayer(ctx context.Context, ref LayerRef) (io.ReadCloser, error) {
	var out io.ReadCloser
	err := p.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(ref.Bucket),
			Key:    aws.String(ref.Key),
		})
		if err != nil {
			return fmt.Errorf("head object %s/%s: %w", ref.Bucket, ref.Key, err)
		}

		if head.ContentLength != nil && *head.ContentLength >= p.multipartThreshold {
			buf := manager.NewWriteAtBuffer(nil)
			if _, err := p.downloader.Download(ctx, buf, &s3.GetObjectInput{
				Bucket: aws.String(ref.Bucket),
				Key:    aws.String(ref.Key),
			}); err != nil {
				return fmt.Errorf("download object %s/%s: %w", ref.Bucket, ref.Key, err)
			}
			out = io.NopCloser(bytes.NewReader(buf.Bytes()))
			return nil
		}

		result, err := p.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(ref.Bucket),
			Key:    aws.String(ref.Key),
		})
		if err != nil {
			return fmt.Errorf("get object %s/%s: %w", ref.Bucket, ref.Key, err)
		}
		out = result.Body
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeSandboxServerError, err, "pull layer from s3").
			WithComponent("registry", "pull_layer").WithDetail("bucket", ref.Bucket).WithDetail("key", ref.Key)
	}
	return out, nil
}

// BreakerState exposes the puller's circuit state for health reporting.
func (p *S3Puller) BreakerState() circuit.State { return p.breaker.GetState() }

package storage

import (
	"context"
	"io"
	"time"

	"github.com/inkform/inkform-backend/internal/platform/gcs"
)

// internalBackend is the platform-managed store. Every signed document lands
// here at least once regardless of the owner's connected provider.
type internalBackend struct {
	client gcs.Client
	bucket string
}

func NewInternal(client gcs.Client, bucket string) Backend {
	return &internalBackend{client: client, bucket: bucket}
}

func (b *internalBackend) Name() string { return "internal" }

func (b *internalBackend) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	return b.client.Upload(ctx, b.bucket, key, r, contentType)
}

func (b *internalBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.client.Download(ctx, b.bucket, key)
}

func (b *internalBackend) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return b.client.SignedURL(b.bucket, key, ttl)
}

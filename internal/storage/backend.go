package storage

import (
	"context"
	"io"
	"time"
)

// Backend is the object-storage capability the signing pipeline writes
// through. One implementation per provider; selection happens once in the
// resolver, never at call sites.
type Backend interface {
	Name() string
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

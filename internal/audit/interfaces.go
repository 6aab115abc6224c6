package audit

import (
	"context"
	"io"
	"time"
)

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// Publisher pushes session notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes artifact digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces time-ordered identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

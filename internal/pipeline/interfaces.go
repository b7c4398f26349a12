package pipeline

import (
	"context"
	"time"
)

// Publisher pushes publish payloads to Pub/Sub (or similar). The returned
// string is the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Lease serializes publish attempts per group. TryAcquire must be
// non-blocking: a second caller on a held key gets held = false.
type Lease interface {
	TryAcquire(ctx context.Context, key string) (release func(), held bool, err error)
}

// BlobStore writes report artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces attempt ids (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

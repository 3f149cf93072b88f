package providers

import (
	"context"
)

// SnapshotStore is a key/value blob store holding serialized sessions.
// Get returns a NOT_FOUND AppError for unknown keys.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

package domain

import (
	"context"
	"errors"
)

// ErrSnapshotNotFound is returned by a SnapshotStore when nothing has been persisted yet.
var ErrSnapshotNotFound = errors.New("cache snapshot not found")

// SnapshotStore persists the serialized metadata cache as a single opaque blob.
// Write replaces any previous snapshot wholesale.
type SnapshotStore interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	// Location describes where the snapshot lives, for logs.
	Location() string
}

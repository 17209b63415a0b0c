package graph

import (
	"context"
	"errors"
)

// ErrSnapshotNotFound is returned by a SnapshotStore that holds no snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists encoded graph snapshots.
//
// Key identifies the snapshot, it is used as the name of the single writer
// lock. Read returns ErrSnapshotNotFound when nothing was written yet and
// Delete of a missing snapshot succeeds.
type SnapshotStore interface {
	Key() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// Locker serializes snapshot writers across processes.
type Locker interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

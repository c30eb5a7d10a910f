package repository

import (
	"context"
	"io"
	"time"
)

// SnapshotInfo describes a stored catalog snapshot.
type SnapshotInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// SnapshotStorage reads exported catalog documents from object storage.
type SnapshotStorage interface {
	// OpenSnapshot returns the snapshot body and its metadata. The caller
	// closes the body. Returns ErrObjectNotFound if key does not exist.
	OpenSnapshot(ctx context.Context, key string) (io.ReadCloser, SnapshotInfo, error)

	// ListSnapshots returns every snapshot whose key starts with prefix.
	ListSnapshots(ctx context.Context, prefix string) ([]SnapshotInfo, error)
}

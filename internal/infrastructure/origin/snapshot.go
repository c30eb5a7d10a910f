package origin

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/logging"
)

// maxSnapshotSize bounds how much of a snapshot object is read.
const maxSnapshotSize = 64 << 20

// SnapshotOrigin reads a catalog document stored in object storage, so
// replicas can be seeded from a catalog exported elsewhere. A key ending
// in "/" is a prefix: the most recently modified object under it is used.
type SnapshotOrigin struct {
	storage repository.SnapshotStorage
	key     string
}

var _ repository.Origin = (*SnapshotOrigin)(nil)

func NewSnapshotOrigin(storage repository.SnapshotStorage, key string) *SnapshotOrigin {
	return &SnapshotOrigin{storage: storage, key: key}
}

func (o *SnapshotOrigin) Name() string {
	return "snapshot"
}

// Fetch downloads and parses the snapshot document.
func (o *SnapshotOrigin) Fetch(ctx context.Context) ([]repository.SeedCountry, error) {
	key, err := o.resolveKey(ctx)
	if err != nil {
		return nil, err
	}

	rc, info, err := o.storage.OpenSnapshot(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", key, err)
	}
	defer rc.Close()

	if info.Size > maxSnapshotSize {
		return nil, fmt.Errorf("snapshot %s is %d bytes, limit %d", key, info.Size, maxSnapshotSize)
	}

	lr := &io.LimitedReader{R: rc, N: maxSnapshotSize + 1}
	seeds, err := ParseDocument(lr)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", key, err)
	}
	if lr.N <= 0 {
		return nil, fmt.Errorf("snapshot %s exceeds %d bytes", key, maxSnapshotSize)
	}

	logging.FromContext(ctx).Info("catalog snapshot read",
		"key", key,
		"etag", info.ETag,
		"countries", len(seeds),
	)
	return seeds, nil
}

func (o *SnapshotOrigin) resolveKey(ctx context.Context) (string, error) {
	if !strings.HasSuffix(o.key, "/") {
		return o.key, nil
	}

	infos, err := o.storage.ListSnapshots(ctx, o.key)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", fmt.Errorf("%w: no snapshot under %s", repository.ErrObjectNotFound, o.key)
	}

	latest := infos[0]
	for _, info := range infos[1:] {
		if info.LastModified.After(latest.LastModified) ||
			(info.LastModified.Equal(latest.LastModified) && info.Key > latest.Key) {
			latest = info
		}
	}
	return latest.Key, nil
}

package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/countrytube/internal/domain/repository"
)

// objectReader is the part of *minio.Object the client reads through.
type objectReader interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// minioAPI is the subset of *minio.Client used for catalog snapshots.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// sdkClient narrows *minio.Client.GetObject to objectReader.
type sdkClient struct {
	*minio.Client
}

func (c sdkClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	return c.Client.GetObject(ctx, bucketName, objectName, opts)
}

type ClientConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client reads catalog snapshots from a single MinIO bucket.
type Client struct {
	api    minioAPI
	bucket string
}

var _ repository.SnapshotStorage = (*Client)(nil)

// NewClient connects to MinIO and fails fast when the bucket is missing.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newClient(ctx, sdkClient{mc}, cfg.Bucket)
}

func newClient(ctx context.Context, api minioAPI, bucket string) (*Client, error) {
	ok, err := api.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, bucket)
	}
	return &Client{api: api, bucket: bucket}, nil
}

// OpenSnapshot opens key for reading. GetObject is lazy, so the object is
// stat'ed up front to surface a missing key before parsing starts.
func (c *Client) OpenSnapshot(ctx context.Context, key string) (io.ReadCloser, repository.SnapshotInfo, error) {
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, repository.SnapshotInfo{}, fmt.Errorf("failed to get snapshot %s: %w", key, err)
	}

	oi, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, repository.SnapshotInfo{}, fmt.Errorf("%w: %s", repository.ErrObjectNotFound, key)
		}
		return nil, repository.SnapshotInfo{}, fmt.Errorf("failed to stat snapshot %s: %w", key, err)
	}

	info := toSnapshotInfo(oi)
	if info.Key == "" {
		info.Key = key
	}
	return obj, info, nil
}

// ListSnapshots lists objects under prefix, skipping directory markers.
func (c *Client) ListSnapshots(ctx context.Context, prefix string) ([]repository.SnapshotInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the listing goroutine on early return

	var out []repository.SnapshotInfo
	for oi := range c.api.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if oi.Err != nil {
			return nil, fmt.Errorf("failed to list snapshots under %q: %w", prefix, oi.Err)
		}
		if oi.Key == "" || oi.Key[len(oi.Key)-1] == '/' {
			continue
		}
		out = append(out, toSnapshotInfo(oi))
	}
	return out, nil
}

// Ping checks that the bucket is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func toSnapshotInfo(oi minio.ObjectInfo) repository.SnapshotInfo {
	return repository.SnapshotInfo{
		Key:          oi.Key,
		ETag:         oi.ETag,
		Size:         oi.Size,
		LastModified: oi.LastModified,
	}
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

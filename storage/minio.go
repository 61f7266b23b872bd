package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Part size used when the length of a value is unknown; minio-go buffers one
// part at a time.
const minioStreamPartSize = 8 << 20

// compile-time check that Minio satisfies the Store interface.
var _ Store = (*Minio)(nil)

// Minio is an implementation of Store backed by an S3-compatible service,
// talking to it with the MinIO client.
type Minio struct {
	client *minio.Client
	bucket string
}

func NewMinio(endpoint, region, accessKey, secretKey, bucket string, useSSL bool) (*Minio, error) {
	if bucket == "" {
		return nil, errors.New("minio: bucket is required")
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
		// A single attempt: a streamed body can't be replayed.
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new client: %w", err)
	}
	return &Minio{
		client: mc,
		bucket: bucket,
	}, nil
}

// EnsureBucket creates the bucket if it does not already exist.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// Put streams r into the bucket. The declared size is handed to minio-go,
// which uses it to choose between a single request and a multipart upload.
func (m *Minio) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	opts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}
	if size < 0 {
		opts.PartSize = minioStreamPartSize
	}
	if _, err := m.client.PutObject(ctx, m.bucket, key, r, size, opts); err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

func (m *Minio) Get(ctx context.Context, key string) (body io.ReadCloser, size int64, err error) {
	if err := CheckKey(key); err != nil {
		return nil, 0, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, minioError(key, err)
	}
	// GetObject is lazy; Stat issues the request.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, minioError(key, err)
	}
	if info.Size == 0 {
		_ = obj.Close()
		return nil, 0, nil
	}
	return obj, info.Size, nil
}

func minioError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
		return fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	return fmt.Errorf("get object %q: %w", key, err)
}

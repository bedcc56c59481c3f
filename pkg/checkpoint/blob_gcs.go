//go:build gcp

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSConfig locates the bucket for GCSStore.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSStore keeps checkpoint blobs in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + key)
}

func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	hash := ContentHash(data)
	key, _ := blobKey(hash)
	obj := s.object(key)

	if _, err := obj.Attrs(ctx); err == nil {
		return hash, nil
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/msgpack"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return hash, nil
}

func (s *GCSStore) Get(ctx context.Context, hash string) ([]byte, error) {
	key, err := blobKey(hash)
	if err != nil {
		return nil, err
	}
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: blob %s", ErrCheckpointNotFound, hash)
		}
		return nil, fmt.Errorf("gcs read failed for %s: %w", hash, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *GCSStore) Exists(ctx context.Context, hash string) (bool, error) {
	key, err := blobKey(hash)
	if err != nil {
		return false, err
	}
	_, err = s.object(key).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	}
	return false, fmt.Errorf("gcs attrs failed for %s: %w", hash, err)
}

func newGCSStore(ctx context.Context, cfg StorageConfig) (BlobStore, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("ARTIFACT_GCS_BUCKET is required for GCS storage")
	}
	return NewGCSStore(ctx, GCSConfig{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
}

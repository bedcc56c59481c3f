package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
)

// StorageType selects the blob backend.
type StorageType string

const (
	StorageFS  StorageType = "fs"
	StorageS3  StorageType = "s3"
	StorageGCS StorageType = "gcs"
)

// StorageConfig carries the ARTIFACT_* settings.
type StorageConfig struct {
	Type       StorageType
	DataDir    string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string
	GCSBucket  string
	GCSPrefix  string
}

// NewBlobStore opens the backend named by cfg.Type; empty means fs under DataDir/checkpoints.
func NewBlobStore(ctx context.Context, cfg StorageConfig) (BlobStore, error) {
	switch cfg.Type {
	case "", StorageFS:
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		return NewFileStore(filepath.Join(dir, "checkpoints"))
	case StorageS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("ARTIFACT_S3_BUCKET is required for S3 storage")
		}
		region := cfg.S3Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{Bucket: cfg.S3Bucket, Region: region, Endpoint: cfg.S3Endpoint, Prefix: cfg.S3Prefix})
	case StorageGCS:
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", cfg.Type)
	}
}

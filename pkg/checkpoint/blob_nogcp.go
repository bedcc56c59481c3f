//go:build !gcp

package checkpoint

import (
	"context"
	"fmt"
)

func newGCSStore(context.Context, StorageConfig) (BlobStore, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}

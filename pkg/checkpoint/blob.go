package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrCheckpointNotFound is returned when no checkpoint or blob matches a lookup.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

const hashPrefix = "sha256:"

// BlobStore is content-addressed storage for encoded checkpoints.
type BlobStore interface {
	// Put stores data and returns its "sha256:" content hash. Storing the same
	// bytes twice is a no-op.
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
}

// ContentHash returns the prefixed SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// blobKey validates a prefixed hash and returns the object name for it.
func blobKey(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, hashPrefix)
	if !ok {
		return "", fmt.Errorf("invalid hash format: %s", hash)
	}
	if b, err := hex.DecodeString(raw); err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("invalid hash hex: %s", hash)
	}
	return raw + ".ckpt", nil
}

// FileStore keeps blobs as files in one directory.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates dir when needed.
func NewFileStore(dir string) (*FileStore, error) {
	//nolint:gosec // G301: shared data directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	hash := ContentHash(data)
	key, _ := blobKey(hash)
	path := filepath.Join(s.dir, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	tmp := path + ".tmp"
	//nolint:gosec // G306: checkpoints are not secret
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write checkpoint blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to commit checkpoint blob: %w", err)
	}
	return hash, nil
}

func (s *FileStore) Get(_ context.Context, hash string) ([]byte, error) {
	key, err := blobKey(hash)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, key)) //nolint:gosec // key validated as hex
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: blob %s", ErrCheckpointNotFound, hash)
	}
	return data, err
}

func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	key, err := blobKey(hash)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(filepath.Join(s.dir, key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	}
	return false, err
}

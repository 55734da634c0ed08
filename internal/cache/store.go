package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Store is the persistent key-value collaborator snapshots are written
// to. Get returns (nil, nil) when the key is absent.
type Store interface {
	Put(key string, blob []byte) error
	Get(key string) ([]byte, error)
}

// FileStore keeps one file per key under a data directory, guarded by a
// file lock so two processes persisting the same collection cannot
// interleave partial writes.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes the blob atomically: temp file, then rename over the key.
func (s *FileStore) Put(key string, blob []byte) error {
	lock := flock.New(s.lockPath(key))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := s.keyPath(key) + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.keyPath(key)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Get reads the blob for a key, (nil, nil) when missing.
func (s *FileStore) Get(key string) ([]byte, error) {
	lock := flock.New(s.lockPath(key))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer func() { _ = lock.Unlock() }()

	blob, err := os.ReadFile(s.keyPath(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return blob, nil
}

func (s *FileStore) keyPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) lockPath(key string) string {
	return filepath.Join(s.dir, key+".lock")
}

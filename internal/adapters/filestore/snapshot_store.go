package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// SnapshotStore keeps the cache snapshot in a single JSON file.
// Writes go to a temp file in the same directory and are renamed into place,
// so readers only ever see a complete snapshot.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore returns a store rooted at cache.snapshot_path.
func NewSnapshotStore(cfgProvider config.Provider) *SnapshotStore {
	return &SnapshotStore{path: cfgProvider.Get().Cache.SnapshotPath}
}

// NewSnapshotStoreAt returns a store for an explicit path.
func NewSnapshotStoreAt(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

func (s *SnapshotStore) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache snapshot %s: %w", s.path, err)
	}
	return data, nil
}

func (s *SnapshotStore) Write(_ context.Context, data []byte) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Location() string {
	return s.path
}

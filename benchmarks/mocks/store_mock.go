package mocks

import (
	"context"
	"sync"

	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// MemorySnapshotStore implements domain.SnapshotStore in memory.
type MemorySnapshotStore struct {
	mu   sync.Mutex
	data []byte

	ReadErr  error
	WriteErr error
	Writes   int
}

// NewMemorySnapshotStore creates a store holding data; nil means no snapshot exists.
func NewMemorySnapshotStore(data []byte) *MemorySnapshotStore {
	return &MemorySnapshotStore{data: data}
}

// Read implements domain.SnapshotStore
func (m *MemorySnapshotStore) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	if m.data == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	return append([]byte(nil), m.data...), nil
}

// Write implements domain.SnapshotStore
func (m *MemorySnapshotStore) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.data = append([]byte(nil), data...)
	m.Writes++
	return nil
}

// Location implements domain.SnapshotStore
func (m *MemorySnapshotStore) Location() string {
	return "memory"
}

// Data returns the last written snapshot.
func (m *MemorySnapshotStore) Data() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

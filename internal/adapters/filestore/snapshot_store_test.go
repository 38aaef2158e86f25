package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/timkado/api/message-snapper/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cache.json")
	store := NewSnapshotStoreAt(path)

	t.Run("missing file is not found", func(t *testing.T) {
		_, err := store.Read(ctx)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("write then read", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, []byte(`{"group_info":{}}`)))
		got, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, `{"group_info":{}}`, string(got))
	})

	t.Run("write replaces wholesale and leaves no temp files", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, []byte(`{}`)))
		got, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, `{}`, string(got))

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "cache.json", entries[0].Name())
	})

	t.Run("failed write keeps previous snapshot", func(t *testing.T) {
		blocked := NewSnapshotStoreAt(filepath.Join(path, "child.json"))
		assert.Error(t, blocked.Write(ctx, []byte(`{}`)))

		got, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, `{}`, string(got))
	})

	assert.Equal(t, path, store.Location())
}

package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gitlab.com/timkado/api/message-snapper/benchmarks/mocks"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCacheManager(t *testing.T, store domain.SnapshotStore, groupTTL, memberTTL int) (*CacheManager, *fakeClock, *mocks.MockLogger) {
	t.Helper()
	cfg := mocks.NewMockConfigProvider(t.TempDir())
	cfg.Update(func(c *config.Config) {
		c.Cache.GroupTTLSeconds = groupTTL
		c.Cache.MemberTTLSeconds = memberTTL
	})
	logger := mocks.NewMockLogger()
	clock := newFakeClock()
	cm := NewCacheManager(logger, cfg, store)
	cm.now = clock.Now
	return cm, clock, logger
}

func TestCacheManager_TTL(t *testing.T) {
	t.Run("group hit before ttl, evicted at ttl", func(t *testing.T) {
		cm, clock, _ := newTestCacheManager(t, mocks.NewMemorySnapshotStore(nil), 60, 60)
		cm.SetGroup(1, domain.Record{"group_name": "A"})

		clock.Advance(59 * time.Second)
		rec, ok := cm.GetGroup(1)
		require.True(t, ok)
		assert.Equal(t, "A", rec.String("group_name"))

		clock.Advance(time.Second)
		_, ok = cm.GetGroup(1)
		assert.False(t, ok)
		assert.Equal(t, 0, cm.Stats().Groups, "expired entry must be removed on read")
	})

	t.Run("member ttl is independent of group ttl", func(t *testing.T) {
		cm, clock, _ := newTestCacheManager(t, mocks.NewMemorySnapshotStore(nil), 3600, 10)
		cm.SetGroup(1, domain.Record{"group_name": "A"})
		cm.SetMember(1, 2, domain.Record{"card": "bob"})

		clock.Advance(10 * time.Second)
		_, ok := cm.GetMember(1, 2)
		assert.False(t, ok)
		_, ok = cm.GetGroup(1)
		assert.True(t, ok)
		assert.Equal(t, 0, cm.Stats().Members)
	})

	t.Run("member keys are composite", func(t *testing.T) {
		cm, _, _ := newTestCacheManager(t, mocks.NewMemorySnapshotStore(nil), 60, 60)
		cm.SetMember(1, 2, domain.Record{"card": "a"})
		cm.SetMember(2, 1, domain.Record{"card": "b"})

		rec, ok := cm.GetMember(1, 2)
		require.True(t, ok)
		assert.Equal(t, "a", rec.String("card"))
		rec, ok = cm.GetMember(2, 1)
		require.True(t, ok)
		assert.Equal(t, "b", rec.String("card"))
		_, ok = cm.GetMember(1, 1)
		assert.False(t, ok)
	})

	t.Run("set replaces and restamps", func(t *testing.T) {
		cm, clock, _ := newTestCacheManager(t, mocks.NewMemorySnapshotStore(nil), 60, 60)
		cm.SetGroup(1, domain.Record{"group_name": "old"})
		clock.Advance(50 * time.Second)
		cm.SetGroup(1, domain.Record{"group_name": "new"})
		clock.Advance(50 * time.Second)

		rec, ok := cm.GetGroup(1)
		require.True(t, ok)
		assert.Equal(t, "new", rec.String("group_name"))
	})

	t.Run("prune removes only stale entries", func(t *testing.T) {
		cm, clock, _ := newTestCacheManager(t, mocks.NewMemorySnapshotStore(nil), 60, 60)
		cm.SetGroup(1, domain.Record{})
		cm.SetMember(1, 1, domain.Record{})
		clock.Advance(61 * time.Second)
		cm.SetGroup(2, domain.Record{})

		assert.Equal(t, 2, cm.Prune(context.Background()))
		stats := cm.Stats()
		assert.Equal(t, 1, stats.Groups)
		assert.Equal(t, 0, stats.Members)
	})
}

func TestParseMemberKey(t *testing.T) {
	k, err := ParseMemberKey("100:200")
	require.NoError(t, err)
	assert.Equal(t, MemberKey{GroupID: 100, UserID: 200}, k)
	assert.Equal(t, "100:200", k.String())

	for _, bad := range []string{"100", "x:1", "1:y", "1:2:3", ":", ""} {
		_, err := ParseMemberKey(bad)
		assert.Error(t, err, bad)
	}
}

func snapshotJSON(t *testing.T, groups, members map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"group_info": groups, "member_info": members})
	require.NoError(t, err)
	return b
}

func TestCacheManager_Load(t *testing.T) {
	now := float64(newFakeClock().Now().Unix())

	t.Run("entry within ttl is admitted", func(t *testing.T) {
		data := snapshotJSON(t, map[string]any{"100": []any{now - 3600, map[string]any{"group_name": "X"}}}, map[string]any{})
		cm, _, _ := newTestCacheManager(t, mocks.NewMemorySnapshotStore(data), 7200, 7200)
		cm.Load(context.Background())

		rec, ok := cm.GetGroup(100)
		require.True(t, ok)
		assert.Equal(t, domain.Record{"group_name": "X"}, rec)
	})

	t.Run("entry older than ttl is dropped at load", func(t *testing.T) {
		data := snapshotJSON(t, map[string]any{"100": []any{now - 3600, map[string]any{"group_name": "X"}}}, map[string]any{})
		cm, _, _ := newTestCacheManager(t, mocks.NewMemorySnapshotStore(data), 1800, 1800)
		cm.Load(context.Background())

		assert.Equal(t, 0, cm.Stats().Groups)
	})

	t.Run("malformed entries are skipped individually", func(t *testing.T) {
		data := snapshotJSON(t,
			map[string]any{
				"1":    []any{now, map[string]any{"group_name": "ok"}},
				"nope": []any{now, map[string]any{}},
				"2":    []any{now},
				"3":    []any{"yesterday", map[string]any{}},
				"4":    []any{now, "not an object"},
			},
			map[string]any{
				"1:2":   []any{now, map[string]any{"card": "ok"}},
				"1-2":   []any{now, map[string]any{}},
				"1:abc": []any{now, map[string]any{}},
			},
		)
		cm, _, logger := newTestCacheManager(t, mocks.NewMemorySnapshotStore(data), 7200, 7200)
		cm.Load(context.Background())

		stats := cm.Stats()
		assert.Equal(t, 1, stats.Groups)
		assert.Equal(t, 1, stats.Members)
		_, ok := cm.GetMember(1, 2)
		assert.True(t, ok)
		assert.True(t, logger.HasMessage("WARN", "Skipping malformed member cache key"))
	})

	t.Run("corrupt file is logged and ignored", func(t *testing.T) {
		cm, _, logger := newTestCacheManager(t, mocks.NewMemorySnapshotStore([]byte("{not json")), 7200, 7200)
		cm.SetGroup(9, domain.Record{})
		cm.Load(context.Background())

		assert.Equal(t, 1, cm.Stats().Groups, "a failed load must not touch the current state")
		assert.True(t, logger.HasMessage("ERROR", "Failed to parse cache snapshot, starting cold"))
	})

	t.Run("missing snapshot is silent", func(t *testing.T) {
		cm, _, logger := newTestCacheManager(t, mocks.NewMemorySnapshotStore(nil), 7200, 7200)
		cm.Load(context.Background())

		assert.Equal(t, int64(0), logger.ErrorCount)
		assert.Equal(t, 0, cm.Stats().Groups)
	})

	t.Run("read error is logged and swallowed", func(t *testing.T) {
		store := mocks.NewMemorySnapshotStore(nil)
		store.ReadErr = errors.New("disk on fire")
		cm, _, logger := newTestCacheManager(t, store, 7200, 7200)
		cm.Load(context.Background())

		assert.Equal(t, int64(1), logger.ErrorCount)
	})
}

func TestCacheManager_SaveLoadRoundTrip(t *testing.T) {
	store := mocks.NewMemorySnapshotStore(nil)
	cm, clock, _ := newTestCacheManager(t, store, 3600, 600)

	cm.SetGroup(100, domain.Record{"group_name": "X", "member_count": float64(42)})
	cm.SetMember(100, 7, domain.Record{"card": "old"})
	clock.Advance(500 * time.Second)
	cm.SetMember(100, 8, domain.Record{"nickname": "fresh", "level": "3"})
	cm.Save(context.Background())
	require.Equal(t, 1, store.Writes)

	clock.Advance(200 * time.Second) // member 7 is now 700s old, member 8 is 200s old

	fresh, _, _ := newTestCacheManager(t, store, 3600, 600)
	fresh.now = clock.Now
	fresh.Load(context.Background())

	rec, ok := fresh.GetGroup(100)
	require.True(t, ok)
	assert.Equal(t, "X", rec.String("group_name"))
	assert.Equal(t, int64(42), rec.Int("member_count"))

	_, ok = fresh.GetMember(100, 7)
	assert.False(t, ok)
	rec, ok = fresh.GetMember(100, 8)
	require.True(t, ok)
	assert.Equal(t, domain.Record{"nickname": "fresh", "level": "3"}, rec)
}

func TestCacheManager_SaveIncludesStaleEntries(t *testing.T) {
	store := mocks.NewMemorySnapshotStore(nil)
	cm, clock, _ := newTestCacheManager(t, store, 10, 10)
	cm.SetGroup(1, domain.Record{"group_name": "stale"})
	clock.Advance(time.Minute)
	cm.Save(context.Background())

	var snap map[string]map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal(store.Data(), &snap))
	require.Contains(t, snap["group_info"], "1")
	assert.JSONEq(t, `{"group_name":"stale"}`, string(snap["group_info"]["1"][1]))
	assert.NotNil(t, snap["member_info"])
}

func TestCacheManager_SaveFailureIsSwallowed(t *testing.T) {
	store := mocks.NewMemorySnapshotStore(nil)
	store.WriteErr = fmt.Errorf("read-only filesystem")
	cm, _, logger := newTestCacheManager(t, store, 10, 10)
	cm.SetGroup(1, domain.Record{})

	assert.NotPanics(t, func() { cm.Save(context.Background()) })
	assert.True(t, logger.HasMessage("ERROR", "Failed to write cache snapshot"))
}

func TestCacheManager_ConcurrentAccess(t *testing.T) {
	cm, _, _ := newTestCacheManager(t, mocks.NewMemorySnapshotStore(nil), 60, 60)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := int64(i % 4)
			cm.SetGroup(id, domain.Record{"n": i})
			cm.GetGroup(id)
			cm.SetMember(id, int64(i), domain.Record{})
			cm.GetMember(id, int64(i))
		}(i)
	}
	wg.Wait()
	stats := cm.Stats()
	assert.Equal(t, 4, stats.Groups)
	assert.Equal(t, 32, stats.Members)
}

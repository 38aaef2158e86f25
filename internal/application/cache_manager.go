package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/metrics"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// MetadataEntry is a cached platform record stamped with its insertion time.
// Entries are replaced wholesale, never mutated.
type MetadataEntry struct {
	InsertedAt time.Time
	Payload    domain.Record
}

// MemberKey identifies a member record within a group.
type MemberKey struct {
	GroupID int64
	UserID  int64
}

// String encodes the key as "{group_id}:{user_id}", the form used in the persisted snapshot.
func (k MemberKey) String() string {
	return strconv.FormatInt(k.GroupID, 10) + ":" + strconv.FormatInt(k.UserID, 10)
}

// ParseMemberKey splits on the first colon and parses both halves as integers.
func ParseMemberKey(s string) (MemberKey, error) {
	g, u, ok := strings.Cut(s, ":")
	if !ok {
		return MemberKey{}, fmt.Errorf("member key %q has no separator", s)
	}
	groupID, err := strconv.ParseInt(g, 10, 64)
	if err != nil {
		return MemberKey{}, fmt.Errorf("member key %q: invalid group id: %w", s, err)
	}
	userID, err := strconv.ParseInt(u, 10, 64)
	if err != nil {
		return MemberKey{}, fmt.Errorf("member key %q: invalid user id: %w", s, err)
	}
	return MemberKey{GroupID: groupID, UserID: userID}, nil
}

// CacheStats is a point-in-time view of the metadata caches.
type CacheStats struct {
	Groups   int    `json:"groups"`
	Members  int    `json:"members"`
	Location string `json:"location"`
}

// CacheManager owns the group and member metadata caches and their persisted snapshot.
// Expired entries are evicted lazily by the read that finds them stale; there is no sweeper.
type CacheManager struct {
	logger         domain.Logger
	configProvider config.Provider
	store          domain.SnapshotStore
	now            func() time.Time

	mu      sync.Mutex
	groups  map[int64]MetadataEntry
	members map[MemberKey]MetadataEntry
}

// NewCacheManager creates an empty CacheManager backed by store. Call Load to warm it.
func NewCacheManager(logger domain.Logger, configProvider config.Provider, store domain.SnapshotStore) *CacheManager {
	return &CacheManager{
		logger:         logger,
		configProvider: configProvider,
		store:          store,
		now:            time.Now,
		groups:         make(map[int64]MetadataEntry),
		members:        make(map[MemberKey]MetadataEntry),
	}
}

func (cm *CacheManager) groupTTL() time.Duration {
	return time.Duration(cm.configProvider.Get().Cache.GroupTTLSeconds) * time.Second
}

func (cm *CacheManager) memberTTL() time.Duration {
	return time.Duration(cm.configProvider.Get().Cache.MemberTTLSeconds) * time.Second
}

// GetGroup returns the cached group record if it is younger than the group TTL.
// A stale entry is removed before returning.
func (cm *CacheManager) GetGroup(groupID int64) (domain.Record, bool) {
	ttl := cm.groupTTL()
	cm.mu.Lock()
	defer cm.mu.Unlock()

	entry, ok := cm.groups[groupID]
	if !ok {
		metrics.ObserveCacheLookup(metrics.CacheGroup, metrics.ResultMiss)
		return nil, false
	}
	if cm.now().Sub(entry.InsertedAt) >= ttl {
		delete(cm.groups, groupID)
		metrics.SetCacheEntries(metrics.CacheGroup, len(cm.groups))
		metrics.ObserveCacheLookup(metrics.CacheGroup, metrics.ResultExpired)
		return nil, false
	}
	metrics.ObserveCacheLookup(metrics.CacheGroup, metrics.ResultHit)
	return entry.Payload, true
}

// SetGroup inserts or replaces the group record, stamped with the current time.
func (cm *CacheManager) SetGroup(groupID int64, payload domain.Record) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.groups[groupID] = MetadataEntry{InsertedAt: cm.now(), Payload: payload}
	metrics.SetCacheEntries(metrics.CacheGroup, len(cm.groups))
}

// GetMember returns the cached member record if it is younger than the member TTL.
func (cm *CacheManager) GetMember(groupID, userID int64) (domain.Record, bool) {
	ttl := cm.memberTTL()
	key := MemberKey{GroupID: groupID, UserID: userID}
	cm.mu.Lock()
	defer cm.mu.Unlock()

	entry, ok := cm.members[key]
	if !ok {
		metrics.ObserveCacheLookup(metrics.CacheMember, metrics.ResultMiss)
		return nil, false
	}
	if cm.now().Sub(entry.InsertedAt) >= ttl {
		delete(cm.members, key)
		metrics.SetCacheEntries(metrics.CacheMember, len(cm.members))
		metrics.ObserveCacheLookup(metrics.CacheMember, metrics.ResultExpired)
		return nil, false
	}
	metrics.ObserveCacheLookup(metrics.CacheMember, metrics.ResultHit)
	return entry.Payload, true
}

// SetMember inserts or replaces the member record, stamped with the current time.
func (cm *CacheManager) SetMember(groupID, userID int64, payload domain.Record) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.members[MemberKey{GroupID: groupID, UserID: userID}] = MetadataEntry{InsertedAt: cm.now(), Payload: payload}
	metrics.SetCacheEntries(metrics.CacheMember, len(cm.members))
}

// Stats reports the number of entries currently held, stale ones included.
func (cm *CacheManager) Stats() CacheStats {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return CacheStats{Groups: len(cm.groups), Members: len(cm.members), Location: cm.store.Location()}
}

// Prune drops every entry that has outlived its TTL and returns how many were removed.
func (cm *CacheManager) Prune(ctx context.Context) int {
	groupTTL, memberTTL := cm.groupTTL(), cm.memberTTL()
	cm.mu.Lock()
	now := cm.now()
	removed := 0
	for id, e := range cm.groups {
		if now.Sub(e.InsertedAt) >= groupTTL {
			delete(cm.groups, id)
			removed++
		}
	}
	for k, e := range cm.members {
		if now.Sub(e.InsertedAt) >= memberTTL {
			delete(cm.members, k)
			removed++
		}
	}
	metrics.SetCacheEntries(metrics.CacheGroup, len(cm.groups))
	metrics.SetCacheEntries(metrics.CacheMember, len(cm.members))
	cm.mu.Unlock()

	if removed > 0 {
		cm.logger.Info(ctx, "Pruned expired metadata entries", "removed", removed)
	}
	return removed
}

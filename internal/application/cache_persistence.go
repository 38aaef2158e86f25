package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/metrics"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// persistedSnapshot is the on-disk form of both caches. Each entry is a
// [inserted_at_epoch_seconds, payload] pair.
type persistedSnapshot struct {
	GroupInfo  map[string]json.RawMessage `json:"group_info"`
	MemberInfo map[string]json.RawMessage `json:"member_info"`
}

type loadSummary struct {
	groups    int
	members   int
	expired   int
	malformed int
}

// Load replaces the in-memory caches with the persisted snapshot, dropping entries
// already expired at load time. A missing snapshot leaves the caches untouched; any other
// failure is logged and the manager stays cold.
func (cm *CacheManager) Load(ctx context.Context) {
	data, err := cm.store.Read(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			cm.logger.Debug(ctx, "No cache snapshot found, starting cold", "location", cm.store.Location())
			return
		}
		cm.logger.Error(ctx, "Failed to read cache snapshot", "location", cm.store.Location(), "error", err.Error())
		return
	}

	var snap persistedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		cm.logger.Error(ctx, "Failed to parse cache snapshot, starting cold", "location", cm.store.Location(), "error", err.Error())
		return
	}

	groupTTL, memberTTL := cm.groupTTL(), cm.memberTTL()
	now := cm.now()
	var sum loadSummary

	groups := make(map[int64]MetadataEntry, len(snap.GroupInfo))
	for key, raw := range snap.GroupInfo {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			cm.logger.Warn(ctx, "Skipping malformed group cache key", "key", key)
			sum.malformed++
			continue
		}
		entry, err := decodeEntry(raw)
		if err != nil {
			cm.logger.Warn(ctx, "Skipping malformed group cache entry", "key", key, "error", err.Error())
			sum.malformed++
			continue
		}
		if now.Sub(entry.InsertedAt) >= groupTTL {
			sum.expired++
			continue
		}
		groups[id] = entry
	}

	members := make(map[MemberKey]MetadataEntry, len(snap.MemberInfo))
	for key, raw := range snap.MemberInfo {
		mk, err := ParseMemberKey(key)
		if err != nil {
			cm.logger.Warn(ctx, "Skipping malformed member cache key", "key", key, "error", err.Error())
			sum.malformed++
			continue
		}
		entry, err := decodeEntry(raw)
		if err != nil {
			cm.logger.Warn(ctx, "Skipping malformed member cache entry", "key", key, "error", err.Error())
			sum.malformed++
			continue
		}
		if now.Sub(entry.InsertedAt) >= memberTTL {
			sum.expired++
			continue
		}
		members[mk] = entry
	}
	sum.groups, sum.members = len(groups), len(members)

	cm.mu.Lock()
	cm.groups = groups
	cm.members = members
	cm.mu.Unlock()
	metrics.SetCacheEntries(metrics.CacheGroup, sum.groups)
	metrics.SetCacheEntries(metrics.CacheMember, sum.members)

	cm.logger.Info(ctx, "Cache snapshot loaded",
		"location", cm.store.Location(),
		"groups", sum.groups,
		"members", sum.members,
		"dropped_expired", sum.expired,
		"skipped_malformed", sum.malformed,
	)
}

// Save writes both caches wholesale, stale entries included. Failures are logged, never returned.
func (cm *CacheManager) Save(ctx context.Context) {
	cm.mu.Lock()
	snap := persistedSnapshot{
		GroupInfo:  make(map[string]json.RawMessage, len(cm.groups)),
		MemberInfo: make(map[string]json.RawMessage, len(cm.members)),
	}
	groups := make(map[string]MetadataEntry, len(cm.groups))
	for id, e := range cm.groups {
		groups[strconv.FormatInt(id, 10)] = e
	}
	members := make(map[string]MetadataEntry, len(cm.members))
	for k, e := range cm.members {
		members[k.String()] = e
	}
	cm.mu.Unlock()

	for k, e := range groups {
		raw, err := encodeEntry(e)
		if err != nil {
			cm.logger.Error(ctx, "Failed to encode group cache entry", "key", k, "error", err.Error())
			metrics.ObserveCacheSave(false)
			return
		}
		snap.GroupInfo[k] = raw
	}
	for k, e := range members {
		raw, err := encodeEntry(e)
		if err != nil {
			cm.logger.Error(ctx, "Failed to encode member cache entry", "key", k, "error", err.Error())
			metrics.ObserveCacheSave(false)
			return
		}
		snap.MemberInfo[k] = raw
	}

	data, err := json.Marshal(snap)
	if err != nil {
		cm.logger.Error(ctx, "Failed to serialize cache snapshot", "error", err.Error())
		metrics.ObserveCacheSave(false)
		return
	}
	if err := cm.store.Write(ctx, data); err != nil {
		cm.logger.Error(ctx, "Failed to write cache snapshot", "location", cm.store.Location(), "error", err.Error())
		metrics.ObserveCacheSave(false)
		return
	}
	metrics.ObserveCacheSave(true)
	cm.logger.Debug(ctx, "Cache snapshot saved",
		"location", cm.store.Location(),
		"groups", len(snap.GroupInfo),
		"members", len(snap.MemberInfo),
	)
}

func encodeEntry(e MetadataEntry) (json.RawMessage, error) {
	ts := float64(e.InsertedAt.UnixNano()) / float64(time.Second)
	payload := e.Payload
	if payload == nil {
		payload = domain.Record{}
	}
	return json.Marshal([2]any{ts, payload})
}

func decodeEntry(raw json.RawMessage) (MetadataEntry, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return MetadataEntry{}, fmt.Errorf("entry is not an array: %w", err)
	}
	if len(pair) != 2 {
		return MetadataEntry{}, fmt.Errorf("entry has %d elements, want 2", len(pair))
	}
	var ts float64
	if err := json.Unmarshal(pair[0], &ts); err != nil {
		return MetadataEntry{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return MetadataEntry{}, fmt.Errorf("invalid timestamp %v", ts)
	}
	var payload domain.Record
	if err := json.Unmarshal(pair[1], &payload); err != nil {
		return MetadataEntry{}, fmt.Errorf("payload is not an object: %w", err)
	}
	if payload == nil {
		payload = domain.Record{}
	}
	sec, frac := math.Modf(ts)
	return MetadataEntry{
		InsertedAt: time.Unix(int64(sec), int64(frac*float64(time.Second))),
		Payload:    payload,
	}, nil
}

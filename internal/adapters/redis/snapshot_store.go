package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
	"gitlab.com/timkado/api/message-snapper/pkg/rediskeys"
)

// SnapshotStore implements domain.SnapshotStore on a single Redis string key, which lets
// replicas of one service share a warm metadata cache. SET replaces the value atomically.
type SnapshotStore struct {
	redisClient *redis.Client
	logger      domain.Logger
	key         string
}

// NewSnapshotStore creates a store keyed by the service name.
func NewSnapshotStore(redisClient *redis.Client, logger domain.Logger, serviceName string) *SnapshotStore {
	if redisClient == nil {
		panic("redisClient cannot be nil in NewSnapshotStore")
	}
	return &SnapshotStore{
		redisClient: redisClient,
		logger:      logger,
		key:         rediskeys.CacheSnapshotKey(serviceName),
	}
}

func (s *SnapshotStore) Read(ctx context.Context) ([]byte, error) {
	val, err := s.redisClient.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug(ctx, "Cache snapshot key absent", "key", s.key)
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET for snapshot key '%s' failed: %w", s.key, err)
	}
	return val, nil
}

// Write stores the snapshot without expiry; entry freshness is decided on load.
func (s *SnapshotStore) Write(ctx context.Context, data []byte) error {
	if err := s.redisClient.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET for snapshot key '%s' failed: %w", s.key, err)
	}
	s.logger.Debug(ctx, "Cache snapshot stored in Redis", "key", s.key, "bytes", len(data))
	return nil
}

func (s *SnapshotStore) Location() string {
	return "redis://" + s.redisClient.Options().Addr + "/" + s.key
}

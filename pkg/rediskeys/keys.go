package rediskeys

import (
	"fmt"
)

// CacheSnapshotKey generates the Redis key holding the persisted metadata cache snapshot
// of one service instance.
func CacheSnapshotKey(serviceName string) string {
	return fmt.Sprintf("snapper:%s:cache_snapshot", serviceName)
}

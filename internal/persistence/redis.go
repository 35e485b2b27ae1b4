package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter stores one JSON blob per room under a configurable key
// prefix. Grounded on the Redis usage pattern in the pack's
// viant-jsonrpc auth store (github.com/redis/go-redis/v9), generalized
// from auth grants to room snapshots.
type RedisAdapter struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisAdapter wraps an existing *redis.Client. prefix defaults to
// "odin-sync:" if empty.
func NewRedisAdapter(rdb *redis.Client, prefix string) *RedisAdapter {
	if prefix == "" {
		prefix = "odin-sync:"
	}
	return &RedisAdapter{rdb: rdb, prefix: prefix}
}

func (a *RedisAdapter) key(roomID string) string {
	return a.prefix + "room:" + roomID
}

func (a *RedisAdapter) Load(ctx context.Context, roomID string) (*Snapshot, error) {
	raw, err := a.rdb.Get(ctx, a.key(roomID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persistence: redis get %s: %w", roomID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("persistence: decode snapshot %s: %w", roomID, err)
	}
	return &snap, nil
}

func (a *RedisAdapter) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: encode snapshot %s: %w", snap.RoomID, err)
	}
	if err := a.rdb.Set(ctx, a.key(snap.RoomID), data, 0).Err(); err != nil {
		return fmt.Errorf("persistence: redis set %s: %w", snap.RoomID, err)
	}
	return nil
}

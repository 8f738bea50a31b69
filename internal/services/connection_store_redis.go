package services

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ConnectionsKey is the Redis set of live connection ids.
const ConnectionsKey = "bips:connections"

// RedisConnectionStore keeps connection ids in a single Redis set.
type RedisConnectionStore struct {
	rdb *redis.Client
	key string
}

func NewRedisConnectionStore(rdb *redis.Client) *RedisConnectionStore {
	return &RedisConnectionStore{rdb: rdb, key: ConnectionsKey}
}

func (s *RedisConnectionStore) Add(ctx context.Context, connectionID string) error {
	return s.rdb.SAdd(ctx, s.key, connectionID).Err()
}

func (s *RedisConnectionStore) Remove(ctx context.Context, connectionID string) error {
	return s.rdb.SRem(ctx, s.key, connectionID).Err()
}

func (s *RedisConnectionStore) Members(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, s.key).Result()
}

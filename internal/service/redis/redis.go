package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type (
	RedisService struct {
		rdb redis.UniversalClient
	}
)

func NewRedis(rdb redis.UniversalClient) *RedisService {
	return &RedisService{
		rdb: rdb,
	}
}

func (r *RedisService) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisService) Close() error {
	return r.rdb.Close()
}

// ZCard returns the size of the sorted set at key.
func (r *RedisService) ZCard(ctx context.Context, key string) (int64, error) {
	return r.rdb.ZCard(ctx, key).Result()
}

func (r *RedisService) HMGet(ctx context.Context, key string, fields ...string) ([]any, error) {
	return r.rdb.HMGet(ctx, key, fields...).Result()
}

// MGet returns one entry per key, nil where the key is missing.
func (r *RedisService) MGet(ctx context.Context, keys ...string) ([]any, error) {
	return r.rdb.MGet(ctx, keys...).Result()
}

// TxPipelined runs fn's queued commands inside MULTI/EXEC.
func (r *RedisService) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	return r.rdb.TxPipelined(ctx, fn)
}

// RunScript evaluates script by its SHA, loading it on first use.
func (r *RedisService) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	return script.Run(ctx, r.rdb, keys, args...).Result()
}

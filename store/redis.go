package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// RedisCache satisfies Cache backed by a go-redis v9 client. Values are
// stored as JSON so the same record shapes work for memory and redis.
type RedisCache[S any] struct {
	client *redis.Client
}

var _ Cache[any] = (*RedisCache[any])(nil)

func NewRedisCache[S any](client *redis.Client) *RedisCache[S] {
	return &RedisCache[S]{client: client}
}

// OpenRedis connects to the given redis URL and verifies connectivity.
func OpenRedis(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func (r *RedisCache[S]) Set(ctx context.Context, key string, val S) error {
	payload, err := sonic.Marshal(val)
	if err != nil {
		return fmt.Errorf("redis: marshal %q: %w", key, err)
	}
	// 记录不设置过期时间，保留策略是外部关注点。
	return r.client.Set(ctx, key, payload, 0).Err()
}

func (r *RedisCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	var zero S
	payload, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var val S
	if err := sonic.Unmarshal(payload, &val); err != nil {
		return zero, false, fmt.Errorf("redis: unmarshal %q: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisCache[S]) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisCache[S]) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

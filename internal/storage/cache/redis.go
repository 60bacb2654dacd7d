package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/metrics"
	"github.com/go-redis/redis/v8"
)

// RedisClient is the subset of the redis client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type RedisCache struct {
	client RedisClient
}

func NewRedisCache(client RedisClient) *RedisCache {
	return &RedisCache{client: client}
}

func pollKey(id string) string {
	return fmt.Sprintf("poll:%s", id)
}

func (c *RedisCache) GetPoll(ctx context.Context, id string) (*domain.Poll, error) {
	data, err := c.client.Get(ctx, pollKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheOperation("get_poll", false)
			return nil, nil
		}
		return nil, fmt.Errorf("get poll from cache: %w", err)
	}

	var poll domain.Poll
	if err := json.Unmarshal(data, &poll); err != nil {
		return nil, fmt.Errorf("unmarshal poll: %w", err)
	}

	metrics.RecordCacheOperation("get_poll", true)
	return &poll, nil
}

func (c *RedisCache) SetPoll(ctx context.Context, poll *domain.Poll, ttl time.Duration) error {
	data, err := json.Marshal(poll)
	if err != nil {
		return fmt.Errorf("marshal poll: %w", err)
	}

	if err := c.client.Set(ctx, pollKey(poll.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("set poll in cache: %w", err)
	}

	metrics.RecordCacheOperation("set_poll", true)
	return nil
}

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adam7171512/scrape/model"
	"github.com/redis/go-redis/v9"
)

const statsKeyPrefix = "scrape:stats:"

type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *RedisStatsCache) Get(ctx context.Context, id model.YoutubeVideoID) (*model.Stats, bool, error) {
	data, err := c.client.Get(ctx, statsKeyPrefix+string(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to get cached stats: %w", err)
	}

	stats := &model.Stats{}
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached stats: %w", err)
	}

	return stats, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, id model.YoutubeVideoID, stats *model.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	if err := c.client.Set(ctx, statsKeyPrefix+string(id), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache stats: %w", err)
	}

	return nil
}

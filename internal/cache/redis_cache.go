package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-router/internal/config"
	"chat-router/internal/models"
)

type RedisHistoryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisHistoryCache connects to Redis and verifies the connection.
func NewRedisHistoryCache(cfg config.RedisConfig) (*RedisHistoryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisHistoryCacheWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisHistoryCacheWithClient wraps an existing client.
func NewRedisHistoryCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisHistoryCache {
	return &RedisHistoryCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisHistoryCache) genKey(user string) string {
	return fmt.Sprintf("%s:gen:%s", c.prefix, user)
}

func (c *RedisHistoryCache) BuildKey(ctx context.Context, userA, userB string) (string, error) {
	a, b := orderPair(userA, userB)
	gens, err := c.client.MGet(ctx, c.genKey(a), c.genKey(b)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read generations: %w", err)
	}
	return fmt.Sprintf("%s:history:%s:%s:%s:%s", c.prefix, a, generation(gens[0]), b, generation(gens[1])), nil
}

func generation(v interface{}) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return "0"
}

func (c *RedisHistoryCache) Get(ctx context.Context, key string) ([]models.StoredMessage, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var msgs []models.StoredMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return msgs, nil
}

func (c *RedisHistoryCache) Set(ctx context.Context, key string, msgs []models.StoredMessage) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Invalidate bumps the generation of every non-empty user.
func (c *RedisHistoryCache) Invalidate(ctx context.Context, users ...string) error {
	pipe := c.client.Pipeline()
	queued := 0
	seen := map[string]struct{}{}
	for _, u := range users {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		pipe.Incr(ctx, c.genKey(u))
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bump generations: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Close() error {
	return c.client.Close()
}

// Package cache holds read-through caching for history queries.
package cache

import (
	"context"
	"errors"

	"chat-router/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache caches history results per user pair.
// Keys embed a per-user generation so a write involving either user makes older keys unreachable.
type HistoryCache interface {
	BuildKey(ctx context.Context, userA, userB string) (string, error)
	Get(ctx context.Context, key string) ([]models.StoredMessage, error)
	Set(ctx context.Context, key string, msgs []models.StoredMessage) error
	Invalidate(ctx context.Context, users ...string) error
	Close() error
}

// NoopCache never hits. Used when Redis is disabled.
type NoopCache struct{}

func (NoopCache) BuildKey(_ context.Context, userA, userB string) (string, error) {
	a, b := orderPair(userA, userB)
	return a + "|" + b, nil
}

func (NoopCache) Get(context.Context, string) ([]models.StoredMessage, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) Set(context.Context, string, []models.StoredMessage) error { return nil }

func (NoopCache) Invalidate(context.Context, ...string) error { return nil }

func (NoopCache) Close() error { return nil }

// History(A, B) and History(B, A) return the same records, so they share a key.
func orderPair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

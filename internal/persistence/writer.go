// Package persistence appends chat records to the message store and answers history queries.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"chat-router/internal/cache"
	"chat-router/internal/logging"
	"chat-router/internal/models"
	"chat-router/internal/observability"
	"chat-router/internal/repositories"
	"chat-router/internal/stream"
)

var (
	// ErrStorageUnavailable is returned when the store cannot accept or serve a request.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidQuery is returned by History when a user is missing.
	ErrInvalidQuery = errors.New("invalid history query")
)

// invalidateTimeout bounds the cache bump that follows a committed write.
const invalidateTimeout = 2 * time.Second

type Writer struct {
	repo   repositories.MessageRepository
	cache  cache.HistoryCache
	stream stream.Producer
	now    func() time.Time
	sf     singleflight.Group
}

type Option func(*Writer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

func WithCache(c cache.HistoryCache) Option {
	return func(w *Writer) {
		if c != nil {
			w.cache = c
		}
	}
}

func WithStream(p stream.Producer) Option {
	return func(w *Writer) {
		if p != nil {
			w.stream = p
		}
	}
}

func NewWriter(repo repositories.MessageRepository, opts ...Option) *Writer {
	w := &Writer{
		repo:   repo,
		cache:  cache.NoopCache{},
		stream: stream.NoopProducer{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append stamps msg with the current time and stores it. The returned record carries the storage id.
func (w *Writer) Append(ctx context.Context, msg models.ChatMessage) (models.StoredMessage, error) {
	record := models.StoredMessage{
		ChatMessage: msg,
		Timestamp:   w.now().UTC().Truncate(time.Millisecond),
	}

	start := time.Now()
	stored, err := w.repo.InsertMessage(ctx, record)
	observability.ObserveAppend(start, err)
	if err != nil {
		if errors.Is(err, repositories.ErrWriteRejected) {
			return models.StoredMessage{}, err
		}
		return models.StoredMessage{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	logger := logging.Ctx(ctx)
	// Detached from the caller: the row is already committed.
	invCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	if err := w.cache.Invalidate(invCtx, stored.Sender, stored.Recipient); err != nil {
		logger.Warn().Err(err).Int64(logging.FieldMessageID, stored.ID).Msg("history cache invalidation failed")
	}
	if err := w.stream.PublishRecord(ctx, stored); err != nil {
		logger.Warn().Err(err).Int64(logging.FieldMessageID, stored.ID).Msg("record stream publish failed")
	}
	return stored, nil
}

// History returns every record sent by or addressed to either user, ordered by (timestamp, id).
func (w *Writer) History(ctx context.Context, userA, userB string) ([]models.StoredMessage, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, fmt.Errorf("%w: both users are required", ErrInvalidQuery)
	}
	logger := logging.Ctx(ctx)

	key, err := w.cache.BuildKey(ctx, userA, userB)
	if err != nil {
		logger.Warn().Err(err).Msg("history cache key failed, reading store")
		observability.IncHistoryCache("error")
		return w.load(ctx, userA, userB)
	}

	msgs, err := w.cache.Get(ctx, key)
	switch {
	case err == nil:
		observability.IncHistoryCache("hit")
		return clone(msgs), nil
	case errors.Is(err, cache.ErrCacheMiss):
		observability.IncHistoryCache("miss")
	default:
		observability.IncHistoryCache("error")
		logger.Warn().Err(err).Msg("history cache read failed")
	}

	// The shared load is detached from any one caller; each caller waits on its own ctx.
	ch := w.sf.DoChan(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		loaded, err := w.load(loadCtx, userA, userB)
		if err != nil {
			return nil, err
		}
		if err := w.cache.Set(loadCtx, key, loaded); err != nil {
			logger.Warn().Err(err).Msg("history cache write failed")
		}
		return loaded, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]models.StoredMessage)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Writer) load(ctx context.Context, userA, userB string) ([]models.StoredMessage, error) {
	msgs, err := w.repo.ListMessagesInvolving(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	models.SortHistory(msgs)
	return msgs, nil
}

// Ping reports whether the store is reachable.
func (w *Writer) Ping(ctx context.Context) error {
	return w.repo.Ping(ctx)
}

func clone(msgs []models.StoredMessage) []models.StoredMessage {
	out := make([]models.StoredMessage, len(msgs))
	copy(out, msgs)
	return out
}

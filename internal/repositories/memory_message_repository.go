package repositories

import (
	"context"
	"sync"

	"chat-router/internal/models"
)

// MemoryMessageRepo keeps records in process. Used for local runs and tests.
type MemoryMessageRepo struct {
	mu     sync.RWMutex
	nextID int64
	msgs   []models.StoredMessage
}

// NewMemoryMessageRepo constructs an empty MemoryMessageRepo.
func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{}
}

func (r *MemoryMessageRepo) InsertMessage(ctx context.Context, msg models.StoredMessage) (models.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredMessage{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = r.nextID
	r.msgs = append(r.msgs, msg)
	return msg, nil
}

func (r *MemoryMessageRepo) ListMessagesInvolving(ctx context.Context, userA, userB string) ([]models.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.StoredMessage{}
	for _, m := range r.msgs {
		if m.Involves(userA, userB) {
			out = append(out, m)
		}
	}
	models.SortHistory(out)
	return out, nil
}

func (r *MemoryMessageRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records.
func (r *MemoryMessageRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.msgs)
}

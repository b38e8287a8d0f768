package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-router/internal/models"
)

// ErrWriteRejected is returned when the store refuses a record (constraint or data errors).
var ErrWriteRejected = errors.New("write rejected")

// MessageRepository is the storage collaborator behind the persistence writer.
type MessageRepository interface {
	// InsertMessage stores msg and returns it with its storage id.
	InsertMessage(ctx context.Context, msg models.StoredMessage) (models.StoredMessage, error)
	// ListMessagesInvolving returns records sent by or addressed to either user.
	ListMessagesInvolving(ctx context.Context, userA, userB string) ([]models.StoredMessage, error)
	Ping(ctx context.Context) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender, recipient, body, media, media_type, status, created_at`

// InsertMessage writes one row; the row is visible to readers only once the statement commits.
func (r *MessageRepo) InsertMessage(ctx context.Context, msg models.StoredMessage) (models.StoredMessage, error) {
	var stored models.StoredMessage
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO chat_messages (sender, recipient, body, media, media_type, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+messageColumns,
		msg.Sender, msg.Recipient, msg.Body, msg.Media, msg.MediaType, msg.Status, msg.Timestamp).
		StructScan(&stored)
	if err != nil {
		return models.StoredMessage{}, classify(err)
	}
	return stored, nil
}

// ListMessagesInvolving returns records ordered by creation time then id.
func (r *MessageRepo) ListMessagesInvolving(ctx context.Context, userA, userB string) ([]models.StoredMessage, error) {
	query := `SELECT ` + messageColumns + `
        FROM chat_messages
        WHERE sender IN ($1, $2) OR recipient IN ($1, $2)
        ORDER BY created_at ASC, id ASC`
	msgs := []models.StoredMessage{}
	if err := r.db.SelectContext(ctx, &msgs, query, userA, userB); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Ping checks the database connection.
func (r *MessageRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// classify marks integrity and data errors as rejections; everything else is left as is.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return fmt.Errorf("%w: %s", ErrWriteRejected, pqErr.Message)
		}
	}
	return err
}

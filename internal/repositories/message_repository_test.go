package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-router/internal/models"
)

var columns = []string{"id", "sender", "recipient", "body", "media", "media_type", "status", "created_at"}

func newMockRepo(t *testing.T) (*MessageRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMessageRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestInsertMessageReturnsStoredRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := models.StoredMessage{
		ChatMessage: models.ChatMessage{Sender: "bob", Recipient: "alice", Body: "hi", Status: models.StatusMessage},
		Timestamp:   ts,
	}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chat_messages`)).
		WithArgs("bob", "alice", "hi", "", "", models.StatusMessage, ts).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(7), "bob", "alice", "hi", "", "", models.StatusMessage, ts))

	stored, err := repo.InsertMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.ID)
	assert.Equal(t, "bob", stored.Sender)
	assert.Equal(t, "alice", stored.Recipient)
	assert.True(t, ts.Equal(stored.Timestamp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessageConstraintViolationIsRejected(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chat_messages`)).
		WillReturnError(&pq.Error{Code: "23502", Message: "null value in column"})

	_, err := repo.InsertMessage(context.Background(), models.StoredMessage{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteRejected)
}

func TestInsertMessageConnectionErrorPassesThrough(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chat_messages`)).WillReturnError(driver.ErrBadConn)

	_, err := repo.InsertMessage(context.Background(), models.StoredMessage{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrWriteRejected))
}

func TestListMessagesInvolving(t *testing.T) {
	repo, mock := newMockRepo(t)
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE sender IN ($1, $2) OR recipient IN ($1, $2)`)).
		WithArgs("alice", "bob").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "bob", "alice", "hi", "", "", "SENT", t1).
			AddRow(int64(2), "alice", "", "hello all", "", "", "MESSAGE", t1))

	msgs, err := repo.ListMessagesInvolving(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, "", msgs[1].Recipient)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesInvolvingEmpty(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM chat_messages`)).
		WillReturnRows(sqlmock.NewRows(columns))

	msgs, err := repo.ListMessagesInvolving(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestMemoryRepoAssignsSequentialIDs(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()

	a, err := repo.InsertMessage(ctx, models.StoredMessage{ChatMessage: models.ChatMessage{Sender: "a", Body: "1"}})
	require.NoError(t, err)
	b, err := repo.InsertMessage(ctx, models.StoredMessage{ChatMessage: models.ChatMessage{Sender: "a", Body: "2"}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.Equal(t, 2, repo.Len())
}

func TestMemoryRepoFiltersAndSorts(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	insert := func(sender, recipient string, ts time.Time) {
		_, err := repo.InsertMessage(ctx, models.StoredMessage{
			ChatMessage: models.ChatMessage{Sender: sender, Recipient: recipient, Body: "x"},
			Timestamp:   ts,
		})
		require.NoError(t, err)
	}
	insert("bob", "alice", t0.Add(2*time.Second))
	insert("carol", "dave", t0)
	insert("alice", "", t0)
	insert("carol", "bob", t0.Add(2*time.Second))

	msgs, err := repo.ListMessagesInvolving(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(3), msgs[0].ID)
	assert.Equal(t, int64(1), msgs[1].ID)
	assert.Equal(t, int64(4), msgs[2].ID)
}

func TestMemoryRepoHonoursCancelledContext(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.InsertMessage(ctx, models.StoredMessage{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, repo.Len())
}

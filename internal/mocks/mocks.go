package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"chat-router/internal/models"
	"chat-router/internal/router"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) InsertMessage(ctx context.Context, msg models.StoredMessage) (models.StoredMessage, error) {
	args := m.Called(ctx, msg)
	var stored models.StoredMessage
	if val := args.Get(0); val != nil {
		stored = val.(models.StoredMessage)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessagesInvolving(ctx context.Context, userA, userB string) ([]models.StoredMessage, error) {
	args := m.Called(ctx, userA, userB)
	var msgs []models.StoredMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.StoredMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type HistoryCacheMock struct {
	mock.Mock
}

func (m *HistoryCacheMock) BuildKey(ctx context.Context, userA, userB string) (string, error) {
	args := m.Called(ctx, userA, userB)
	return args.String(0), args.Error(1)
}

func (m *HistoryCacheMock) Get(ctx context.Context, key string) ([]models.StoredMessage, error) {
	args := m.Called(ctx, key)
	var msgs []models.StoredMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.StoredMessage)
	}
	return msgs, args.Error(1)
}

func (m *HistoryCacheMock) Set(ctx context.Context, key string, msgs []models.StoredMessage) error {
	args := m.Called(ctx, key, msgs)
	return args.Error(0)
}

func (m *HistoryCacheMock) Invalidate(ctx context.Context, users ...string) error {
	args := m.Called(ctx, users)
	return args.Error(0)
}

func (m *HistoryCacheMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type ProducerMock struct {
	mock.Mock
}

func (m *ProducerMock) PublishRecord(ctx context.Context, msg models.StoredMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *ProducerMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type WriterMock struct {
	mock.Mock
}

func (m *WriterMock) Append(ctx context.Context, msg models.ChatMessage) (models.StoredMessage, error) {
	args := m.Called(ctx, msg)
	var stored models.StoredMessage
	if val := args.Get(0); val != nil {
		stored = val.(models.StoredMessage)
	}
	return stored, args.Error(1)
}

func (m *WriterMock) History(ctx context.Context, userA, userB string) ([]models.StoredMessage, error) {
	args := m.Called(ctx, userA, userB)
	var msgs []models.StoredMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.StoredMessage)
	}
	return msgs, args.Error(1)
}

type RouterMock struct {
	mock.Mock
}

func (m *RouterMock) RoutePublic(ctx context.Context, msg models.ChatMessage) (router.Delivery, error) {
	args := m.Called(ctx, msg)
	var d router.Delivery
	if val := args.Get(0); val != nil {
		d = val.(router.Delivery)
	}
	return d, args.Error(1)
}

func (m *RouterMock) RoutePrivate(ctx context.Context, msg models.ChatMessage) (router.Delivery, error) {
	args := m.Called(ctx, msg)
	var d router.Delivery
	if val := args.Get(0); val != nil {
		d = val.(router.Delivery)
	}
	return d, args.Error(1)
}

// RecordingHandle is a delivery handle that keeps every message it accepts.
// Set Err to make deliveries fail.
type RecordingHandle struct {
	mu   sync.Mutex
	msgs []models.ChatMessage
	Err  error
}

func (h *RecordingHandle) Deliver(msg models.ChatMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	h.msgs = append(h.msgs, msg)
	return nil
}

func (h *RecordingHandle) Messages() []models.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.ChatMessage, len(h.msgs))
	copy(out, h.msgs)
	return out
}

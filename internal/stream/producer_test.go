package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-router/internal/models"
)

func TestConversationKey(t *testing.T) {
	assert.Equal(t, "public", ConversationKey(models.ChatMessage{Sender: "alice"}))
	assert.Equal(t, "alice:bob", ConversationKey(models.ChatMessage{Sender: "bob", Recipient: "alice"}))
	assert.Equal(t, "alice:bob", ConversationKey(models.ChatMessage{Sender: "alice", Recipient: "bob"}))
}

func TestNewProducerWithoutBrokersIsNoop(t *testing.T) {
	p := NewProducer("", "chat-messages")

	_, ok := p.(NoopProducer)
	assert.True(t, ok)
	assert.NoError(t, p.PublishRecord(context.Background(), models.StoredMessage{}))
	assert.NoError(t, p.Close())
}

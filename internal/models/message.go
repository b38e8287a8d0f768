package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status tags carried by clients. The router never transitions them.
const (
	StatusJoin    = "JOIN"
	StatusMessage = "MESSAGE"
	StatusLeave   = "LEAVE"
	StatusSent    = "SENT"
)

// PublicRoom is accepted from clients as an alias for an empty recipient.
const PublicRoom = "public"

var ErrInvalidMessage = errors.New("invalid message")

// ChatMessage is an inbound chat event. An empty Recipient addresses the public room.
type ChatMessage struct {
	Sender    string `db:"sender" json:"sender"`
	Recipient string `db:"recipient" json:"recipient"`
	Body      string `db:"body" json:"body"`
	Media     string `db:"media" json:"media,omitempty"`
	MediaType string `db:"media_type" json:"media_type,omitempty"`
	Status    string `db:"status" json:"status,omitempty"`
}

// IsPublic reports whether the message is addressed to the public room.
func (m ChatMessage) IsPublic() bool {
	return m.Recipient == ""
}

// Normalize trims identifiers, folds the public room alias and drops a media type without media.
func (m ChatMessage) Normalize() ChatMessage {
	m.Sender = strings.TrimSpace(m.Sender)
	m.Recipient = strings.TrimSpace(m.Recipient)
	if strings.EqualFold(m.Recipient, PublicRoom) {
		m.Recipient = ""
	}
	if m.Media == "" {
		m.MediaType = ""
	}
	return m
}

// Validate checks the fields every route requires.
func (m ChatMessage) Validate() error {
	if m.Sender == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	}
	if m.Body == "" && m.Media == "" {
		return fmt.Errorf("%w: body or media is required", ErrInvalidMessage)
	}
	return nil
}

// StoredMessage is a persisted ChatMessage with its server-assigned timestamp and storage id.
type StoredMessage struct {
	ID int64 `db:"id" json:"id"`
	ChatMessage
	Timestamp time.Time `db:"created_at" json:"timestamp"`
}

// Involves reports whether the record was sent by or addressed to any of the users.
func (s StoredMessage) Involves(users ...string) bool {
	for _, u := range users {
		if u == "" {
			continue
		}
		if s.Sender == u || s.Recipient == u {
			return true
		}
	}
	return false
}

// SortHistory orders records by timestamp, breaking ties by id.
func SortHistory(msgs []StoredMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// ChatEvent is written to websocket clients.
type ChatEvent struct {
	Type      string       `json:"type"`
	Message   *ChatMessage `json:"message,omitempty"`
	MessageID int64        `json:"message_id,omitempty"`
	Delivered int          `json:"delivered,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Event types written to clients.
const (
	EventMessage = "message"
	EventAck     = "ack"
	EventError   = "error"
)

// Frame is a message read from a websocket client.
type Frame struct {
	Type      string `json:"type"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	Media     string `json:"media"`
	MediaType string `json:"media_type"`
	Status    string `json:"status"`
}

// Frame types accepted from clients.
const (
	FramePublic  = "public"
	FramePrivate = "private"
)

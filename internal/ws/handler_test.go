package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-router/internal/auth"
	"chat-router/internal/config"
	"chat-router/internal/models"
	"chat-router/internal/persistence"
	"chat-router/internal/registry"
	"chat-router/internal/repositories"
	"chat-router/internal/router"
)

type testEnv struct {
	server    *httptest.Server
	registry  *registry.Registry
	repo      *repositories.MemoryMessageRepo
	validator *auth.Validator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repositories.NewMemoryMessageRepo()
	reg := registry.New()
	rt := router.New(persistence.NewWriter(repo), reg, router.Config{})
	validator := auth.NewValidator("test-secret", "")
	cfg := config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 1 << 16,
		SendBuffer:     16,
	}

	engine := gin.New()
	engine.GET("/ws", NewHandler(rt, reg, validator, cfg).Handle)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return &testEnv{server: server, registry: reg, repo: repo, validator: validator}
}

func (e *testEnv) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	token, err := e.validator.Sign(username, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *testEnv) waitRegistered(t *testing.T, username string, conns int) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := e.registry.Resolve(username)
		return ok && e.registry.Len() >= conns
	}, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) models.ChatEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.ChatEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestPrivateFrameIsDeliveredAndAcked(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	env.waitRegistered(t, "alice", 2)
	env.waitRegistered(t, "bob", 2)

	require.NoError(t, bob.WriteJSON(models.Frame{Type: models.FramePrivate, Recipient: "alice", Body: "hi"}))

	got := readEvent(t, alice)
	assert.Equal(t, models.EventMessage, got.Type)
	require.NotNil(t, got.Message)
	assert.Equal(t, "bob", got.Message.Sender)
	assert.Equal(t, "hi", got.Message.Body)

	ack := readEvent(t, bob)
	assert.Equal(t, models.EventAck, ack.Type)
	assert.Equal(t, int64(1), ack.MessageID)
	assert.Equal(t, 1, ack.Delivered)
	assert.Equal(t, 1, env.repo.Len())
}

func TestPublicFrameEchoesToSender(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	env.waitRegistered(t, "alice", 1)

	require.NoError(t, alice.WriteJSON(models.Frame{Type: models.FramePublic, Body: "hello", Status: models.StatusJoin}))

	first := readEvent(t, alice)
	second := readEvent(t, alice)
	types := []string{first.Type, second.Type}
	assert.ElementsMatch(t, []string{models.EventMessage, models.EventAck}, types)
}

func TestInvalidFrameGetsError(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	env.waitRegistered(t, "alice", 1)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, models.EventError, readEvent(t, alice).Type)

	require.NoError(t, alice.WriteJSON(models.Frame{Type: "shout", Body: "x"}))
	assert.Equal(t, models.EventError, readEvent(t, alice).Type)

	require.NoError(t, alice.WriteJSON(models.Frame{Type: models.FramePrivate, Body: "no recipient"}))
	assert.Equal(t, models.EventError, readEvent(t, alice).Type)
	assert.Zero(t, env.repo.Len())
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	env := newTestEnv(t)
	first := env.dial(t, "alice")
	env.waitRegistered(t, "alice", 1)
	h1, _ := env.registry.Resolve("alice")

	second := env.dial(t, "alice")
	require.Eventually(t, func() bool {
		h, ok := env.registry.Resolve("alice")
		return ok && h != h1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	bob := env.dial(t, "bob")
	env.waitRegistered(t, "bob", 2)
	require.NoError(t, bob.WriteJSON(models.Frame{Type: models.FramePrivate, Recipient: "alice", Body: "still there?"}))
	got := readEvent(t, second)
	require.NotNil(t, got.Message)
	assert.Equal(t, "still there?", got.Message.Body)
	assert.Equal(t, 2, env.registry.Len())
}

func TestDisconnectUnregisters(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	env.waitRegistered(t, "alice", 1)

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool {
		_, ok := env.registry.Resolve("alice")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=garbage"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClientDeliverAfterClose(t *testing.T) {
	c := NewClient(nil, ConnInfo{}, config.WebSocketConfig{SendBuffer: 1})
	require.NoError(t, c.Deliver(models.ChatMessage{Sender: "a", Body: "1"}))
	assert.ErrorIs(t, c.Deliver(models.ChatMessage{Sender: "a", Body: "2"}), ErrSendQueueFull)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Deliver(models.ChatMessage{Sender: "a", Body: "3"}), ErrClientClosed)
}

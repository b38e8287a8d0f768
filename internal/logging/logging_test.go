package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAddsServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "debug", ServiceName: "chat-router"})

	logger.Debug().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "chat-router", line[FieldService])
	assert.Equal(t, "hello", line["message"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn"})

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	scoped := New(&buf, Config{}).With().Str(FieldRequestID, "r1").Logger()
	ctx := WithLogger(context.Background(), scoped)

	l := Ctx(ctx)
	l.Info().Msg("scoped")
	assert.Contains(t, buf.String(), `"request_id":"r1"`)

	fallback := Ctx(context.Background())
	assert.Equal(t, L().GetLevel(), fallback.GetLevel())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel(" DEBUG "))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	logger.WithRequestID("req-1").WithComponent("resource").Info("handled", slog.Int("status", 200))
	logger.Debug("hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "handled", record["msg"])
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "resource", record["component"])
	assert.EqualValues(t, 200, record["status"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))
	assert.Empty(t, GetRequestID(ctx))

	logger := NewNop()
	ctx = WithLogger(ctx, logger)
	ctx = WithRequestIDContext(ctx, "abc")
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "abc", GetRequestID(ctx))
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := newMultiHandler(slog.NewTextHandler(&a, nil), slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}))
	logger := slog.New(h).With("k", "v")

	logger.Info("first")
	logger.Error("second")

	assert.Contains(t, a.String(), "first")
	assert.Contains(t, a.String(), "second")
	assert.NotContains(t, b.String(), "first")
	assert.Contains(t, b.String(), `"k":"v"`)
}

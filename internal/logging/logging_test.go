package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewWriter_JSONWithSource(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_SOURCE", "true")

	var buf bytes.Buffer
	NewWriter(&buf).Debug("hello", slog.String("k", "v"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "v", rec["k"])
	assert.Contains(t, rec, "source")
}

func TestWith_AccumulatesAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithLogger(context.Background(), base)
	ctx = With(ctx, slog.String("provider", "coze"))
	ctx = With(ctx, slog.String("stage", "parse"))

	FromContext(ctx).Info("step")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "coze", rec["provider"])
	assert.Equal(t, "parse", rec["stage"])
}

func TestFromContext_Default(t *testing.T) {
	t.Parallel()
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestNewWriter_RedactsCredentials(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_SOURCE", "")

	var buf bytes.Buffer
	NewWriter(&buf).Info("settings loaded",
		slog.String("api_key", "sk-live-123"),
		slog.String("Authorization", "Bearer abc"),
		slog.Int("max_tokens", 8000),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, redacted, rec["api_key"])
	assert.Equal(t, redacted, rec["Authorization"])
	assert.InDelta(t, 8000, rec["max_tokens"], 0)
	assert.Equal(t, Service, rec["service"])
	assert.NotContains(t, buf.String(), "sk-live-123")
}

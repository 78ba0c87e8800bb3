package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewTo(&buf, "warn").With("request_id", "r-1")
	ctx := IntoContext(context.Background(), l)

	FromContext(ctx).Info("dropped")
	FromContext(ctx).Warn("kept", "reason", "revoked")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "r-1", rec["request_id"])
	assert.Equal(t, "revoked", rec["reason"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	t.Parallel()
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

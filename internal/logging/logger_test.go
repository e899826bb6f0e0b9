package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})), &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLogStore(t *testing.T) {
	l, buf := capture(slog.LevelInfo)
	l.WithImage("a.png").LogStore(context.Background(), "save", "a", 12, nil)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "save completed", rec["msg"])
	assert.Equal(t, "a.png", rec["image"])
	assert.EqualValues(t, 12, rec["keypoints"])
}

func TestLogDetectLevels(t *testing.T) {
	l, buf := capture(slog.LevelInfo)
	l.LogDetect(context.Background(), "pure", 3, nil)
	assert.Zero(t, buf.Len(), "success is logged at debug")

	l.WithBackend("pure").LogDetect(context.Background(), "pure", 0, errors.New("boom"))
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestNoopLogger(t *testing.T) {
	assert.False(t, NoopLogger().Enabled(context.Background(), slog.LevelError))
}

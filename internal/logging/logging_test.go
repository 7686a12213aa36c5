package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSONDefault(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "", "")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("crisis event created", "crisis_event_id", "ev-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "crisis event created", rec["msg"])
	require.Equal(t, "ev-1", rec["crisis_event_id"])
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, rec["time"])
}

func TestNew_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "text")
	require.NoError(t, err)
	logger.Info("skip")
	logger.Warn("kept", "level", "HIGH")
	require.NotContains(t, buf.String(), "skip")
	require.Contains(t, buf.String(), "msg=kept")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "json")
	require.Error(t, err)
	_, err = New(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}

func TestContextLogger(t *testing.T) {
	require.Equal(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	require.NoError(t, err)
	ctx := WithContext(context.Background(), logger.With("request_id", "r-1"))
	FromContext(ctx).Info("hello")
	require.Contains(t, buf.String(), `"request_id":"r-1"`)
}

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_JSONAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "json")

	WithMessageID(WithWorkflowID(logger, "wf-1"), "m-1").Info("dispatched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "wf-1", entry["workflow_id"])
	assert.Equal(t, "m-1", entry["message_id"])
	assert.Equal(t, "dispatched", entry["msg"])
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "text")

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestRedact_JSON(t *testing.T) {
	body := []byte(`{"user":"u1","password":"p","nested":{"accessToken":"t","list":[{"fileP7s":"xx","name":"a"}]}}`)

	out := Redact(body, 0)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "u1", v["user"])
	assert.Equal(t, RedactedValue, v["password"])

	nested := v["nested"].(map[string]any)
	assert.Equal(t, RedactedValue, nested["accessToken"])
	item := nested["list"].([]any)[0].(map[string]any)
	assert.Equal(t, RedactedValue, item["fileP7s"])
	assert.Equal(t, "a", item["name"])
}

func TestRedact_NonJSONTruncated(t *testing.T) {
	out := Redact([]byte("<soap>abcdefgh</soap>"), 6)
	assert.Equal(t, "<soap>...(truncated)", out)
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer x")
	h.Set("Content-Type", "application/json")

	out := RedactHeaders(h)
	assert.Equal(t, RedactedValue, out["Authorization"])
	assert.Equal(t, "application/json", out["Content-Type"])
}

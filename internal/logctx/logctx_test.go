package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_AddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{slog.NewJSONHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := WithRPCMessage(context.Background(), &RPCMessage{Method: "tools/call", ID: "7"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolID: "ping"})
	ctx = WithWorkData(ctx, &WorkData{WorkID: "w-1"})
	log.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, map[string]any{"method": "tools/call", "id": "7"}, rec["rpc"])
	assert.Equal(t, map[string]any{"id": "ping"}, rec["tool"])
	assert.Equal(t, map[string]any{"id": "w-1"}, rec["work"])
}

func TestHandler_NoContextData(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{slog.NewJSONHandler(&buf, nil)})
	log.InfoContext(context.Background(), "bare")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "rpc")
	assert.NotContains(t, rec, "tool")
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestZerologLogger_ProductionIsJSONAndSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newZerolog(&buf, "production")
	ctx := context.Background()

	log.Debug(ctx, "hidden")
	log.Info(ctx, "inf", "b", 2)
	log.Error(ctx, "err", "error", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "inf", lines[0]["message"])
	assert.Equal(t, float64(2), lines[0]["b"])
	assert.Equal(t, "production", lines[0]["env"])

	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestZerologLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := newZerolog(&buf, "production").With("module", "accounts", "dangling")
	log.Warn(context.Background(), "hello", "k", "v")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "accounts", lines[0]["module"])
	assert.Equal(t, "dangling", lines[0]["!BADKEY"])
	assert.Equal(t, "v", lines[0]["k"])
	assert.Equal(t, "warn", lines[0]["level"])
}

func TestZerologLogger_DevelopmentWritesConsole(t *testing.T) {
	var buf bytes.Buffer
	log := newZerolog(&buf, "development")
	log.Debug(context.Background(), "visible", "a", 1)

	out := buf.String()
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "DBG")
}

func TestNop_DoesNothing(t *testing.T) {
	var l Logger = Nop{}
	l.With("a", 1).Info(context.Background(), "x")
}

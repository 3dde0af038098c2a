package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in        string
		wantLevel string
		wantMsg   string
	}{
		{in: "INFO udp listening", wantLevel: "INFO", wantMsg: "udp listening"},
		{in: "[warn] queue full", wantLevel: "WARN", wantMsg: "queue full"},
		{in: "error: bind failed", wantLevel: "ERROR", wantMsg: "bind failed"},
		{in: "plain message", wantLevel: "INFO", wantMsg: "plain message"},
		{in: "   ", wantLevel: "INFO", wantMsg: ""},
	}
	for _, tt := range tests {
		level, msg := parseLevel(tt.in)
		assert.Equal(t, tt.wantLevel, level, tt.in)
		assert.Equal(t, tt.wantMsg, msg, tt.in)
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("prsd", &buf, "")

	logger.Printf("WARN dropped event for %s", "FT Server")
	logger.Printf("DEBUG not shown at info level")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "prsd", lines[0]["service"])
	assert.Equal(t, "dropped event for FT Server", lines[0]["msg"])
	assert.Contains(t, lines[0], "ts")
}

func TestLoggerHonoursMinLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("prsd", &buf, "debug")
	logger.Printf("DEBUG handled request")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "debug", lines[0]["level"])

	buf.Reset()
	logger = NewLogger("prsd", &buf, "error")
	logger.Printf("WARN suppressed")
	logger.Printf("ERROR kept")
	lines = decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
}

func TestInitRequiresServiceName(t *testing.T) {
	_, _, _, err := Init(context.Background(), "")
	assert.Error(t, err)
}

func TestInitWithoutExporter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, middleware, logger, err := Init(context.Background(), "prsd-test")
	require.NoError(t, err)
	require.NotNil(t, logger)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	h := middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

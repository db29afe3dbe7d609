package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedRequest(t *testing.T, level slog.Level, path string, status int, body string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != 0 {
			w.WriteHeader(status)
		}
		if body != "" {
			w.Write([]byte(body))
		}
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

	if buf.Len() == 0 {
		return nil
	}
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLogging_RecordsStatusAndBytes(t *testing.T) {
	line := loggedRequest(t, slog.LevelInfo, "/api/markets", http.StatusCreated, `{"id":0}`)

	require.NotNil(t, line)
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/api/markets", line["path"])
	assert.Equal(t, float64(http.StatusCreated), line["status"])
	assert.Equal(t, float64(8), line["bytes"])
}

func TestLogging_HealthProbesAtDebug(t *testing.T) {
	// At Info level health checks are silent.
	line := loggedRequest(t, slog.LevelInfo, "/api/health", http.StatusOK, "ok")
	assert.Nil(t, line)

	// At Debug level they still appear.
	line = loggedRequest(t, slog.LevelDebug, "/api/health", http.StatusOK, "ok")
	require.NotNil(t, line)
	assert.Equal(t, "DEBUG", line["level"])
}

func TestLogging_DefaultsTo200WhenHandlerNeverWritesHeader(t *testing.T) {
	line := loggedRequest(t, slog.LevelInfo, "/api/markets", 0, "")

	require.NotNil(t, line)
	assert.Equal(t, float64(http.StatusOK), line["status"])
}

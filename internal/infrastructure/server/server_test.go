package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/tracing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.AppsDir = filepath.Join(dir, "apps")
	cfg.Logging.Level = "error"
	cfg.RateLimit.Enabled = false

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestServerWiring(t *testing.T) {
	srv := newTestServer(t)
	defer func() { assert.NoError(t, srv.Close()) }()

	w, body := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get(tracing.HeaderTraceID))

	// Built-in apps are seeded on startup
	w, _ = get(t, srv, "/registry/apps/clock")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# TYPE")

	w, body = get(t, srv, "/metrics/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	require.Eventually(t, func() bool {
		_, body := get(t, srv, "/metrics/traces")
		spans, _ := body["spans"].([]interface{})
		return len(spans) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerOpensSeededApp(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/apps/clock/open", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, body := get(t, srv, "/apps")
	apps, _ := body["apps"].([]interface{})
	assert.Len(t, apps, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

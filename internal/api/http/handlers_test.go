package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/app"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/capability"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/database"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/bus"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/notify"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/settings"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/vfs"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

const counterManifest = `{
  "id": "counter",
  "name": "Counter",
  "category": "tools",
  "tags": ["demo"],
  "html": "<span id=\"count\">0</span><button id=\"inc\" onclick=\"increment()\">+</button>",
  "exports": ["increment"],
  "settings": [{"key": "step", "value": 1}],
  "script": "var n = 0; function increment() { n += getAppSetting('step', 1); getElementById('count').textContent = String(n); return n; } console.log('ready'); setInterval(function () {}, 1000);"
}`

type fixture struct {
	router   *gin.Engine
	handlers *Handlers
	bus      *bus.Bus
	notify   *notify.Center
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := database.Connect(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := monitoring.NewMetrics()
	store := settings.NewStore(db, nil)
	fs := vfs.New(db, nil)
	require.NoError(t, fs.Bootstrap(ctx))
	b := bus.New(bus.DefaultConfig(), nil, metrics)
	t.Cleanup(b.Close)
	center := notify.New(b, nil, metrics, 0)
	packages := registry.NewManager(db, nil, metrics)

	host, err := sandbox.New(sandbox.DefaultConfig(), sandbox.Deps{
		Capabilities: capability.NewFactory(capability.Deps{
			Settings: store,
			Notifier: center,
			FS:       fs,
			Bus:      b,
		}),
		Metrics: metrics,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })

	h := NewHandlers(Deps{
		Apps:     app.NewManager(host, packages, store, nil),
		Host:     host,
		Registry: packages,
		Settings: store,
		Notify:   center,
		Bus:      b,
		FS:       fs,
		Metrics:  NewHandlerMetrics(metrics),
		Logger:   zap.NewNop(),
	})
	router := gin.New()
	h.Register(router)

	return &fixture{router: router, handlers: h, bus: b, notify: center}
}

func (f *fixture) do(t *testing.T, method, path, contentType, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (f *fixture) json(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	return f.do(t, method, path, "application/json", body)
}

func (f *fixture) install(t *testing.T) {
	t.Helper()
	code, body := f.json(t, http.MethodPost, "/registry/apps", counterManifest)
	require.Equal(t, http.StatusOK, code, body)
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t)

	code, body := f.json(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "online", body["status"])

	code, body = f.json(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["locked"])
}

func TestRegistryRoutes(t *testing.T) {
	f := newFixture(t)
	f.install(t)

	yamlManifest := "id: hello\nname: Hello\ncategory: demo\ntags: [greeting]\nhtml: <p>hi</p>\n"
	code, body := f.do(t, http.MethodPost, "/registry/apps", "application/yaml", yamlManifest)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "hello", body["app_id"])

	code, body = f.json(t, http.MethodGet, "/registry/apps", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["apps"], 2)

	code, body = f.json(t, http.MethodGet, "/registry/apps?q=greet", "")
	require.Equal(t, http.StatusOK, code)
	apps := body["apps"].([]interface{})
	require.Len(t, apps, 1)
	assert.Equal(t, "hello", apps[0].(map[string]interface{})["id"])

	code, body = f.json(t, http.MethodGet, "/registry/apps/counter", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Counter", body["app"].(map[string]interface{})["name"])

	code, _ = f.json(t, http.MethodDelete, "/registry/apps/hello", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = f.json(t, http.MethodGet, "/registry/apps/hello", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])

	code, _ = f.json(t, http.MethodPost, "/registry/apps", `{"id": "broken", "name": "Broken", "tags": ["x"]}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.json(t, http.MethodGet, "/registry/apps/bad%20id", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSaveRegistryAppRejectsBadBodies(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name        string
		contentType string
		body        string
		code        int
		err         string
	}{
		{"malformed json", "application/json", `{"id": "half"`, http.StatusBadRequest, "invalid JSON"},
		{"oversized", "application/yaml", "id: big\nhtml: " + strings.Repeat("a", utils.MaxJSONSize), http.StatusRequestEntityTooLarge, "exceeds maximum"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/registry/apps", tc.contentType, tc.body)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tc.err)
		})
	}
}

func TestAppLifecycleRoutes(t *testing.T) {
	f := newFixture(t)
	f.install(t)

	code, body := f.json(t, http.MethodPost, "/apps/counter/open", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []interface{}{"increment"}, body["exposed"])
	assert.Nil(t, body["script_error"])

	code, _ = f.json(t, http.MethodPost, "/apps/counter/open", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = f.json(t, http.MethodPost, "/apps/counter/invoke/increment", `{"args": []}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["result"])

	code, _ = f.json(t, http.MethodPost, "/apps/counter/invoke/missing", "")
	assert.Equal(t, http.StatusNotFound, code)

	// Inline onclick runs as the default action of a click
	code, body = f.json(t, http.MethodPost, "/apps/counter/events", `{"target": "inc", "type": "click"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["default_prevented"])

	code, body = f.json(t, http.MethodGet, "/apps/counter/dom", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["html"], `<span id="count">2</span>`)

	code, body = f.json(t, http.MethodGet, "/apps/counter/console", "")
	require.Equal(t, http.StatusOK, code)
	var messages []interface{}
	for _, e := range body["entries"].([]interface{}) {
		messages = append(messages, e.(map[string]interface{})["message"])
	}
	assert.Contains(t, messages, "ready")

	code, _ = f.json(t, http.MethodPost, "/apps/counter/window", `{"position": {"x": 10, "y": 20}, "size": {"width": 300, "height": 200}}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.json(t, http.MethodPost, "/apps/counter/window", `{"size": {"width": 0, "height": 200}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.json(t, http.MethodGet, "/apps/counter", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body["instance"].(map[string]interface{})["state"])

	code, body = f.json(t, http.MethodDelete, "/apps/counter", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	report := body["report"].(map[string]interface{})
	assert.EqualValues(t, 1, report["timers_cleared"])

	code, body = f.json(t, http.MethodDelete, "/apps/counter", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])

	code, _ = f.json(t, http.MethodGet, "/apps/counter", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOpenUnknownApp(t *testing.T) {
	f := newFixture(t)

	code, body := f.json(t, http.MethodPost, "/apps/nope/open", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
}

func TestSettingsRoutes(t *testing.T) {
	f := newFixture(t)

	code, _ := f.json(t, http.MethodPut, "/apps/counter/settings/theme", `{"value": "dark"}`)
	require.Equal(t, http.StatusOK, code)

	code, body := f.json(t, http.MethodGet, "/apps/counter/settings", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "dark", body["settings"].(map[string]interface{})["theme"])

	code, _ = f.json(t, http.MethodPut, "/apps/counter/settings/theme", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBusRoutes(t *testing.T) {
	f := newFixture(t)

	var got []string
	require.NoError(t, f.bus.Connect("listener", func(m types.Message) { got = append(got, m.Event) }))
	require.NoError(t, f.bus.Join("listener", "chat"))

	code, body := f.json(t, http.MethodPost, "/bus/broadcast", `{"room": "chat", "event": "say", "payload": {"text": "hi"}}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, got, "say")

	code, body = f.json(t, http.MethodGet, "/bus/rooms", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["rooms"].(map[string]interface{})["chat"])

	code, body = f.json(t, http.MethodGet, "/bus/rooms/chat/messages?limit=10", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"], 1)

	code, _ = f.json(t, http.MethodGet, "/bus/rooms/chat/messages?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.json(t, http.MethodPost, "/bus/broadcast", `{"room": "bad room", "event": "x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNotificationRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.notify.Notify(ctx, types.Notification{AppID: "notepad", Title: "Saved"})
	require.NoError(t, err)
	_, err = f.notify.Notify(ctx, types.Notification{AppID: "clock", Title: "Tick"})
	require.NoError(t, err)

	code, body := f.json(t, http.MethodGet, "/notifications?app_id=notepad", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["notifications"], 1)

	code, body = f.json(t, http.MethodDelete, "/notifications", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["removed"])
}

func TestLockRoutes(t *testing.T) {
	f := newFixture(t)
	f.install(t)

	code, _ := f.json(t, http.MethodPut, "/system/lock", "")
	assert.Equal(t, http.StatusBadRequest, code, "no PIN stored yet")

	code, _ = f.json(t, http.MethodPut, "/system/lock", `{"pin": "12"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := f.json(t, http.MethodPut, "/system/lock", `{"pin": "2468"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["locked"])

	code, _ = f.json(t, http.MethodPost, "/apps/counter/open", "")
	assert.Equal(t, http.StatusLocked, code)

	code, _ = f.json(t, http.MethodPut, "/system/lock", `{"pin": "9999"}`)
	assert.Equal(t, http.StatusLocked, code, "PIN cannot change while locked")

	code, _ = f.json(t, http.MethodPost, "/system/unlock", `{"pin": "0000"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = f.json(t, http.MethodPost, "/system/unlock", `{"pin": "2468"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["locked"])

	code, _ = f.json(t, http.MethodPost, "/apps/counter/open", "")
	assert.Equal(t, http.StatusOK, code)

	// The stored PIN is reused when locking again without one
	code, _ = f.json(t, http.MethodPut, "/system/lock", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestUnloadAndStats(t *testing.T) {
	f := newFixture(t)
	f.install(t)

	code, _ := f.json(t, http.MethodPost, "/apps/counter/open", "")
	require.Equal(t, http.StatusOK, code)

	code, body := f.json(t, http.MethodGet, "/system/stats", "")
	require.Equal(t, http.StatusOK, code)
	stats := body["stats"].(map[string]interface{})
	assert.EqualValues(t, 1, stats["sandbox"].(map[string]interface{})["instances"])
	assert.EqualValues(t, 1, stats["registry"].(map[string]interface{})["total_packages"])

	code, body = f.json(t, http.MethodPost, "/system/unload", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["closed"])

	code, body = f.json(t, http.MethodGet, "/apps", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["apps"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("open: %w", registry.ErrNotFound), http.StatusNotFound},
		{sandbox.ErrAppNotRunning, http.StatusNotFound},
		{sandbox.ErrNotExposed, http.StatusNotFound},
		{sandbox.ErrAlreadyRunning, http.StatusConflict},
		{vfs.ErrExists, http.StatusConflict},
		{registry.ErrInvalidManifest, http.StatusBadRequest},
		{settings.ErrInvalidKey, http.StatusBadRequest},
		{ErrLocked, http.StatusLocked},
		{&sandbox.ScriptError{AppID: "a", Phase: "invoke", Message: "boom"}, http.StatusUnprocessableEntity},
		{sandbox.ErrLoopStopped, http.StatusServiceUnavailable},
		{bus.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

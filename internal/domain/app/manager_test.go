package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/capability"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/database"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/settings"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

type env struct {
	host     *sandbox.Host
	packages *registry.Manager
	settings *settings.Store
	manager  *Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := settings.NewStore(db, nil)
	packages := registry.NewManager(db, nil, nil)
	host, err := sandbox.New(sandbox.DefaultConfig(), sandbox.Deps{
		Capabilities: capability.NewFactory(capability.Deps{Settings: store}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })

	return &env{
		host:     host,
		packages: packages,
		settings: store,
		manager:  NewManager(host, packages, store, nil),
	}
}

// stalledHost fails every cleanup
type stalledHost struct {
	Host
	err error
}

func (h stalledHost) Cleanup(_ context.Context, appID string) (sandbox.Report, error) {
	return sandbox.Report{AppID: appID}, h.err
}

func (e *env) install(t *testing.T, m *types.Manifest) {
	t.Helper()
	require.NoError(t, e.packages.Save(context.Background(), m))
}

func counter(id string) *types.Manifest {
	return &types.Manifest{
		ID:      id,
		Name:    "Counter " + id,
		HTML:    `<span id="count">0</span>`,
		Exports: []string{"increment"},
		Settings: []types.SettingDefinition{
			{Key: "step", Value: float64(2)},
		},
		Script: `
var n = 0;
function increment() {
  n += getAppSetting("step", 1);
  getElementById("count").textContent = String(n);
  return n;
}
setInterval(function () {}, 1000);
`,
	}
}

func TestOpenRunsAppWithDefaults(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.install(t, counter("counter"))

	app, res, err := e.manager.Open(ctx, "counter")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, "window-counter", app.WindowID)
	assert.Equal(t, []string{"increment"}, app.Exposed)
	assert.Equal(t, types.StateActive, app.State)

	v, err := e.host.Invoke(ctx, "counter", "increment")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	_, _, err = e.manager.Open(ctx, "counter")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	_, _, err = e.manager.Open(ctx, "missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCloseReleasesEverything(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.install(t, counter("counter"))

	_, _, err := e.manager.Open(ctx, "counter")
	require.NoError(t, err)

	report, ok, err := e.manager.Close(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, report.TimersCleared)

	_, running := e.host.Instance("counter")
	assert.False(t, running)
	_, err = e.host.RenderWindow(ctx, "counter")
	assert.ErrorIs(t, err, sandbox.ErrTargetNotFound)

	report, ok, err = e.manager.Close(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, report.Empty())

	_, _, err = e.manager.Open(ctx, "counter")
	require.NoError(t, err, "reopening after close")
}

func TestFailedCloseKeepsTheApp(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.install(t, counter("counter"))
	stalled := errors.New("loop stalled")
	manager := NewManager(stalledHost{Host: e.host, err: stalled}, e.packages, e.settings, nil)

	_, _, err := manager.Open(ctx, "counter")
	require.NoError(t, err)

	_, ok, err := manager.Close(ctx, "counter")
	assert.ErrorIs(t, err, stalled)
	assert.True(t, ok)

	app, listed := manager.Get("counter")
	require.True(t, listed)
	assert.Equal(t, types.StateActive, app.State)
	_, err = e.host.RenderWindow(ctx, "counter")
	assert.NoError(t, err, "window is kept for a retry")

	_, _, err = manager.Open(ctx, "counter")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestFocusAndStats(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.install(t, counter("one"))
	e.install(t, counter("two"))

	_, _, err := e.manager.Open(ctx, "one")
	require.NoError(t, err)
	_, _, err = e.manager.Open(ctx, "two")
	require.NoError(t, err)

	one, _ := e.manager.Get("one")
	assert.Equal(t, types.StateBackground, one.State)

	stats := e.manager.Stats()
	assert.Equal(t, 2, stats.TotalApps)
	assert.Equal(t, 1, stats.ActiveApps)
	assert.Equal(t, 1, stats.BackgroundApps)
	require.NotNil(t, stats.FocusedAppID)
	assert.Equal(t, "two", *stats.FocusedAppID)

	require.True(t, e.manager.Focus("one"))
	two, _ := e.manager.Get("two")
	assert.Equal(t, types.StateBackground, two.State)
	assert.False(t, e.manager.Focus("nope"))

	_, _, err = e.manager.Close(ctx, "one")
	require.NoError(t, err)
	stats = e.manager.Stats()
	require.NotNil(t, stats.FocusedAppID)
	assert.Equal(t, "two", *stats.FocusedAppID)

	list := e.manager.List(nil)
	require.Len(t, list, 1)
	assert.Equal(t, types.StateActive, list[0].State)
}

func TestWindowStateIsRestored(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.install(t, counter("counter"))

	_, _, err := e.manager.Open(ctx, "counter")
	require.NoError(t, err)
	require.NoError(t, e.manager.UpdateWindow(ctx, "counter",
		&types.WindowPosition{X: 5, Y: 6}, &types.WindowSize{Width: 300, Height: 200}, false))
	_, _, err = e.manager.Close(ctx, "counter")
	require.NoError(t, err)

	app, _, err := e.manager.Open(ctx, "counter")
	require.NoError(t, err)
	require.NotNil(t, app.WindowPos)
	assert.Equal(t, 5, app.WindowPos.X)
	assert.Equal(t, 300, app.WindowSize.Width)

	assert.ErrorIs(t, e.manager.UpdateWindow(ctx, "nope", nil, nil, false), ErrNotRunning)
}

func TestScriptErrorDoesNotFailOpen(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.install(t, &types.Manifest{ID: "broken", Name: "Broken", Script: `throw new Error("boom")`})

	app, res, err := e.manager.Open(ctx, "broken")
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "boom")
	assert.Equal(t, "broken", app.ID)
}

func TestUnloadClosesAll(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.install(t, counter("one"))
	e.install(t, counter("two"))
	for _, id := range []string{"one", "two"} {
		_, _, err := e.manager.Open(ctx, id)
		require.NoError(t, err)
	}

	reports, err := e.manager.Unload(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.Empty(t, e.manager.List(nil))
	assert.Empty(t, e.host.List())
}

func TestAppIDFromWindow(t *testing.T) {
	tests := map[string]string{
		"window-notes":   "notes",
		"settings-notes": "notes",
		"notes":          "notes",
	}
	for in, want := range tests {
		assert.Equal(t, want, AppIDFromWindow(in), in)
	}
}

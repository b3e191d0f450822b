package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

// ErrAlreadyRunning is returned when an app id is opened twice
var ErrAlreadyRunning = sandbox.ErrAlreadyRunning

// ErrNotRunning is returned for operations on apps that are not open
var ErrNotRunning = sandbox.ErrAppNotRunning

// Window id prefixes the shell uses for app windows and their settings panels
const (
	windowPrefix   = "window-"
	settingsPrefix = "settings-"
)

// Host is the sandbox the manager runs apps in
type Host interface {
	Execute(ctx context.Context, appID, script string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error)
	Cleanup(ctx context.Context, appID string) (sandbox.Report, error)
	MountWindow(ctx context.Context, appID, markup string) (string, error)
	UnmountWindow(ctx context.Context, windowID string) error
}

// Packages resolves app packages
type Packages interface {
	Get(ctx context.Context, id string) (*types.Manifest, error)
}

// Settings stores setting defaults and window geometry
type Settings interface {
	RegisterDefaults(appID string, defaults map[string]interface{})
	SaveWindowState(ctx context.Context, state types.WindowState) error
	WindowState(ctx context.Context, appID string) (types.WindowState, error)
}

// Manager orchestrates app lifecycle
type Manager struct {
	host     Host
	packages Packages
	settings Settings
	logger   *zap.Logger

	mu        sync.RWMutex
	apps      map[string]*types.App // Protected by mu
	opening   map[string]bool       // Protected by mu
	focusedID *string               // Protected by mu
}

// NewManager creates a new app manager. settings may be nil.
func NewManager(host Host, packages Packages, settings Settings, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		host:     host,
		packages: packages,
		settings: settings,
		logger:   logger,
		apps:     make(map[string]*types.App),
		opening:  make(map[string]bool),
	}
}

// Open starts the package with the given id and focuses it. A script error
// does not fail Open; it is reported in the returned result.
func (m *Manager) Open(ctx context.Context, packageID string) (*types.App, *sandbox.ExecResult, error) {
	m.mu.Lock()
	if _, ok := m.apps[packageID]; ok || m.opening[packageID] {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, packageID)
	}
	m.opening[packageID] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.opening, packageID)
		m.mu.Unlock()
	}()

	pkg, err := m.packages.Get(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}
	if m.settings != nil {
		m.settings.RegisterDefaults(pkg.ID, pkg.Defaults())
	}

	windowID, err := m.mount(ctx, pkg)
	if err != nil {
		return nil, nil, fmt.Errorf("mount window: %w", err)
	}

	res, err := m.host.Execute(ctx, pkg.ID, pkg.Script, sandbox.ExecOptions{
		WindowID: windowID,
		Exports:  pkg.Exports,
	})
	if err != nil {
		if uerr := m.host.UnmountWindow(ctx, windowID); uerr != nil {
			m.logger.Warn("failed to unmount window", zap.String("window_id", windowID), zap.Error(uerr))
		}
		return nil, nil, err
	}

	app := &types.App{
		ID:        pkg.ID,
		Name:      pkg.Name,
		Icon:      pkg.Icon,
		State:     types.StateActive,
		WindowID:  windowID,
		CreatedAt: time.Now(),
		Exposed:   res.Exposed,
	}
	m.restoreWindow(ctx, app)

	m.mu.Lock()
	m.unfocusLocked()
	m.apps[app.ID] = app
	m.focusedID = &app.ID
	appCopy := *app
	m.mu.Unlock()

	fields := []zap.Field{zap.String("app_id", app.ID), zap.Strings("exposed", res.Exposed)}
	if res.Err != nil {
		m.logger.Warn("app opened with a script error", append(fields, zap.Error(res.Err))...)
	} else {
		m.logger.Info("app opened", fields...)
	}
	return &appCopy, res, nil
}

// mount creates the app window, replacing a stale one left by an app that
// was not closed through the manager
func (m *Manager) mount(ctx context.Context, pkg *types.Manifest) (string, error) {
	windowID, err := m.host.MountWindow(ctx, pkg.ID, pkg.HTML)
	if errors.Is(err, sandbox.ErrWindowExists) {
		if err := m.host.UnmountWindow(ctx, windowPrefix+pkg.ID); err != nil {
			return "", err
		}
		windowID, err = m.host.MountWindow(ctx, pkg.ID, pkg.HTML)
	}
	return windowID, err
}

func (m *Manager) restoreWindow(ctx context.Context, app *types.App) {
	if m.settings == nil {
		return
	}
	st, err := m.settings.WindowState(ctx, app.ID)
	if err != nil {
		return
	}
	pos, size := st.Position, st.Size
	app.WindowPos = &pos
	app.WindowSize = &size
}

// unfocusLocked moves the focused app to the background (must hold lock)
func (m *Manager) unfocusLocked() {
	if m.focusedID == nil {
		return
	}
	if current, ok := m.apps[*m.focusedID]; ok && current.State == types.StateActive {
		current.State = types.StateBackground
	}
}

// Close cleans up an app and removes its window. Closing an app that is
// not open returns a zero report and false. When cleanup fails the app stays
// listed so the close can be retried.
func (m *Manager) Close(ctx context.Context, id string) (sandbox.Report, bool, error) {
	m.mu.RLock()
	app, ok := m.apps[id]
	m.mu.RUnlock()
	if !ok {
		return sandbox.Report{AppID: id}, false, nil
	}

	report, err := m.host.Cleanup(ctx, id)
	if err != nil {
		return report, true, err
	}

	m.mu.Lock()
	if current, ok := m.apps[id]; ok && current == app {
		delete(m.apps, id)
		app.State = types.StateDestroyed
		m.refocusLocked(id)
	}
	m.mu.Unlock()

	if uerr := m.host.UnmountWindow(ctx, app.WindowID); uerr != nil {
		m.logger.Warn("failed to unmount window", zap.String("window_id", app.WindowID), zap.Error(uerr))
	}

	m.logger.Info("app closed",
		zap.String("app_id", id),
		zap.Int("timers", report.TimersCleared),
		zap.Int("listeners", report.ListenersCleared),
		zap.Int("shortcuts", report.ShortcutsCleared),
		zap.Int("globals_restored", report.GlobalsRestored))
	return report, true, nil
}

// refocusLocked picks a new focused app after id went away (must hold lock)
func (m *Manager) refocusLocked(id string) {
	if m.focusedID == nil || *m.focusedID != id {
		return
	}
	m.focusedID = nil

	var next *types.App
	for _, app := range m.apps {
		if next == nil || app.CreatedAt.After(next.CreatedAt) {
			next = app
		}
	}
	if next != nil {
		next.State = types.StateActive
		m.focusedID = &next.ID
	}
}

// Unload closes every open app, as on page unload
func (m *Manager) Unload(ctx context.Context) ([]sandbox.Report, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.apps))
	for id := range m.apps {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	reports := make([]sandbox.Report, 0, len(ids))
	var errs []error
	for _, id := range ids {
		report, ok, err := m.Close(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		if ok {
			reports = append(reports, report)
		}
	}
	return reports, errors.Join(errs...)
}

// Get retrieves an app by ID
func (m *Manager) Get(id string) (*types.App, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, false
	}

	// Return a copy to prevent external modifications
	appCopy := *app
	return &appCopy, true
}

// List returns open apps oldest first, optionally filtered by state
func (m *Manager) List(state *types.State) []*types.App {
	m.mu.RLock()
	apps := make([]*types.App, 0, len(m.apps))
	for _, app := range m.apps {
		if state == nil || app.State == *state {
			appCopy := *app
			apps = append(apps, &appCopy)
		}
	}
	m.mu.RUnlock()

	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID < apps[j].ID
		}
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})
	return apps
}

// Focus brings an app to foreground
func (m *Manager) Focus(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return false
	}

	if m.focusedID != nil && *m.focusedID != id {
		m.unfocusLocked()
	}

	app.State = types.StateActive
	m.focusedID = &app.ID
	return true
}

// Stats returns manager statistics
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total, active, background int
	for _, app := range m.apps {
		total++
		switch app.State {
		case types.StateActive:
			active++
		case types.StateBackground:
			background++
		}
	}

	var focusedID *string
	if m.focusedID != nil {
		id := *m.focusedID
		focusedID = &id
	}

	return types.Stats{
		TotalApps:      total,
		ActiveApps:     active,
		BackgroundApps: background,
		FocusedAppID:   focusedID,
	}
}

// UpdateWindow records window geometry and persists it for the next open
func (m *Manager) UpdateWindow(ctx context.Context, id string, pos *types.WindowPosition, size *types.WindowSize, maximized bool) error {
	m.mu.Lock()
	app, ok := m.apps[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	if pos != nil {
		p := *pos
		app.WindowPos = &p
	}
	if size != nil {
		s := *size
		app.WindowSize = &s
	}
	state := types.WindowState{AppID: id, Maximized: maximized}
	if app.WindowPos != nil {
		state.Position = *app.WindowPos
	}
	if app.WindowSize != nil {
		state.Size = *app.WindowSize
	}
	m.mu.Unlock()

	if m.settings == nil {
		return nil
	}
	return m.settings.SaveWindowState(ctx, state)
}

// AppIDFromWindow derives an app id from a window element id
// ("window-notes" and "settings-notes" both give "notes")
func AppIDFromWindow(windowID string) string {
	id := strings.TrimPrefix(windowID, settingsPrefix)
	return strings.TrimPrefix(id, windowPrefix)
}

package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/capability"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/env"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/keyboard"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/tracker"
)

// Host owns the shared realm: one goja runtime on one event loop, the
// desktop document, and every running app instance. All JS and DOM work
// happens on the loop goroutine; exported methods may be called from any
// goroutine and wait for the loop.
type Host struct {
	cfg      Config
	logger   *zap.Logger
	metrics  Metrics
	caps     CapabilityFactory
	reporter ErrorReporter

	loop      *eventloop.EventLoop
	vm        *goja.Runtime
	doc       *dom.Document
	sanitizer *dom.Sanitizer
	base      *env.Base
	keys      *keyboard.Registry
	trackers  *tracker.Registry

	// Loop-confined realm state
	functionCtor goja.Value
	ambient      ambientSnapshot
	guarding     int

	mu        sync.RWMutex
	instances map[string]*Instance

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a host with its own event loop
func New(cfg Config, deps Deps) (*Host, error) {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	caps := deps.Capabilities
	if caps == nil {
		caps = capability.NewFactory(capability.Deps{Logger: logger})
	}

	doc, err := dom.New(cfg.Markup)
	if err != nil {
		return nil, err
	}

	h := &Host{
		cfg:       cfg,
		logger:    logger.Named("sandbox"),
		metrics:   metrics,
		caps:      caps,
		reporter:  deps.Reporter,
		loop:      eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		doc:       doc,
		sanitizer: dom.NewSanitizer(),
		keys:      keyboard.NewRegistry(),
		trackers:  tracker.NewRegistry(),
		instances: make(map[string]*Instance),
		done:      make(chan struct{}),
	}
	h.base = env.NewBase(env.PosterFunc(h.post), h.logger)

	h.loop.Start()
	if err := h.runSync(context.Background(), func(vm *goja.Runtime) error {
		h.vm = vm
		return h.setupRealm()
	}); err != nil {
		h.loop.Stop()
		return nil, fmt.Errorf("initialize realm: %w", err)
	}

	h.logger.Info("sandbox host started",
		zap.Duration("exec_timeout", cfg.ExecTimeout),
		zap.Duration("callback_timeout", cfg.CallbackTimeout))
	return h, nil
}

// post schedules fn on the loop without waiting
func (h *Host) post(fn func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	return h.loop.RunOnLoop(func(*goja.Runtime) { fn() })
}

// runSync runs fn on the loop and waits for it. It must never be called
// from the loop goroutine.
func (h *Host) runSync(ctx context.Context, fn func(*goja.Runtime) error) error {
	select {
	case <-h.done:
		return ErrLoopStopped
	default:
	}

	errCh := make(chan error, 1)
	if !h.loop.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return ErrLoopStopped
	}

	timer := time.NewTimer(h.cfg.SyncTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrLoopStopped
	case <-timer.C:
		return fmt.Errorf("loop operation timed out after %v", h.cfg.SyncTimeout)
	}
}

// guard runs fn with an execution deadline enforced by vm.Interrupt. A
// nested call runs under the outermost deadline.
func (h *Host) guard(limit time.Duration, fn func() (goja.Value, error)) (goja.Value, error) {
	if h.guarding > 0 {
		return fn()
	}
	h.guarding++
	defer func() { h.guarding-- }()

	var mu sync.Mutex
	finished := false
	t := time.AfterFunc(limit, func() {
		mu.Lock()
		defer mu.Unlock()
		if !finished {
			h.vm.Interrupt(ErrTimeout)
		}
	})

	v, err := fn()

	mu.Lock()
	finished = true
	mu.Unlock()
	t.Stop()
	h.vm.ClearInterrupt()
	return v, err
}

// Do runs fn on the loop with the document, for shell code that needs a
// consistent view of the desktop
func (h *Host) Do(ctx context.Context, fn func(doc *dom.Document) error) error {
	return h.runSync(ctx, func(*goja.Runtime) error { return fn(h.doc) })
}

// Instance returns a snapshot of a running instance
func (h *Host) Instance(appID string) (Info, bool) {
	h.mu.RLock()
	inst, ok := h.instances[appID]
	h.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return inst.info(), true
}

// List returns every running instance sorted by app ID
func (h *Host) List() []Info {
	h.mu.RLock()
	out := make([]Info, 0, len(h.instances))
	for _, inst := range h.instances {
		out = append(out, inst.info())
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out
}

// Console returns the captured console output of an app
func (h *Host) Console(appID string) ([]LogEntry, error) {
	inst, ok := h.lookup(appID)
	if !ok {
		return nil, ErrAppNotRunning
	}
	return inst.consoleEntries(), nil
}

// Shortcuts lists registered keyboard shortcuts
func (h *Host) Shortcuts() []keyboard.Binding {
	return h.keys.List()
}

// PendingTimers returns the number of live timers across all apps
func (h *Host) PendingTimers() int {
	return h.base.Pending()
}

func (h *Host) lookup(appID string) (*Instance, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	inst, ok := h.instances[appID]
	return inst, ok
}

// Close cleans up every app and stops the loop. It is safe to call more
// than once.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SyncTimeout)
		defer cancel()

		_, err = h.Shutdown(ctx)
		h.base.Stop()
		close(h.done)
		h.loop.Stop()
		h.logger.Info("sandbox host stopped")
	})
	return err
}

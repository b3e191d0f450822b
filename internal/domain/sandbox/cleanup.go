package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Cleanup tears an app down and returns what was released. Cleaning an
// app that is not running returns a zero report.
func (h *Host) Cleanup(ctx context.Context, appID string) (Report, error) {
	var rep Report
	err := h.runSync(ctx, func(*goja.Runtime) error {
		rep = h.cleanup(appID)
		return nil
	})
	return rep, err
}

// Shutdown cleans up every running app, for page unload and process exit
func (h *Host) Shutdown(ctx context.Context) ([]Report, error) {
	var reports []Report
	err := h.runSync(ctx, func(*goja.Runtime) error {
		for _, info := range h.List() {
			reports = append(reports, h.cleanup(info.AppID))
		}
		return nil
	})
	if len(reports) > 0 {
		h.logger.Info("all apps cleaned up", zap.Int("apps", len(reports)))
	}
	return reports, err
}

func (h *Host) cleanup(appID string) Report {
	rep := Report{AppID: appID}
	inst, ok := h.lookup(appID)
	entry, tracked := h.trackers.Get(appID)
	if !ok && !tracked {
		return rep
	}

	if ok {
		inst.setState(StateTearingDown)
		h.closeBundle(inst)
	}

	if tracked {
		for _, t := range entry.DrainTimers() {
			if h.base.Clear(t.Handle) {
				rep.TimersCleared++
			}
		}
		for _, l := range entry.DrainListeners() {
			if err := safely(func() { h.base.RemoveEventListener(l.Target, l.Type, l.Key, l.Options) }); err != nil {
				h.logger.Warn("listener detach failed",
					zap.String("app_id", appID), zap.String("type", l.Type), zap.Error(err))
				continue
			}
			rep.ListenersCleared++
		}
		for _, combo := range entry.DrainShortcuts() {
			if h.keys.Unregister(appID, combo) {
				rep.ShortcutsCleared++
			}
		}
	}
	rep.ShortcutsCleared += h.keys.UnregisterApp(appID)

	rep.GlobalsRestored = h.ambient.restore()
	if rep.GlobalsRestored > 0 {
		h.logger.Warn("repaired tampered realm entry points",
			zap.String("app_id", appID), zap.Int("count", rep.GlobalsRestored))
	}

	h.trackers.Delete(appID)
	if ok {
		h.mu.Lock()
		delete(h.instances, appID)
		h.mu.Unlock()

		inst.setState(StateDestroyed)
		inst.binder.release()
		h.metrics.AppClosed()
	}

	h.metrics.ResourcesCleared("timer", rep.TimersCleared)
	h.metrics.ResourcesCleared("listener", rep.ListenersCleared)
	h.metrics.ResourcesCleared("shortcut", rep.ShortcutsCleared)
	h.metrics.GlobalsRestored(rep.GlobalsRestored)

	h.logger.Info("app cleaned up",
		zap.String("app_id", appID),
		zap.Int("timers", rep.TimersCleared),
		zap.Int("listeners", rep.ListenersCleared),
		zap.Int("shortcuts", rep.ShortcutsCleared))
	return rep
}

// closeBundle releases capability resources; failures are logged only
func (h *Host) closeBundle(inst *Instance) {
	var err error
	if perr := safely(func() { err = inst.bundle.Cleanup() }); perr != nil {
		err = perr
	}
	if err != nil {
		inst.logger.Warn("capability cleanup failed", zap.Error(err))
	}
}

// safely runs fn and turns a panic into an error
func safely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = errors.New(fmt.Sprint(r))
		}
	}()
	fn()
	return nil
}

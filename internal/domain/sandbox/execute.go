package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/capability"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/keyboard"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

// exportsHook is the wrapper parameter through which the app scope hands
// back its export resolver
const exportsHook = "$__exports"

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var reserved = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true, "do": true,
	"else": true, "enum": true, "export": true, "extends": true, "false": true,
	"finally": true, "for": true, "function": true, "if": true, "implements": true,
	"import": true, "in": true, "instanceof": true, "interface": true, "let": true,
	"new": true, "null": true, "package": true, "private": true, "protected": true,
	"public": true, "return": true, "static": true, "super": true, "switch": true,
	"this": true, "throw": true, "true": true, "try": true, "typeof": true,
	"var": true, "void": true, "while": true, "with": true, "yield": true,
	"await": true, "arguments": true, "eval": true,
}

// Execute builds a scope for appID and evaluates script in it. A script
// error is contained: it is reported through ExecResult.Err and the
// instance stays registered. The returned error is reserved for host
// failures and ErrAlreadyRunning.
func (h *Host) Execute(ctx context.Context, appID, script string, opts ExecOptions) (*ExecResult, error) {
	if appID == "" {
		return nil, errors.New("app id is required")
	}
	var res *ExecResult
	err := h.runSync(ctx, func(*goja.Runtime) error {
		var err error
		res, err = h.execute(appID, script, opts)
		return err
	})
	return res, err
}

func (h *Host) execute(appID, script string, opts ExecOptions) (*ExecResult, error) {
	if _, ok := h.lookup(appID); ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, appID)
	}

	start := time.Now()
	inst := h.construct(appID, opts.WindowID)
	res := &ExecResult{AppID: appID}

	names, values := inst.binder.locals()
	exports := h.validExports(inst, opts.Exports, names)

	if err := h.evaluate(inst, script, names, values, exports); err != nil {
		res.Err = h.contain(inst, "evaluate", err)
	}
	h.resolveExports(inst, exports)

	inst.setState(StateRunning)
	h.mu.Lock()
	h.instances[appID] = inst
	h.mu.Unlock()
	h.metrics.AppOpened()

	res.Exposed = inst.exposedNames()
	res.Duration = time.Since(start)
	inst.logger.Info("app started",
		zap.Strings("exposed", res.Exposed),
		zap.Bool("headless", inst.container == nil),
		zap.Duration("duration", res.Duration),
		zap.Bool("contained_error", res.Err != nil))
	return res, nil
}

// construct creates the instance, its tracker entry, environment and
// capability bundle
func (h *Host) construct(appID, windowID string) *Instance {
	inst := &Instance{
		AppID:     appID,
		WindowID:  windowID,
		logger:    h.logger.With(zap.String("app_id", appID)),
		createdAt: time.Now(),
		maxLog:    h.cfg.ConsoleLimit,
		exposed:   make(map[string]goja.Callable),
		state:     StateConstructing,
	}

	if windowID != "" {
		if w := h.doc.GetElementByID(windowID); w != nil {
			inst.window = w
			inst.container = w.Query(".window-content")
			if inst.container == nil {
				inst.container = w
			}
		} else {
			inst.logger.Warn("window not found, running headless", zap.String("window_id", windowID))
		}
	}

	inst.entry = h.trackers.Create(appID)
	inst.env = newTrackedEnv(h.base, inst.entry, func() *dom.Element { return inst.container })
	inst.bundle = h.caps.New(appID)
	inst.binder = newBinder(h, inst, inst.env)
	return inst
}

// locals returns the names bound in the app scope and their values, in
// wrapper parameter order
func (b *binder) locals() ([]string, []goja.Value) {
	vm := b.vm()
	acc := b.accessors()
	document := b.buildDocument(acc)
	window := b.buildWindow(document)
	caps := b.capabilityLocals()
	console := b.console()
	_ = window.Set("console", console)
	_ = window.Set("appId", b.inst.AppID)

	bound := []struct {
		name  string
		value goja.Value
	}{
		{"appId", vm.ToValue(b.inst.AppID)},
		{"window", window},
		{"self", window},
		{"globalThis", window},
		{"document", document},
		{"console", console},
		{"setTimeout", window.Get("setTimeout")},
		{"setInterval", window.Get("setInterval")},
		{"clearTimeout", window.Get("clearTimeout")},
		{"clearInterval", window.Get("clearInterval")},
		{"setImmediate", b.immediateFn()},
		{"addEventListener", window.Get("addEventListener")},
		{"removeEventListener", window.Get("removeEventListener")},
		{"registerShortcut", b.fn(b.registerShortcut)},
		{"unregisterShortcut", b.fn(b.unregisterShortcut)},
		{"expose", b.fn(b.exposeCall)},
		{"api", b.apiObject(caps)},
	}

	names := make([]string, 0, len(bound)+len(acc)+len(caps)+1)
	values := make([]goja.Value, 0, cap(names))
	for _, p := range bound {
		names = append(names, p.name)
		values = append(values, p.value)
	}
	for _, name := range accessorNames {
		names = append(names, name)
		values = append(values, acc[name])
	}
	for _, name := range []string{"getAppSetting", "getAllAppSettings", "setAppSetting", "showNotification", "storage", "localStorage"} {
		names = append(names, name)
		values = append(values, caps[name])
	}
	names = append(names, exportsHook)
	values = append(values, b.fn(func(call goja.FunctionCall) goja.Value {
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			b.inst.resolver = fn
		}
		return goja.Undefined()
	}))
	return names, values
}

func (b *binder) immediateFn() goja.Value {
	return b.fn(func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			b.throwType("setImmediate callback must be a function")
		}
		extra := append([]goja.Value(nil), call.Arguments[1:]...)
		h := b.env.SetTimeout(func() { b.call("timer", fn, goja.Undefined(), extra...) }, 0)
		return b.vm().ToValue(int64(h))
	})
}

// exposeCall implements expose(name, fn) and expose({name: fn})
func (b *binder) exposeCall(call goja.FunctionCall) goja.Value {
	first := call.Argument(0)
	if name, ok := first.Export().(string); ok {
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok || name == "" {
			b.throwType("expose(name, fn) needs a name and a function")
		}
		b.inst.expose(name, fn)
		return goja.Undefined()
	}

	obj, ok := first.(*goja.Object)
	if !ok {
		b.throwType("expose expects a name and function or an object of functions")
	}
	for _, k := range obj.Keys() {
		if fn, ok := goja.AssertFunction(obj.Get(k)); ok {
			b.inst.expose(k, fn)
		}
	}
	return goja.Undefined()
}

func (b *binder) registerShortcut(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		b.throwType("registerShortcut handler must be a function")
	}
	handler := func(ev *dom.Event) {
		b.call("shortcut", fn, goja.Undefined(), b.event(ev))
	}
	combo, err := b.h.keys.Register(b.inst.AppID, call.Argument(0).String(), handler)
	if err != nil {
		b.throwType("%v", err)
	}
	b.inst.entry.AddShortcut(combo, handler)
	return b.vm().ToValue(combo)
}

func (b *binder) unregisterShortcut(call goja.FunctionCall) goja.Value {
	combo := call.Argument(0).String()
	removed := b.h.keys.Unregister(b.inst.AppID, combo)
	if norm, err := keyboard.Normalize(combo); err == nil {
		b.inst.entry.RemoveShortcut(norm)
	}
	return b.vm().ToValue(removed)
}

// validExports keeps manifest export names that can be resolved safely
func (h *Host) validExports(inst *Instance, exports []string, locals []string) []string {
	bound := make(map[string]bool, len(locals))
	for _, n := range locals {
		bound[n] = true
	}
	out := make([]string, 0, len(exports))
	seen := make(map[string]bool)
	for _, name := range exports {
		switch {
		case seen[name]:
		case !identifier.MatchString(name) || reserved[name] || bound[name]:
			inst.logger.Debug("export name skipped", zap.String("name", name))
		default:
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// exportPrelude hands the app scope's resolver for exports back to the host
// before the script body runs. Each lookup is guarded because a binding may
// still be uninitialised if the script threw early.
func exportPrelude(exports []string) string {
	if len(exports) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(exportsHook + "(function (name) { switch (name) {")
	for _, n := range exports {
		fmt.Fprintf(&sb, ` case %q: try { return typeof %s === "function" ? %s : undefined; } catch (e) { return undefined; }`, n, n, n)
	}
	sb.WriteString(" } });")
	return sb.String()
}

// evaluate compiles the script as the body of a strict function whose
// parameters are the app locals, then calls it with the app window as this
func (h *Host) evaluate(inst *Instance, script string, names []string, values []goja.Value, exports []string) error {
	vm := h.vm
	args := make([]goja.Value, 0, len(names)+1)
	for _, n := range names {
		args = append(args, vm.ToValue(n))
	}
	args = append(args, vm.ToValue(`"use strict"; `+exportPrelude(exports)+"\n"+script))

	wrapper, err := vm.New(h.functionCtor, args...)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return errors.New("app wrapper is not callable")
	}

	_, err = h.guard(h.cfg.ExecTimeout, func() (goja.Value, error) {
		return fn(inst.binder.window, values...)
	})
	return err
}

func (h *Host) resolveExports(inst *Instance, exports []string) {
	if inst.resolver == nil {
		return
	}
	for _, name := range exports {
		if _, ok := inst.exposed[name]; ok {
			continue
		}
		v, err := inst.resolver(goja.Undefined(), h.vm.ToValue(name))
		if err != nil {
			continue
		}
		if fn, ok := goja.AssertFunction(v); ok {
			inst.expose(name, fn)
		}
	}
}

// callApp runs app code with the callback deadline and contains failures
func (h *Host) callApp(inst *Instance, phase string, fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, error) {
	if !inst.alive() {
		return goja.Undefined(), ErrAppNotRunning
	}
	v, err := h.guard(h.cfg.CallbackTimeout, func() (goja.Value, error) {
		return fn(this, args...)
	})
	if err != nil {
		return goja.Undefined(), h.contain(inst, phase, err)
	}
	return v, nil
}

// contain records a script failure without tearing the app down
func (h *Host) contain(inst *Instance, phase string, err error) *ScriptError {
	se := newScriptError(inst.AppID, phase, err)
	inst.recordError(se)
	inst.log("error", se.Message)
	inst.logger.Warn("contained script error", zap.String("phase", phase), zap.String("error", se.Message))
	h.metrics.ContainedError(phase)

	if _, nerr := inst.bundle.ShowNotification(notifyTitle(inst.AppID), se.Message, types.LevelWarning); nerr != nil &&
		!errors.Is(nerr, capability.ErrUnavailable) {
		inst.logger.Warn("error notification failed", zap.Error(nerr))
	}
	if h.reporter != nil {
		h.reporter(inst.AppID, se)
	}
	inst.recover()
	return se
}

// Invoke calls an exposed function of a running app and exports its result
func (h *Host) Invoke(ctx context.Context, appID, name string, args ...interface{}) (interface{}, error) {
	var out interface{}
	err := h.runSync(ctx, func(vm *goja.Runtime) error {
		inst, ok := h.lookup(appID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAppNotRunning, appID)
		}
		v, err := h.invoke(inst, "invoke", name, goja.Undefined(), args...)
		if err != nil {
			return err
		}
		out = exportResult(v)
		return nil
	})
	return out, err
}

func (h *Host) invoke(inst *Instance, phase, name string, this goja.Value, args ...interface{}) (goja.Value, error) {
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = h.vm.ToValue(a)
	}
	return h.invokeValues(inst, phase, name, this, vals...)
}

func (h *Host) invokeValues(inst *Instance, phase, name string, this goja.Value, args ...goja.Value) (goja.Value, error) {
	inst.mu.RLock()
	fn, ok := inst.exposed[name]
	inst.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotExposed, inst.AppID, name)
	}
	return h.callApp(inst, phase, fn, this, args...)
}

func exportResult(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if p, ok := v.Export().(*goja.Promise); ok {
		if p.State() == goja.PromiseStateFulfilled {
			return exportResult(p.Result())
		}
		return nil
	}
	return v.Export()
}

package sandbox

import (
	"time"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/env"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/tracker"
)

// trackedEnv is the Environment handed to one app. It delegates to the
// shared base and records every timer and every listener on a global
// target in the app's tracker entry.
type trackedEnv struct {
	base      env.Environment
	entry     *tracker.Entry
	container func() *dom.Element
}

var _ env.Environment = (*trackedEnv)(nil)

func newTrackedEnv(base env.Environment, entry *tracker.Entry, container func() *dom.Element) *trackedEnv {
	return &trackedEnv{base: base, entry: entry, container: container}
}

// SetTimeout schedules fn once; the record removes itself when it fires
func (t *trackedEnv) SetTimeout(fn func(), delay time.Duration) env.TimerHandle {
	var h env.TimerHandle
	h = t.base.SetTimeout(func() {
		t.entry.RemoveTimer(h)
		fn()
	}, delay)
	t.entry.AddTimer(env.Timeout, h)
	return h
}

func (t *trackedEnv) SetInterval(fn func(), delay time.Duration) env.TimerHandle {
	h := t.base.SetInterval(fn, delay)
	t.entry.AddTimer(env.Interval, h)
	return h
}

// ClearTimeout only reaches timers this app owns
func (t *trackedEnv) ClearTimeout(h env.TimerHandle) {
	if _, ok := t.entry.RemoveTimer(h); ok {
		t.base.ClearTimeout(h)
	}
}

func (t *trackedEnv) ClearInterval(h env.TimerHandle) {
	if _, ok := t.entry.RemoveTimer(h); ok {
		t.base.ClearInterval(h)
	}
}

func (t *trackedEnv) AddEventListener(target dom.Target, typ string, key interface{}, fn dom.Handler, opts dom.Options) bool {
	if target == nil {
		return false
	}
	global := t.isGlobal(target)
	handler := fn
	if global && opts.Once {
		handler = func(ev *dom.Event) {
			t.entry.RemoveListener(target, typ, key, opts.Capture)
			fn(ev)
		}
	}

	added := t.base.AddEventListener(target, typ, key, handler, opts)
	if global {
		t.entry.AddListener(tracker.ListenerRecord{Target: target, Type: typ, Key: key, Options: opts})
	}
	return added
}

func (t *trackedEnv) RemoveEventListener(target dom.Target, typ string, key interface{}, opts dom.Options) bool {
	if target == nil {
		return false
	}
	removed := t.base.RemoveEventListener(target, typ, key, opts)
	t.entry.RemoveListener(target, typ, key, opts.Capture)
	return removed
}

// isGlobal reports whether target lies outside the app's container
func (t *trackedEnv) isGlobal(target dom.Target) bool {
	el, ok := target.(*dom.Element)
	if !ok {
		return true
	}
	c := t.container()
	return c == nil || !c.Contains(el)
}

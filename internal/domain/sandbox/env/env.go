package env

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
)

// TimerKind distinguishes one-shot from repeating timers
type TimerKind string

const (
	Timeout  TimerKind = "timeout"
	Interval TimerKind = "interval"
)

// MinInterval is the shortest repeat period of an interval
const MinInterval = time.Millisecond

// TimerHandle identifies a timer; handles are never reused by a Base
type TimerHandle int64

// Poster schedules work on the goroutine that owns the realm
type Poster interface {
	Post(func()) bool
}

// PosterFunc adapts a function to Poster
type PosterFunc func(func()) bool

// Post implements Poster
func (f PosterFunc) Post(fn func()) bool { return f(fn) }

// Environment is the set of ambient primitives handed to an app.
// Methods must be called on the realm goroutine.
type Environment interface {
	SetTimeout(fn func(), delay time.Duration) TimerHandle
	SetInterval(fn func(), delay time.Duration) TimerHandle
	ClearTimeout(h TimerHandle)
	ClearInterval(h TimerHandle)
	AddEventListener(target dom.Target, typ string, key interface{}, fn dom.Handler, opts dom.Options) bool
	RemoveEventListener(target dom.Target, typ string, key interface{}, opts dom.Options) bool
}

type timer struct {
	kind  TimerKind
	delay time.Duration
	fn    func()
	t     *time.Timer
}

// Base is the real environment shared by every app. Timers run on Go
// timers and fire by posting onto the realm goroutine.
type Base struct {
	poster Poster
	logger *zap.Logger

	mu      sync.Mutex
	next    TimerHandle
	timers  map[TimerHandle]*timer
	stopped bool
}

// NewBase creates the shared environment
func NewBase(poster Poster, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{
		poster: poster,
		logger: logger,
		timers: make(map[TimerHandle]*timer),
	}
}

// SetTimeout implements Environment
func (b *Base) SetTimeout(fn func(), delay time.Duration) TimerHandle {
	return b.schedule(Timeout, fn, delay)
}

// SetInterval implements Environment
func (b *Base) SetInterval(fn func(), delay time.Duration) TimerHandle {
	return b.schedule(Interval, fn, delay)
}

// ClearTimeout implements Environment
func (b *Base) ClearTimeout(h TimerHandle) { b.Clear(h) }

// ClearInterval implements Environment
func (b *Base) ClearInterval(h TimerHandle) { b.Clear(h) }

// Clear cancels a timer of either kind and reports whether it was pending
func (b *Base) Clear(h TimerHandle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	tm, ok := b.timers[h]
	if !ok {
		return false
	}
	tm.t.Stop()
	delete(b.timers, h)
	return true
}

// Pending returns the number of live timers
func (b *Base) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

// AddEventListener implements Environment
func (b *Base) AddEventListener(target dom.Target, typ string, key interface{}, fn dom.Handler, opts dom.Options) bool {
	if target == nil {
		return false
	}
	return target.AddEventListener(typ, key, fn, opts)
}

// RemoveEventListener implements Environment
func (b *Base) RemoveEventListener(target dom.Target, typ string, key interface{}, opts dom.Options) bool {
	if target == nil {
		return false
	}
	return target.RemoveEventListener(typ, key, opts)
}

// Stop cancels every timer; later schedules return handles that never fire
func (b *Base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for h, tm := range b.timers {
		tm.t.Stop()
		delete(b.timers, h)
	}
	b.stopped = true
}

func (b *Base) schedule(kind TimerKind, fn func(), delay time.Duration) TimerHandle {
	if delay < 0 {
		delay = 0
	}
	if kind == Interval && delay < MinInterval {
		delay = MinInterval
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	h := b.next
	if b.stopped || fn == nil {
		return h
	}
	tm := &timer{kind: kind, delay: delay, fn: fn}
	b.timers[h] = tm
	b.arm(h, tm)
	return h
}

// arm must be called with b.mu held
func (b *Base) arm(h TimerHandle, tm *timer) {
	tm.t = time.AfterFunc(tm.delay, func() {
		if !b.poster.Post(func() { b.fire(h) }) {
			b.logger.Debug("timer dropped, realm stopped", zap.Int64("handle", int64(h)))
		}
	})
}

func (b *Base) fire(h TimerHandle) {
	b.mu.Lock()
	tm, ok := b.timers[h]
	if ok && tm.kind == Timeout {
		delete(b.timers, h)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	tm.fn()

	if tm.kind != Interval {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, live := b.timers[h]; live && cur == tm {
		b.arm(h, tm)
	}
}

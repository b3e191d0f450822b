// Package tracker keeps per-app records of the timers, global listeners and
// keyboard shortcuts an app acquired, so they can be released when the app
// closes.
package tracker

import (
	"sort"
	"sync"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/env"
)

// TimerRecord is one live timer
type TimerRecord struct {
	Kind   env.TimerKind
	Handle env.TimerHandle
}

// ListenerRecord is one listener on a global target.
// Identity is (Target, Type, Key, Options.Capture).
type ListenerRecord struct {
	Target  dom.Target
	Type    string
	Key     interface{}
	Options dom.Options
}

func (r ListenerRecord) matches(target dom.Target, typ string, key interface{}, capture bool) bool {
	return r.Target == target && r.Type == typ && r.Key == key && r.Options.Capture == capture
}

// Counts summarises an entry
type Counts struct {
	Timers    int `json:"timers"`
	Listeners int `json:"listeners"`
	Shortcuts int `json:"shortcuts"`
}

// Entry is the tracker state of one app instance
type Entry struct {
	AppID string

	mu        sync.Mutex
	timers    map[env.TimerHandle]TimerRecord
	listeners []ListenerRecord
	shortcuts map[string]dom.Handler
}

func newEntry(appID string) *Entry {
	return &Entry{
		AppID:     appID,
		timers:    make(map[env.TimerHandle]TimerRecord),
		shortcuts: make(map[string]dom.Handler),
	}
}

// AddTimer records a timer; it returns false if the handle is already tracked
func (e *Entry) AddTimer(kind env.TimerKind, h env.TimerHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.timers[h]; ok {
		return false
	}
	e.timers[h] = TimerRecord{Kind: kind, Handle: h}
	return true
}

// RemoveTimer forgets a timer. Handles are unique across kinds, so the
// handle alone identifies the record.
func (e *Entry) RemoveTimer(h env.TimerHandle) (TimerRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.timers[h]
	if ok {
		delete(e.timers, h)
	}
	return rec, ok
}

// HasTimer reports whether h is tracked
func (e *Entry) HasTimer(h env.TimerHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[h]
	return ok
}

// Timers lists tracked timers in creation order
func (e *Entry) Timers() []TimerRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedTimers()
}

// DrainTimers empties the timer set and returns what it held
func (e *Entry) DrainTimers() []TimerRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.sortedTimers()
	e.timers = make(map[env.TimerHandle]TimerRecord)
	return out
}

func (e *Entry) sortedTimers() []TimerRecord {
	out := make([]TimerRecord, 0, len(e.timers))
	for _, rec := range e.timers {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// AddListener records a global listener. Adding the same tuple twice is a no-op.
func (e *Entry) AddListener(rec ListenerRecord) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, l := range e.listeners {
		if l.matches(rec.Target, rec.Type, rec.Key, rec.Options.Capture) {
			return false
		}
	}
	e.listeners = append(e.listeners, rec)
	return true
}

// RemoveListener forgets the exact matching listener
func (e *Entry) RemoveListener(target dom.Target, typ string, key interface{}, capture bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, l := range e.listeners {
		if l.matches(target, typ, key, capture) {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Listeners lists tracked listeners in registration order
func (e *Entry) Listeners() []ListenerRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ListenerRecord(nil), e.listeners...)
}

// DrainListeners empties the listener set and returns what it held
func (e *Entry) DrainListeners() []ListenerRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.listeners
	e.listeners = nil
	return out
}

// AddShortcut records a shortcut, replacing an earlier handler for the combo
func (e *Entry) AddShortcut(combo string, handler dom.Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shortcuts[combo] = handler
}

// RemoveShortcut forgets a shortcut
func (e *Entry) RemoveShortcut(combo string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.shortcuts[combo]
	delete(e.shortcuts, combo)
	return ok
}

// Shortcuts lists tracked combos, sorted
func (e *Entry) Shortcuts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedShortcuts()
}

// DrainShortcuts empties the shortcut map and returns the combos it held
func (e *Entry) DrainShortcuts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.sortedShortcuts()
	e.shortcuts = make(map[string]dom.Handler)
	return out
}

func (e *Entry) sortedShortcuts() []string {
	out := make([]string, 0, len(e.shortcuts))
	for combo := range e.shortcuts {
		out = append(out, combo)
	}
	sort.Strings(out)
	return out
}

// Counts returns the current sizes
func (e *Entry) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Counts{
		Timers:    len(e.timers),
		Listeners: len(e.listeners),
		Shortcuts: len(e.shortcuts),
	}
}

// Registry maps app IDs to tracker entries
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Create installs a fresh entry for appID, replacing any previous one
func (r *Registry) Create(appID string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := newEntry(appID)
	r.entries[appID] = e
	return e
}

// Get returns the entry for appID
func (r *Registry) Get(appID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[appID]
	return e, ok
}

// Delete removes the entry for appID
func (r *Registry) Delete(appID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[appID]
	delete(r.entries, appID)
	return ok
}

// Apps lists tracked app IDs, sorted
func (r *Registry) Apps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

package sandbox

import (
	"sort"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/capability"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/tracker"
)

// Instance is one running app
type Instance struct {
	AppID    string
	WindowID string

	window    *dom.Element
	container *dom.Element
	bundle    *capability.Bundle
	entry     *tracker.Entry
	env       *trackedEnv
	binder    *binder
	logger    *zap.Logger
	createdAt time.Time
	maxLog    int

	resolver goja.Callable // loop-confined

	mu        sync.RWMutex
	exposed   map[string]goja.Callable
	state     State
	console   []LogEntry
	errors    int
	lastError string
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// alive reports whether app code may still run
func (i *Instance) alive() bool {
	switch i.State() {
	case StateConstructing, StateRunning, StateErroring:
		return true
	}
	return false
}

// recordError moves the instance into Erroring
func (i *Instance) recordError(se *ScriptError) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.errors++
	i.lastError = se.Message
	if i.state == StateRunning {
		i.state = StateErroring
	}
}

// recover returns an Erroring instance to Running
func (i *Instance) recover() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == StateErroring {
		i.state = StateRunning
	}
}

func (i *Instance) log(level, message string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.console = append(i.console, LogEntry{Level: level, Message: message, Time: time.Now()})
	if over := len(i.console) - i.maxLog; over > 0 {
		i.console = append(i.console[:0:0], i.console[over:]...)
	}
}

func (i *Instance) consoleEntries() []LogEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]LogEntry(nil), i.console...)
}

func (i *Instance) expose(name string, fn goja.Callable) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.exposed[name] = fn
}

func (i *Instance) exposedNames() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.namesLocked()
}

func (i *Instance) namesLocked() []string {
	out := make([]string, 0, len(i.exposed))
	for name := range i.exposed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (i *Instance) info() Info {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Info{
		AppID:     i.AppID,
		State:     i.state,
		WindowID:  i.WindowID,
		Headless:  i.container == nil,
		Exposed:   i.namesLocked(),
		Resources: i.entry.Counts(),
		Sockets:   i.bundle.Sockets(),
		Errors:    i.errors,
		LastError: i.lastError,
		StartedAt: i.createdAt,
	}
}

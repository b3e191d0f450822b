package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/capability"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/tracker"
)

var (
	ErrLoopStopped    = errors.New("sandbox host stopped")
	ErrAlreadyRunning = errors.New("app already running")
	ErrAppNotRunning  = errors.New("app not running")
	ErrNotExposed     = errors.New("function not exposed")
	ErrTimeout        = errors.New("script execution timed out")
	ErrTargetNotFound = errors.New("event target not found")
	ErrWindowExists   = errors.New("window already mounted")
)

// Config defines sandbox host configuration
type Config struct {
	ExecTimeout     time.Duration // Top-level script evaluation
	CallbackTimeout time.Duration // Each timer, listener or exported call
	SyncTimeout     time.Duration // Waiting for the loop from other goroutines
	MaxCallStack    int
	ConsoleLimit    int    // Entries kept per app
	Markup          string // Initial desktop document
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		ExecTimeout:     5 * time.Second,
		CallbackTimeout: 2 * time.Second,
		SyncTimeout:     30 * time.Second,
		MaxCallStack:    1024,
		ConsoleLimit:    200,
		Markup:          dom.DefaultShell,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = d.ExecTimeout
	}
	if c.CallbackTimeout <= 0 {
		c.CallbackTimeout = d.CallbackTimeout
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = d.SyncTimeout
	}
	if c.MaxCallStack <= 0 {
		c.MaxCallStack = d.MaxCallStack
	}
	if c.ConsoleLimit <= 0 {
		c.ConsoleLimit = d.ConsoleLimit
	}
	if strings.TrimSpace(c.Markup) == "" {
		c.Markup = d.Markup
	}
	return c
}

// CapabilityFactory creates the capability bundle of a new instance
type CapabilityFactory interface {
	New(appID string) *capability.Bundle
}

// ErrorReporter receives every contained script error. It runs on the
// loop goroutine and must not call back into the Host synchronously.
type ErrorReporter func(appID string, err error)

// Metrics receives sandbox lifecycle counters
type Metrics interface {
	AppOpened()
	AppClosed()
	ContainedError(phase string)
	ResourcesCleared(kind string, n int)
	GlobalsRestored(n int)
}

type noopMetrics struct{}

func (noopMetrics) AppOpened()                   {}
func (noopMetrics) AppClosed()                   {}
func (noopMetrics) ContainedError(string)        {}
func (noopMetrics) ResourcesCleared(string, int) {}
func (noopMetrics) GlobalsRestored(int)          {}

// Deps are the collaborators of a Host
type Deps struct {
	Logger       *zap.Logger
	Capabilities CapabilityFactory
	Reporter     ErrorReporter
	Metrics      Metrics
}

// State is the lifecycle state of an instance
type State string

const (
	StateConstructing State = "constructing"
	StateRunning      State = "running"
	StateErroring     State = "erroring"
	StateTearingDown  State = "tearing_down"
	StateDestroyed    State = "destroyed"
)

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ExecOptions configures Execute
type ExecOptions struct {
	WindowID string   // Element id of the app window; empty runs headless
	Exports  []string // Manifest export names resolved after evaluation
}

// ExecResult describes a finished evaluation
type ExecResult struct {
	AppID    string        `json:"app_id"`
	Exposed  []string      `json:"exposed"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"` // Contained script error, if any
}

// Report summarises what cleanup released
type Report struct {
	AppID            string `json:"app_id"`
	TimersCleared    int    `json:"timers_cleared"`
	ListenersCleared int    `json:"listeners_cleared"`
	ShortcutsCleared int    `json:"shortcuts_cleared"`
	GlobalsRestored  int    `json:"globals_restored"`
}

// Empty reports whether nothing was released
func (r Report) Empty() bool {
	return r.TimersCleared == 0 && r.ListenersCleared == 0 && r.ShortcutsCleared == 0 && r.GlobalsRestored == 0
}

// Info is a read-only view of a running instance
type Info struct {
	AppID     string         `json:"app_id"`
	State     State          `json:"state"`
	WindowID  string         `json:"window_id,omitempty"`
	Headless  bool           `json:"headless"`
	Exposed   []string       `json:"exposed"`
	Resources tracker.Counts `json:"resources"`
	Sockets   int            `json:"sockets"`
	Errors    int            `json:"errors"`
	LastError string         `json:"last_error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}

// EventRequest describes an event injected by the shell
type EventRequest struct {
	Target string        `json:"target"` // "document", "window" or an element id
	Type   string        `json:"type"`
	Init   dom.EventInit `json:"init"`
}

// ScriptError is a contained failure of app code
type ScriptError struct {
	AppID   string
	Phase   string
	Message string
	Stack   string
	Err     error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.AppID, e.Phase, e.Message)
}

func (e *ScriptError) Unwrap() error { return e.Err }

func newScriptError(appID, phase string, err error) *ScriptError {
	se := &ScriptError{AppID: appID, Phase: phase, Message: err.Error(), Err: err}

	var ex *goja.Exception
	var interrupted *goja.InterruptedError
	switch {
	case errors.As(err, &interrupted):
		se.Message = ErrTimeout.Error()
	case errors.As(err, &ex):
		if v := ex.Value(); v != nil {
			se.Message = v.String()
		}
		se.Stack = ex.String()
	}
	return se
}

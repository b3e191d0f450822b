package dom

// Phase is the dispatch phase an event is currently in
type Phase int

const (
	PhaseNone Phase = iota
	PhaseCapturing
	PhaseAtTarget
	PhaseBubbling
)

// Handler receives dispatched events
type Handler func(*Event)

// Options mirrors the addEventListener options bag
type Options struct {
	Capture bool
	Once    bool
	Passive bool
}

// EventInit describes an event to dispatch
type EventInit struct {
	Bubbles    bool
	Cancelable bool
	Key        string
	Code       string
	CtrlKey    bool
	ShiftKey   bool
	AltKey     bool
	MetaKey    bool
	Value      string
	Detail     map[string]interface{}
}

// Event is a dispatched DOM event
type Event struct {
	Type          string
	Target        Target
	CurrentTarget Target
	Phase         Phase
	EventInit

	defaultPrevented bool
	stopped          bool
	stoppedNow       bool
}

// NewEvent creates an event of the given type
func NewEvent(typ string, init EventInit) *Event {
	return &Event{Type: typ, EventInit: init}
}

// PreventDefault cancels the default action if the event is cancelable
func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.defaultPrevented = true
	}
}

// DefaultPrevented reports whether PreventDefault took effect
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// StopPropagation stops the event after the current target
func (e *Event) StopPropagation() { e.stopped = true }

// StopImmediatePropagation stops the event before the next listener
func (e *Event) StopImmediatePropagation() {
	e.stopped = true
	e.stoppedNow = true
}

// PropagationStopped reports whether propagation was stopped
func (e *Event) PropagationStopped() bool { return e.stopped }

// listener is one registration on a target
type listener struct {
	typ     string
	key     interface{}
	fn      Handler
	capture bool
	once    bool
	removed bool
}

// eventTarget holds the listener list shared by Window, Document and Element.
// Registration follows DOM rules: (type, key, capture) is unique per target.
type eventTarget struct {
	entries []*listener
}

func (t *eventTarget) AddEventListener(typ string, key interface{}, fn Handler, opts Options) bool {
	if fn == nil || key == nil {
		return false
	}
	for _, l := range t.entries {
		if l.typ == typ && l.key == key && l.capture == opts.Capture {
			return false
		}
	}
	t.entries = append(t.entries, &listener{
		typ:     typ,
		key:     key,
		fn:      fn,
		capture: opts.Capture,
		once:    opts.Once,
	})
	return true
}

func (t *eventTarget) RemoveEventListener(typ string, key interface{}, opts Options) bool {
	for i, l := range t.entries {
		if l.typ == typ && l.key == key && l.capture == opts.Capture {
			l.removed = true
			t.entries = append(t.entries[:i:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (t *eventTarget) ListenerCount(typ string) int {
	n := 0
	for _, l := range t.entries {
		if typ == "" || l.typ == typ {
			n++
		}
	}
	return n
}

func (t *eventTarget) target() *eventTarget { return t }

// invoke runs the listeners of one target for the current phase
func (t *eventTarget) invoke(ev *Event, phase Phase) {
	snapshot := append([]*listener(nil), t.entries...)
	for _, l := range snapshot {
		if l.removed || l.typ != ev.Type {
			continue
		}
		if phase == PhaseCapturing && !l.capture {
			continue
		}
		if phase == PhaseBubbling && l.capture {
			continue
		}
		if l.once {
			t.RemoveEventListener(l.typ, l.key, Options{Capture: l.capture})
		}
		l.fn(ev)
		if ev.stoppedNow {
			return
		}
	}
}

// Dispatch delivers ev to target using capture, target and bubble phases.
// The propagation path is computed before any listener runs. It returns
// false when a listener called PreventDefault.
func Dispatch(target Target, ev *Event) bool {
	ev.Target = target
	path := propagationPath(target)

	ev.Phase = PhaseCapturing
	for i := len(path) - 1; i >= 0 && !ev.stopped; i-- {
		ev.CurrentTarget = path[i]
		path[i].target().invoke(ev, PhaseCapturing)
	}

	if !ev.stopped {
		ev.Phase = PhaseAtTarget
		ev.CurrentTarget = target
		target.target().invoke(ev, PhaseAtTarget)
	}

	if ev.Bubbles {
		ev.Phase = PhaseBubbling
		for i := 0; i < len(path) && !ev.stopped; i++ {
			ev.CurrentTarget = path[i]
			path[i].target().invoke(ev, PhaseBubbling)
		}
	}

	ev.Phase = PhaseNone
	ev.CurrentTarget = nil
	return !ev.defaultPrevented
}

// propagationPath lists the ancestors of target, nearest first
func propagationPath(target Target) []Target {
	var path []Target
	switch t := target.(type) {
	case *Element:
		for p := t.Parent(); p != nil; p = p.Parent() {
			path = append(path, p)
		}
		if t.IsConnected() {
			path = append(path, t.doc, t.doc.window)
		}
	case *Document:
		path = append(path, t.window)
	}
	return path
}

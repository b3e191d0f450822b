package keyboard

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
)

var ErrInvalidCombo = errors.New("invalid shortcut")

var modifierOrder = []string{"ctrl", "alt", "shift", "meta"}

var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"alt":     "alt",
	"option":  "alt",
	"shift":   "shift",
	"meta":    "meta",
	"cmd":     "meta",
	"command": "meta",
	"super":   "meta",
}

var keyAliases = map[string]string{
	" ":      "space",
	"esc":    "escape",
	"del":    "delete",
	"return": "enter",
	"up":     "arrowup",
	"down":   "arrowdown",
	"left":   "arrowleft",
	"right":  "arrowright",
}

// Normalize canonicalises a combo such as "Shift+Ctrl+K" to "ctrl+shift+k"
func Normalize(combo string) (string, error) {
	mods := map[string]bool{}
	key := ""
	for _, part := range strings.Split(combo, "+") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidCombo, combo)
		}
		if m, ok := modifierAliases[p]; ok {
			mods[m] = true
			continue
		}
		if key != "" {
			return "", fmt.Errorf("%w: %q has more than one key", ErrInvalidCombo, combo)
		}
		key = aliasKey(p)
	}
	if key == "" {
		return "", fmt.Errorf("%w: %q has no key", ErrInvalidCombo, combo)
	}
	return join(mods, key), nil
}

// FromEvent builds the normalised combo of a keyboard event
func FromEvent(ev *dom.Event) string {
	key := strings.ToLower(ev.Key)
	if key == "" || modifierAliases[key] != "" {
		return ""
	}
	mods := map[string]bool{
		"ctrl":  ev.CtrlKey,
		"alt":   ev.AltKey,
		"shift": ev.ShiftKey,
		"meta":  ev.MetaKey,
	}
	return join(mods, aliasKey(key))
}

func aliasKey(k string) string {
	if a, ok := keyAliases[k]; ok {
		return a
	}
	return k
}

func join(mods map[string]bool, key string) string {
	parts := make([]string, 0, len(modifierOrder)+1)
	for _, m := range modifierOrder {
		if mods[m] {
			parts = append(parts, m)
		}
	}
	return strings.Join(append(parts, key), "+")
}

type binding struct {
	appID   string
	handler dom.Handler
}

// Binding describes one registered shortcut
type Binding struct {
	Combo string `json:"combo"`
	AppID string `json:"app_id"`
}

// Registry routes keydown events to registered shortcuts. When several
// apps bind the same combo the most recent registration wins.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string][]binding
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string][]binding)}
}

// Register binds combo for appID and returns the normalised combo.
// Registering the same combo again for the same app replaces the handler.
func (r *Registry) Register(appID, combo string, handler dom.Handler) (string, error) {
	norm, err := Normalize(combo)
	if err != nil {
		return "", err
	}
	if handler == nil {
		return "", fmt.Errorf("%w: nil handler", ErrInvalidCombo)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.remove(appID, norm)
	r.bindings[norm] = append(r.bindings[norm], binding{appID: appID, handler: handler})
	return norm, nil
}

// Unregister removes appID's binding for combo
func (r *Registry) Unregister(appID, combo string) bool {
	norm, err := Normalize(combo)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(appID, norm)
}

// UnregisterApp removes every binding owned by appID
func (r *Registry) UnregisterApp(appID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for combo := range r.bindings {
		if r.remove(appID, combo) {
			n++
		}
	}
	return n
}

// remove must be called with r.mu held
func (r *Registry) remove(appID, combo string) bool {
	list := r.bindings[combo]
	for i, b := range list {
		if b.appID == appID {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(r.bindings, combo)
			} else {
				r.bindings[combo] = list
			}
			return true
		}
	}
	return false
}

// Handle runs the winning handler for ev and reports whether one ran
func (r *Registry) Handle(ev *dom.Event) bool {
	combo := FromEvent(ev)
	if combo == "" {
		return false
	}

	r.mu.RLock()
	list := r.bindings[combo]
	var h dom.Handler
	if len(list) > 0 {
		h = list[len(list)-1].handler
	}
	r.mu.RUnlock()

	if h == nil {
		return false
	}
	ev.PreventDefault()
	h(ev)
	return true
}

// List returns every binding, winners last within a combo
func (r *Registry) List() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Binding
	for combo, list := range r.bindings {
		for _, b := range list {
			out = append(out, Binding{Combo: combo, AppID: b.appID})
		}
	}
	return out
}

package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
)

// appAttr marks a window element with the app that owns it
const appAttr = "data-app-id"

// DispatchEvent fires a synthetic event from the shell. It returns false
// when a listener called preventDefault.
func (h *Host) DispatchEvent(ctx context.Context, req EventRequest) (bool, error) {
	var ok bool
	err := h.runSync(ctx, func(*goja.Runtime) error {
		target := h.resolveTarget(req.Target)
		if target == nil {
			return fmt.Errorf("%w: %s", ErrTargetNotFound, req.Target)
		}
		ok = h.dispatch(target, dom.NewEvent(req.Type, req.Init))
		return nil
	})
	return ok, err
}

func (h *Host) resolveTarget(name string) dom.Target {
	switch strings.TrimPrefix(name, "#") {
	case "", "document":
		return h.doc
	case "window":
		return h.doc.Window()
	default:
		if el := h.doc.GetElementByID(strings.TrimPrefix(name, "#")); el != nil {
			return el
		}
	}
	return nil
}

// dispatch runs listeners and then the default action of inline handler
// attributes. Runs on the loop.
func (h *Host) dispatch(target dom.Target, ev *dom.Event) bool {
	el, isElement := target.(*dom.Element)
	if isElement && (ev.Type == "input" || ev.Type == "change") && ev.Value != "" {
		el.SetAttr("value", ev.Value)
	}

	notPrevented := dom.Dispatch(target, ev)
	if notPrevented && isElement {
		h.runInline(el, ev)
	}
	return notPrevented
}

// runInline calls the exposed function named by the nearest on<type>
// attribute, in the app that owns the enclosing window
func (h *Host) runInline(el *dom.Element, ev *dom.Event) {
	attr := "on" + ev.Type
	var source *dom.Element
	var value string
	for cur := el; cur != nil; cur = cur.Parent() {
		if v, ok := cur.Attr(attr); ok {
			source, value = cur, v
			break
		}
	}
	if source == nil {
		return
	}

	name, ok := dom.InlineCall(value)
	if !ok {
		h.logger.Debug("inline handler ignored", zap.String("value", value))
		return
	}
	var owner string
	for cur := source; cur != nil; cur = cur.Parent() {
		if id, ok := cur.Attr(appAttr); ok {
			owner = id
			break
		}
	}
	inst, ok := h.lookup(owner)
	if !ok {
		h.logger.Debug("inline handler has no running app", zap.String("handler", name))
		return
	}
	if _, err := h.invokeValues(inst, "inline", name, inst.binder.element(source), inst.binder.event(ev)); err != nil {
		inst.logger.Debug("inline handler failed", zap.String("handler", name), zap.Error(err))
	}
}

// MountWindow creates the window element of an app on the desktop and
// returns its id
func (h *Host) MountWindow(ctx context.Context, appID, markup string) (string, error) {
	windowID := "window-" + appID
	err := h.runSync(ctx, func(*goja.Runtime) error {
		if h.doc.GetElementByID(windowID) != nil {
			return fmt.Errorf("%w: %s", ErrWindowExists, windowID)
		}

		win := h.doc.CreateElement("div")
		win.SetAttr("id", windowID)
		win.SetAttr("class", "window")
		win.SetAttr(appAttr, appID)

		content := h.doc.CreateElement("div")
		content.SetAttr("class", "window-content")
		if err := content.SetInnerHTML(h.sanitizer.Sanitize(markup)); err != nil {
			return err
		}
		if err := win.AppendChild(content); err != nil {
			return err
		}

		dest := h.doc.GetElementByID("desktop")
		if dest == nil {
			dest = h.doc.Body()
		}
		return dest.AppendChild(win)
	})
	if err != nil {
		return "", err
	}
	return windowID, nil
}

// UnmountWindow removes a window and everything in it. Apps rendering into
// it continue headless.
func (h *Host) UnmountWindow(ctx context.Context, windowID string) error {
	return h.runSync(ctx, func(*goja.Runtime) error {
		win := h.doc.GetElementByID(windowID)
		if win == nil {
			return nil
		}
		win.Destroy()

		h.mu.RLock()
		instances := make([]*Instance, 0, len(h.instances))
		for _, inst := range h.instances {
			instances = append(instances, inst)
		}
		h.mu.RUnlock()

		for _, inst := range instances {
			if inst.WindowID == windowID {
				inst.mu.Lock()
				inst.window, inst.container = nil, nil
				inst.mu.Unlock()
			}
			inst.binder.prune()
		}
		return nil
	})
}

// RenderWindow returns the current markup of an app window
func (h *Host) RenderWindow(ctx context.Context, appID string) (string, error) {
	var out string
	err := h.runSync(ctx, func(*goja.Runtime) error {
		win := h.doc.GetElementByID("window-" + appID)
		if win == nil {
			return fmt.Errorf("%w: window-%s", ErrTargetNotFound, appID)
		}
		out = win.OuterHTML()
		return nil
	})
	return out, err
}

// RenderDocument returns the markup of the whole desktop
func (h *Host) RenderDocument(ctx context.Context) (string, error) {
	var out string
	err := h.runSync(ctx, func(*goja.Runtime) error {
		out = h.doc.Render()
		return nil
	})
	return out, err
}

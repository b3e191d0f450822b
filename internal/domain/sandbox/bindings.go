package sandbox

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/env"
)

// binder builds the JS objects one app instance sees. Element wrappers are
// cached so the same node always yields the same object for a given app.
type binder struct {
	h    *Host
	inst *Instance
	env  env.Environment

	elements map[*dom.Element]*goja.Object
	nodes    map[*goja.Object]*dom.Element
	document *goja.Object
	window   *goja.Object

	lastEvent    *dom.Event
	lastEventObj *goja.Object
}

func newBinder(h *Host, inst *Instance, e env.Environment) *binder {
	return &binder{
		h:        h,
		inst:     inst,
		env:      e,
		elements: make(map[*dom.Element]*goja.Object),
		nodes:    make(map[*goja.Object]*dom.Element),
	}
}

func (b *binder) vm() *goja.Runtime { return b.h.vm }

// root is the subtree scoped lookups search; nil when an app is headless
func (b *binder) root() *dom.Element {
	return b.inst.container
}

// visible reports whether the app may hold a wrapper for el: a node of its
// own container, or one detached from the document
func (b *binder) visible(el *dom.Element) bool {
	if el == nil {
		return false
	}
	if root := b.root(); root != nil && root.Contains(el) {
		return true
	}
	return !el.IsConnected()
}

func (b *binder) throwType(format string, args ...interface{}) {
	panic(b.vm().NewTypeError(fmt.Sprintf(format, args...)))
}

func (b *binder) throw(err error) {
	panic(b.vm().NewGoError(err))
}

// call runs a JS callback on behalf of the app
func (b *binder) call(phase string, fn goja.Callable, this goja.Value, args ...goja.Value) goja.Value {
	v, _ := b.h.callApp(b.inst, phase, fn, this, args...)
	return v
}

func (b *binder) element(el *dom.Element) goja.Value {
	if el == nil {
		return goja.Null()
	}
	if o, ok := b.elements[el]; ok {
		return o
	}
	o := b.newElement(el)
	b.elements[el] = o
	b.nodes[o] = el
	return o
}

func (b *binder) elementList(list []*dom.Element) goja.Value {
	items := make([]interface{}, 0, len(list))
	for _, el := range list {
		items = append(items, b.element(el))
	}
	return b.vm().NewArray(items...)
}

func (b *binder) unwrap(v goja.Value) (*dom.Element, bool) {
	o, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	el, ok := b.nodes[o]
	return el, ok
}

func (b *binder) targetValue(t dom.Target) goja.Value {
	switch v := t.(type) {
	case *dom.Element:
		if !b.visible(v) {
			return goja.Null()
		}
		return b.element(v)
	case *dom.Document:
		return b.document
	case *dom.Window:
		return b.window
	}
	return goja.Null()
}

// prune drops wrappers of elements the document has forgotten
func (b *binder) prune() {
	for el, o := range b.elements {
		if !b.h.doc.Owns(el) {
			delete(b.elements, el)
			delete(b.nodes, o)
		}
	}
}

func (b *binder) release() {
	b.elements = make(map[*dom.Element]*goja.Object)
	b.nodes = make(map[*goja.Object]*dom.Element)
	b.lastEvent, b.lastEventObj = nil, nil
}

func (b *binder) fn(f func(goja.FunctionCall) goja.Value) goja.Value {
	return b.vm().ToValue(f)
}

func (b *binder) accessor(o *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := b.fn(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = b.fn(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = o.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (b *binder) newElement(el *dom.Element) *goja.Object {
	vm := b.vm()
	o := vm.NewObject()
	str := func(s string) func() goja.Value {
		return func() goja.Value { return vm.ToValue(s) }
	}

	b.accessor(o, "id", func() goja.Value { return vm.ToValue(el.ID()) },
		func(v goja.Value) { el.SetAttr("id", v.String()) })
	b.accessor(o, "tagName", str(el.TagName()), nil)
	b.accessor(o, "className", func() goja.Value { return vm.ToValue(el.ClassName()) },
		func(v goja.Value) { el.SetAttr("class", v.String()) })
	b.accessor(o, "textContent", func() goja.Value { return vm.ToValue(el.TextContent()) },
		func(v goja.Value) { el.SetTextContent(v.String()) })
	b.accessor(o, "innerHTML", func() goja.Value { return vm.ToValue(el.InnerHTML()) },
		func(v goja.Value) {
			if err := el.SetInnerHTML(b.h.sanitizer.Sanitize(v.String())); err != nil {
				b.throw(err)
			}
		})
	b.accessor(o, "value", func() goja.Value {
		v, _ := el.Attr("value")
		return vm.ToValue(v)
	}, func(v goja.Value) { el.SetAttr("value", v.String()) })
	b.accessor(o, "parentElement", func() goja.Value {
		// The container is the top of what an app can see
		if el == b.root() {
			return goja.Null()
		}
		if p := el.Parent(); b.visible(p) {
			return b.element(p)
		}
		return goja.Null()
	}, nil)
	b.accessor(o, "children", func() goja.Value { return b.elementList(el.Children()) }, nil)
	b.accessor(o, "isConnected", func() goja.Value { return vm.ToValue(el.IsConnected()) }, nil)

	_ = o.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := el.Attr(call.Argument(0).String()); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = o.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		name, value := strings.ToLower(call.Argument(0).String()), call.Argument(1).String()
		if strings.HasPrefix(name, "on") {
			if _, ok := dom.InlineCall(value); !ok {
				b.throwType("inline handler %q must call an exposed function", value)
			}
		}
		el.SetAttr(name, value)
		return goja.Undefined()
	})
	_ = o.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		el.RemoveAttr(call.Argument(0).String())
		return goja.Undefined()
	})
	_ = o.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		child, ok := b.unwrap(call.Argument(0))
		if !ok {
			b.throwType("appendChild: argument is not an element")
		}
		if err := el.AppendChild(child); err != nil {
			b.throw(err)
		}
		return call.Argument(0)
	})
	_ = o.Set("removeChild", func(call goja.FunctionCall) goja.Value {
		child, ok := b.unwrap(call.Argument(0))
		if !ok {
			b.throwType("removeChild: argument is not an element")
		}
		if err := el.RemoveChild(child); err != nil {
			b.throw(err)
		}
		return call.Argument(0)
	})
	_ = o.Set("remove", func(goja.FunctionCall) goja.Value {
		el.Remove()
		return goja.Undefined()
	})
	_ = o.Set("contains", func(call goja.FunctionCall) goja.Value {
		other, ok := b.unwrap(call.Argument(0))
		return vm.ToValue(ok && el.Contains(other))
	})
	_ = o.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return b.element(el.Query(call.Argument(0).String()))
	})
	_ = o.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.elementList(el.QueryAll(call.Argument(0).String()))
	})
	_ = o.Set("addEventListener", b.listenFn(el))
	_ = o.Set("removeEventListener", b.unlistenFn(el))
	_ = o.Set("click", func(goja.FunctionCall) goja.Value {
		b.h.dispatch(el, dom.NewEvent("click", dom.EventInit{Bubbles: true, Cancelable: true}))
		return goja.Undefined()
	})

	classList := vm.NewObject()
	_ = classList.Set("add", func(call goja.FunctionCall) goja.Value {
		for _, a := range call.Arguments {
			el.AddClass(a.String())
		}
		return goja.Undefined()
	})
	_ = classList.Set("remove", func(call goja.FunctionCall) goja.Value {
		for _, a := range call.Arguments {
			el.RemoveClass(a.String())
		}
		return goja.Undefined()
	})
	_ = classList.Set("contains", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(el.HasClass(call.Argument(0).String()))
	})
	_ = classList.Set("toggle", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if el.HasClass(name) {
			el.RemoveClass(name)
			return vm.ToValue(false)
		}
		el.AddClass(name)
		return vm.ToValue(true)
	})
	_ = o.Set("classList", classList)
	return o
}

// listenerOptions reads the third addEventListener argument
func listenerOptions(v goja.Value) dom.Options {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return dom.Options{}
	}
	o, ok := v.(*goja.Object)
	if !ok {
		return dom.Options{Capture: v.ToBoolean()}
	}
	flag := func(name string) bool {
		f := o.Get(name)
		return f != nil && f.ToBoolean()
	}
	return dom.Options{Capture: flag("capture"), Once: flag("once"), Passive: flag("passive")}
}

func (b *binder) listenFn(target dom.Target) goja.Value {
	return b.fn(func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			b.throwType("addEventListener requires 2 arguments, %d given", len(call.Arguments))
		}
		key, ok := call.Argument(1).(*goja.Object)
		if !ok {
			return goja.Undefined()
		}
		fn, ok := goja.AssertFunction(key)
		if !ok {
			return goja.Undefined()
		}
		typ := call.Argument(0).String()
		this := b.targetValue(target)
		b.env.AddEventListener(target, typ, key, func(ev *dom.Event) {
			b.call("listener", fn, this, b.event(ev))
		}, listenerOptions(call.Argument(2)))
		return goja.Undefined()
	})
}

func (b *binder) unlistenFn(target dom.Target) goja.Value {
	return b.fn(func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			b.throwType("removeEventListener requires 2 arguments, %d given", len(call.Arguments))
		}
		key, ok := call.Argument(1).(*goja.Object)
		if !ok {
			return goja.Undefined()
		}
		b.env.RemoveEventListener(target, call.Argument(0).String(), key, listenerOptions(call.Argument(2)))
		return goja.Undefined()
	})
}

// event wraps ev; listeners of one dispatch share the same object
func (b *binder) event(ev *dom.Event) goja.Value {
	if b.lastEvent == ev && b.lastEventObj != nil {
		return b.lastEventObj
	}
	vm := b.vm()
	o := vm.NewObject()
	_ = o.Set("type", ev.Type)
	_ = o.Set("target", b.targetValue(ev.Target))
	_ = o.Set("key", ev.Key)
	_ = o.Set("code", ev.Code)
	_ = o.Set("ctrlKey", ev.CtrlKey)
	_ = o.Set("shiftKey", ev.ShiftKey)
	_ = o.Set("altKey", ev.AltKey)
	_ = o.Set("metaKey", ev.MetaKey)
	_ = o.Set("bubbles", ev.Bubbles)
	_ = o.Set("cancelable", ev.Cancelable)
	_ = o.Set("value", ev.Value)
	if ev.Detail != nil {
		_ = o.Set("detail", ev.Detail)
	}
	b.accessor(o, "currentTarget", func() goja.Value { return b.targetValue(ev.CurrentTarget) }, nil)
	b.accessor(o, "eventPhase", func() goja.Value { return vm.ToValue(int(ev.Phase)) }, nil)
	b.accessor(o, "defaultPrevented", func() goja.Value { return vm.ToValue(ev.DefaultPrevented()) }, nil)
	_ = o.Set("preventDefault", func(goja.FunctionCall) goja.Value {
		ev.PreventDefault()
		return goja.Undefined()
	})
	_ = o.Set("stopPropagation", func(goja.FunctionCall) goja.Value {
		ev.StopPropagation()
		return goja.Undefined()
	})
	_ = o.Set("stopImmediatePropagation", func(goja.FunctionCall) goja.Value {
		ev.StopImmediatePropagation()
		return goja.Undefined()
	})

	b.lastEvent, b.lastEventObj = ev, o
	return o
}

func delayArg(v goja.Value) time.Duration {
	ms := v.ToFloat()
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (b *binder) timerFn(kind env.TimerKind) goja.Value {
	return b.fn(func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			b.throwType("%s callback must be a function", kind)
		}
		var extra []goja.Value
		if len(call.Arguments) > 2 {
			extra = append(extra, call.Arguments[2:]...)
		}
		run := func() { b.call(string(kind), fn, goja.Undefined(), extra...) }

		var h env.TimerHandle
		if kind == env.Interval {
			h = b.env.SetInterval(run, delayArg(call.Argument(1)))
		} else {
			h = b.env.SetTimeout(run, delayArg(call.Argument(1)))
		}
		return b.vm().ToValue(int64(h))
	})
}

func (b *binder) clearFn(kind env.TimerKind) goja.Value {
	return b.fn(func(call goja.FunctionCall) goja.Value {
		v := call.Argument(0)
		if goja.IsUndefined(v) || goja.IsNull(v) {
			return goja.Undefined()
		}
		h := env.TimerHandle(v.ToInteger())
		if kind == env.Interval {
			b.env.ClearInterval(h)
		} else {
			b.env.ClearTimeout(h)
		}
		return goja.Undefined()
	})
}

func (b *binder) console() *goja.Object {
	o := b.vm().NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = o.Set(level, b.consoleFn(level))
	}
	return o
}

func (b *binder) consoleFn(level string) goja.Value {
	return b.fn(func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		msg := strings.Join(parts, " ")

		b.inst.log(level, msg)
		logger := b.inst.logger
		switch level {
		case "error":
			logger.Error(msg, zap.String("source", "console"))
		case "warn":
			logger.Warn(msg, zap.String("source", "console"))
		case "debug":
			logger.Debug(msg, zap.String("source", "console"))
		default:
			logger.Info(msg, zap.String("source", "console"))
		}
		return goja.Undefined()
	})
}

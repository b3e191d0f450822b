package sandbox

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/env"
)

// accessorNames are the DOM lookup names bound both as app locals and as
// methods of the app's document
var accessorNames = []string{
	"getElementById",
	"querySelector",
	"querySelectorAll",
	"getElementsByClassName",
	"getElementsByTagName",
	"getElementsByName",
	"queryXPath",
	"appendToHead",
	"appendToBody",
	"createElement",
}

// accessors returns the lookup functions confined to the owner's root.
// With no root they return null or an empty list.
func (b *binder) accessors() map[string]goja.Value {
	vm := b.vm()
	empty := func() goja.Value { return vm.NewArray() }

	return map[string]goja.Value{
		"getElementById": b.fn(func(call goja.FunctionCall) goja.Value {
			root := b.root()
			if root == nil {
				return goja.Null()
			}
			return b.element(root.FindByID(call.Argument(0).String()))
		}),
		"querySelector": b.fn(func(call goja.FunctionCall) goja.Value {
			root := b.root()
			if root == nil {
				return goja.Null()
			}
			return b.element(root.Query(call.Argument(0).String()))
		}),
		"querySelectorAll": b.fn(func(call goja.FunctionCall) goja.Value {
			root := b.root()
			if root == nil {
				return empty()
			}
			return b.elementList(root.QueryAll(call.Argument(0).String()))
		}),
		"getElementsByClassName": b.fn(func(call goja.FunctionCall) goja.Value {
			root := b.root()
			if root == nil {
				return empty()
			}
			return b.elementList(root.ByClass(call.Argument(0).String()))
		}),
		"getElementsByTagName": b.fn(func(call goja.FunctionCall) goja.Value {
			root := b.root()
			if root == nil {
				return empty()
			}
			return b.elementList(root.ByTag(call.Argument(0).String()))
		}),
		"getElementsByName": b.fn(func(call goja.FunctionCall) goja.Value {
			root := b.root()
			if root == nil {
				return empty()
			}
			return b.elementList(root.ByName(call.Argument(0).String()))
		}),
		"queryXPath": b.fn(func(call goja.FunctionCall) goja.Value {
			root := b.root()
			if root == nil {
				return empty()
			}
			found, err := root.XPath(call.Argument(0).String())
			if err != nil {
				b.throw(err)
			}
			return b.elementList(found)
		}),
		"appendToHead": b.appendRedirect("head"),
		"appendToBody": b.appendRedirect("body"),
		"createElement": b.fn(func(call goja.FunctionCall) goja.Value {
			return b.element(b.h.doc.CreateElement(call.Argument(0).String()))
		}),
	}
}

// appendRedirect appends into the app's own container in place of the real
// head or body, with a warning
func (b *binder) appendRedirect(where string) goja.Value {
	return b.fn(func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		el, ok := b.unwrap(arg)
		if !ok {
			b.throwType("appendChild: argument is not an element")
		}

		dest := b.inst.container
		msg := fmt.Sprintf("append to document.%s redirected to the app container", where)
		b.inst.log("warn", msg)
		b.inst.logger.Warn(msg, zap.String("tag", el.TagName()), zap.Bool("headless", dest == nil))
		if dest == nil {
			return arg
		}
		if err := dest.AppendChild(el); err != nil {
			b.throw(err)
		}
		return arg
	})
}

// buildDocument creates the owner's document object
func (b *binder) buildDocument(acc map[string]goja.Value) *goja.Object {
	vm := b.vm()
	d := vm.NewObject()
	for _, name := range accessorNames {
		if name == "appendToHead" || name == "appendToBody" {
			continue
		}
		_ = d.Set(name, acc[name])
	}
	_ = d.Set("addEventListener", b.listenFn(b.h.doc))
	_ = d.Set("removeEventListener", b.unlistenFn(b.h.doc))

	head := vm.NewObject()
	_ = head.Set("appendChild", acc["appendToHead"])
	body := vm.NewObject()
	_ = body.Set("appendChild", acc["appendToBody"])
	_ = d.Set("head", head)
	_ = d.Set("body", body)

	b.document = d
	return d
}

// buildWindow creates the app-local window. Its prototype is the realm
// global object, so reads fall through to shared builtins while writes
// stay on the app's own object. The global only carries inert entry points.
func (b *binder) buildWindow(document *goja.Object) *goja.Object {
	w := b.vm().CreateObject(b.vm().GlobalObject())
	_ = w.Set("window", w)
	_ = w.Set("self", w)
	_ = w.Set("globalThis", w)
	_ = w.Set("document", document)
	_ = w.Set("addEventListener", b.listenFn(b.h.doc.Window()))
	_ = w.Set("removeEventListener", b.unlistenFn(b.h.doc.Window()))
	_ = w.Set("setTimeout", b.timerFn(env.Timeout))
	_ = w.Set("setInterval", b.timerFn(env.Interval))
	_ = w.Set("clearTimeout", b.clearFn(env.Timeout))
	_ = w.Set("clearInterval", b.clearFn(env.Interval))
	b.window = w
	return w
}

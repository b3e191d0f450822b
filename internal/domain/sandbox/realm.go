package sandbox

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox/dom"
)

type hostKey string

// shortcutRouter keys the single keydown listener the host owns
const shortcutRouter hostKey = "keyboard-shortcuts"

// realmEntryPoints are installed on the realm global as throwing stubs.
// Apps get working versions as wrapper parameters; nothing runs against the
// global itself.
var realmEntryPoints = []string{
	"setTimeout",
	"setInterval",
	"clearTimeout",
	"clearInterval",
	"setImmediate",
	"clearImmediate",
	"addEventListener",
	"removeEventListener",
}

// setupRealm prepares the shared global scope: inert entry points, the
// keyboard router, and the reference snapshot of the entry points. Runs on
// the loop.
func (h *Host) setupRealm() error {
	vm := h.vm
	vm.SetMaxCallStackSize(h.cfg.MaxCallStack)
	global := vm.GlobalObject()

	for _, name := range []string{"require", "process", "module", "exports", "console"} {
		_ = global.Delete(name)
	}

	ctor := global.Get("Function")
	if _, ok := goja.AssertConstructor(ctor); !ok {
		return errors.New("realm has no Function constructor")
	}
	h.functionCtor = ctor

	_ = global.Set("window", global)
	_ = global.Set("self", global)
	for _, name := range realmEntryPoints {
		_ = global.Set(name, h.unavailable(name))
	}
	document := vm.NewObject()
	_ = document.Set("addEventListener", h.unavailable("document.addEventListener"))
	_ = document.Set("removeEventListener", h.unavailable("document.removeEventListener"))
	_ = global.Set("document", document)

	h.doc.AddEventListener("keydown", shortcutRouter, func(ev *dom.Event) {
		h.keys.Handle(ev)
	}, dom.Options{})

	h.ambient = captureAmbient(vm)
	return nil
}

// unavailable returns a function that throws a TypeError naming the entry
// point
func (h *Host) unavailable(name string) goja.Value {
	return h.vm.ToValue(func(goja.FunctionCall) goja.Value {
		panic(h.vm.NewTypeError(fmt.Sprintf("%s is only available inside an app", name)))
	})
}

package sandbox

import "github.com/dop251/goja"

// ambientRef names a realm entry point that apps must not be able to
// replace for each other. An empty owner means the global object.
type ambientRef struct {
	owner string
	name  string
}

var ambientRefs = []ambientRef{
	{"", "setInterval"},
	{"", "setTimeout"},
	{"", "clearInterval"},
	{"", "clearTimeout"},
	{"", "setImmediate"},
	{"", "clearImmediate"},
	{"", "window"},
	{"", "document"},
	{"", "addEventListener"},
	{"", "removeEventListener"},
	{"document", "addEventListener"},
	{"document", "removeEventListener"},
}

type ambientSlot struct {
	ref   ambientRef
	owner *goja.Object
	value goja.Value
}

// ambientSnapshot holds the original references of the realm entry points
type ambientSnapshot []ambientSlot

func captureAmbient(vm *goja.Runtime) ambientSnapshot {
	global := vm.GlobalObject()
	snap := make(ambientSnapshot, 0, len(ambientRefs))
	for _, ref := range ambientRefs {
		owner := global
		if ref.owner != "" {
			o, ok := global.Get(ref.owner).(*goja.Object)
			if !ok {
				continue
			}
			owner = o
		}
		snap = append(snap, ambientSlot{ref: ref, owner: owner, value: owner.Get(ref.name)})
	}
	return snap
}

// restore puts back every entry point that no longer holds its original
// reference and returns how many were repaired
func (s ambientSnapshot) restore() int {
	n := 0
	for _, slot := range s {
		cur := slot.owner.Get(slot.ref.name)
		switch {
		case slot.value == nil && cur == nil:
			continue
		case slot.value == nil:
			_ = slot.owner.Delete(slot.ref.name)
		case cur != nil && cur.SameAs(slot.value):
			continue
		default:
			_ = slot.owner.Set(slot.ref.name, slot.value)
		}
		n++
	}
	return n
}

// Package sandbox runs untrusted desktop apps inside one shared JavaScript
// realm.
//
// Each app script is compiled as the body of a strict function whose
// parameters shadow every ambient entry point: timers, listeners, DOM
// lookups and the capability API. The values bound to those parameters are
// per-app wrappers that record resources in a tracker entry, so closing an
// app can release everything it acquired without patching shared globals.
// The global itself only holds builtins and entry points that throw.
//
// All JavaScript and DOM work is confined to the host's event loop
// goroutine. Exported Host methods hop onto the loop and wait.
package sandbox

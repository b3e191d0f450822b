// Package server assembles the desktop backend: storage, the sandbox host,
// the app manager and the HTTP and WebSocket API on one gin router.
package server

// Package main is the entry point for the WebOS backend server.
//
// The server hosts the desktop shell: a sandbox that runs untrusted app
// scripts against a shared document, the app registry, per-app settings,
// a virtual file system and a pub/sub bus for sockets.
//
// The server provides:
//   - REST API for app lifecycle, registry and settings
//   - WebSocket bus on /stream
//   - Prometheus metrics on /metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	./server -port 8000 -data ./data -apps ./apps
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

// Package http provides HTTP handlers and routing for the WebOS REST API.
//
// Endpoints:
//   - Health: / and /health
//   - Registry: /registry/apps, /registry/apps/:id
//   - Apps: /apps, /apps/:id and its open, focus, window, invoke/:fn,
//     events, dom, console and settings sub-resources
//   - Notifications: /notifications
//   - Bus: /bus/rooms, /bus/rooms/:room/messages, /bus/broadcast
//   - System: /system/stats, /system/unload, /system/lock, /system/unlock
//
// Errors are answered as {"success": false, "error": "..."} with the status
// mapped from the domain sentinel (404, 409, 400, 423, 503).
//
// Example Usage:
//
//	handlers := http.NewHandlers(http.Deps{Apps: apps, Host: host, ...})
//	handlers.Register(router)
package http

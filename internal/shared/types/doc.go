// Package types provides shared data structures for the desktop backend.
//
// Core Types:
//   - App: Running application with its window geometry
//   - Manifest: Installable application package
//   - Notification: User-facing message raised by an app or the shell
//   - Message: Pub/sub bus message
//   - FileInfo: Virtual file system entry
//   - FetchRequest, FetchResponse: Outbound HTTP performed for an app
//
// State Management:
//   - State: App state enum (active, background, destroyed)
//   - WindowPosition, WindowSize, WindowState: Window geometry
//   - Stats: App manager statistics
package types

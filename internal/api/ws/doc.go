// Package ws bridges WebSocket clients onto the pub/sub bus.
//
// Each connection becomes a remote bus client that expires when idle. A
// single writer goroutine owns the socket; bus deliveries and replies are
// queued on a bounded buffer and dropped when it is full.
//
// Message Types (Client → Server):
//   - join_room: Join the room named in "room"
//   - leave_room: Leave the room named in "room"
//   - message: Publish "payload" as "event" to "room" (empty room is global)
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Welcome frame carrying the client id
//   - message: A bus message, including user_joined and user_left
//   - joined, left: Room membership confirmations
//   - pong: Reply to ping
//   - error: Rejected frame
//
// Example Usage:
//
//	handler := ws.NewHandler(bus, logger, ws.Config{})
//	router.GET("/stream", handler.HandleConnection)
package ws

package types

import "time"

// NotificationLevel is the severity of a notification
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Notification is a user-facing message
type Notification struct {
	ID        string            `json:"id"`
	AppID     string            `json:"app_id,omitempty"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Level     NotificationLevel `json:"level"`
	CreatedAt time.Time         `json:"created_at"`
}

// Message is one pub/sub bus message
type Message struct {
	ID        string      `json:"id"`
	Room      string      `json:"room"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Sender    string      `json:"sender,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WSMessage is a frame on the /stream WebSocket
type WSMessage struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Room      string      `json:"room,omitempty"`
	Event     string      `json:"event,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Sender    string      `json:"sender,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// FileInfo describes a virtual file system entry
type FileInfo struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	IsDir      bool      `json:"is_dir"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type,omitempty"`
	Charset    string    `json:"charset,omitempty"`
	Compressed bool      `json:"compressed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// FSStats summarises the virtual file system
type FSStats struct {
	Files       int   `json:"files"`
	Directories int   `json:"directories"`
	TotalBytes  int64 `json:"total_bytes"`
}

// FetchRequest is an outbound HTTP request made on behalf of an app
type FetchRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// FetchResponse is the result of a FetchRequest
type FetchResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

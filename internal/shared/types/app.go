package types

import "time"

// State represents app lifecycle states
type State string

const (
	StateSpawning   State = "spawning"
	StateActive     State = "active"
	StateBackground State = "background"
	StateDestroyed  State = "destroyed"
)

// WindowPosition represents window position on screen
type WindowPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WindowSize represents window dimensions
type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowState is the persisted geometry of an app window
type WindowState struct {
	AppID     string         `json:"app_id"`
	Position  WindowPosition `json:"position"`
	Size      WindowSize     `json:"size"`
	Maximized bool           `json:"maximized"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// App represents a running application
type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	State     State     `json:"state"`
	WindowID  string    `json:"window_id"`
	CreatedAt time.Time `json:"created_at"`
	Exposed   []string  `json:"exposed"`

	WindowPos  *WindowPosition `json:"window_pos,omitempty"`
	WindowSize *WindowSize     `json:"window_size,omitempty"`
}

// Stats contains app manager statistics
type Stats struct {
	TotalApps      int     `json:"total_apps"`
	ActiveApps     int     `json:"active_apps"`
	BackgroundApps int     `json:"background_apps"`
	FocusedAppID   *string `json:"focused_app_id,omitempty"`
}

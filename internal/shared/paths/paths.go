package paths

import (
	"fmt"
	"path"
	"strings"
)

// Root is the VFS root
const Root = "/"

// Top level directories
const (
	// Apps holds installed app packages (<id>.app.json plus assets)
	Apps = "/apps"

	// User holds user files
	User = "/user"

	// System holds shell data
	System = "/system"

	// Tmp holds scratch files
	Tmp = "/tmp"
)

// User subdirectories
const (
	Documents = "/user/documents"
	Downloads = "/user/downloads"
	Desktop   = "/user/desktop"
)

// App returns application-specific paths
type App struct {
	ID string
}

// Dir returns the app's package directory
func (a App) Dir() string {
	return path.Join(Apps, a.ID)
}

// DataDir returns the app's data directory
func (a App) DataDir() string {
	return path.Join(Apps, a.ID, "data")
}

// TempDir returns the app's temp directory
func (a App) TempDir() string {
	return path.Join(Tmp, a.ID)
}

// AppPath returns paths for a specific application
func AppPath(appID string) App {
	return App{ID: appID}
}

// Within reports whether p is dir or lies below it
func Within(p, dir string) bool {
	if dir == Root {
		return strings.HasPrefix(p, Root)
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// IsSystemPath checks if path is shell-owned
func IsSystemPath(p string) bool {
	return Within(p, System)
}

// StandardDirectories returns the directories created on first boot, parents
// before children
func StandardDirectories() []string {
	return []string{
		Apps,
		User,
		Documents,
		Downloads,
		Desktop,
		System,
		Tmp,
	}
}

// ValidateAppID checks if an app ID is valid for path construction
func ValidateAppID(appID string) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}
	if strings.HasPrefix(appID, "/") {
		return fmt.Errorf("app ID cannot be an absolute path")
	}
	if strings.ContainsAny(appID, "/\\") || path.Clean(appID) != appID || appID == ".." {
		return fmt.Errorf("app ID contains invalid path components")
	}
	return nil
}

// Package paths defines the virtual file system layout.
//
// # Directory Structure
//
//	/
//	├── apps/          (installed app packages)
//	├── user/
//	│   ├── documents/
//	│   ├── downloads/
//	│   └── desktop/
//	├── system/        (shell data)
//	└── tmp/
//
// # Usage
//
//	dataDir := paths.AppPath("notes").DataDir() // /apps/notes/data
//	if paths.Within(p, paths.User) {
//	    // user file
//	}
package paths

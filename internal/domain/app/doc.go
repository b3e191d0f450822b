// Package app manages the lifecycle of open apps.
//
// Opening an app loads its package from the registry, installs its setting
// defaults, mounts its window on the desktop and runs its script in the
// sandbox host. Closing reverses every step. Only one instance of an app
// id may be open at a time.
//
// Example Usage:
//
//	manager := app.NewManager(host, packages, settings, logger)
//	opened, result, err := manager.Open(ctx, "calculator")
//	manager.Focus(opened.ID)
//	report, ok, err := manager.Close(ctx, opened.ID)
package app

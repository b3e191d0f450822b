// Package registry stores installable app packages.
//
// A package is a Manifest: id, display metadata, the app script (inline or
// a script_file), optional window markup, the export list, setting
// defaults and tags. Packages are persisted in the packages table and
// cached in memory.
//
// Components:
//   - Manager: package CRUD, category listing and search
//   - Seeder: installs *.app.json, *.app.yaml, *.app.yml and *.app.toml
//     manifests from a host directory or from the virtual file system
//
// Example Usage:
//
//	manager := registry.NewManager(db, logger, metrics)
//	seeder := registry.NewSeeder(manager, logger)
//	result, err := seeder.SeedDir(ctx, "apps")
//	m, err := manager.Get(ctx, "calculator")
package registry

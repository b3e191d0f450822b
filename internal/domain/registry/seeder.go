package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/paths"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

// FileSource is the slice of the virtual file system the seeder reads
type FileSource interface {
	Glob(ctx context.Context, pattern string) ([]types.FileInfo, error)
	ReadFile(ctx context.Context, path string) ([]byte, types.FileInfo, error)
}

// Result counts a seeding pass
type Result struct {
	Loaded int      `json:"loaded"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

func (r *Result) fail(name string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", name, err))
}

// Seeder installs manifests found on disk or in the VFS
type Seeder struct {
	manager *Manager
	logger  *zap.Logger
}

// NewSeeder creates a new app seeder
func NewSeeder(manager *Manager, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{manager: manager, logger: logger}
}

// SeedDir walks dir for manifest files and saves each one. A missing
// directory is not an error.
func (s *Seeder) SeedDir(ctx context.Context, dir string) (Result, error) {
	var (
		res Result
		mu  sync.Mutex
	)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("apps directory not found", zap.String("dir", dir))
		return res, nil
	}
	s.logger.Info("seeding apps", zap.String("dir", dir))

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}
		format, ok := FormatFor(d.Name())
		if !ok {
			return nil
		}

		loadErr := s.loadFile(ctx, p, format)

		mu.Lock()
		defer mu.Unlock()
		if loadErr != nil {
			s.logger.Warn("failed to load app", zap.String("file", p), zap.Error(loadErr))
			res.fail(d.Name(), loadErr)
			return nil
		}
		s.logger.Debug("loaded app", zap.String("file", p))
		res.Loaded++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walk %s: %w", dir, err)
	}

	s.logger.Info("seeding complete", zap.Int("loaded", res.Loaded), zap.Int("failed", res.Failed))
	return res, nil
}

func (s *Seeder) loadFile(ctx context.Context, file string, format Format) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	m, err := Parse(data, format)
	if err != nil {
		return err
	}

	dir := filepath.Dir(file)
	read := func(ref string) (string, error) {
		if !filepath.IsLocal(ref) {
			return "", fmt.Errorf("%w: %q escapes the manifest directory", ErrInvalidManifest, ref)
		}
		b, err := os.ReadFile(filepath.Join(dir, ref))
		return string(b), err
	}
	if err := resolve(m, read); err != nil {
		return err
	}
	return s.manager.Save(ctx, m)
}

// SeedVFS installs manifests stored below root in the virtual file system
func (s *Seeder) SeedVFS(ctx context.Context, src FileSource, root string) (Result, error) {
	var res Result
	if root == "" {
		root = paths.Apps
	}
	files, err := src.Glob(ctx, path.Join(root, "**", "*.app.{json,yaml,yml,toml}"))
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", root, err)
	}

	for _, info := range files {
		if info.IsDir {
			continue
		}
		format, ok := FormatFor(info.Name)
		if !ok {
			continue
		}
		if err := s.loadVFS(ctx, src, info.Path, format); err != nil {
			s.logger.Warn("failed to load app", zap.String("path", info.Path), zap.Error(err))
			res.fail(info.Path, err)
			continue
		}
		res.Loaded++
	}
	if res.Loaded > 0 || res.Failed > 0 {
		s.logger.Info("installed apps from vfs", zap.String("root", root),
			zap.Int("loaded", res.Loaded), zap.Int("failed", res.Failed))
	}
	return res, nil
}

func (s *Seeder) loadVFS(ctx context.Context, src FileSource, file string, format Format) error {
	data, _, err := src.ReadFile(ctx, file)
	if err != nil {
		return err
	}
	m, err := Parse(data, format)
	if err != nil {
		return err
	}

	dir := path.Dir(file)
	read := func(ref string) (string, error) {
		if !filepath.IsLocal(ref) {
			return "", fmt.Errorf("%w: %q escapes the manifest directory", ErrInvalidManifest, ref)
		}
		b, _, err := src.ReadFile(ctx, path.Join(dir, filepath.ToSlash(ref)))
		return string(b), err
	}
	if err := resolve(m, read); err != nil {
		return err
	}
	return s.manager.Save(ctx, m)
}

// resolve fills Script and HTML from their file references when inline
// content is absent
func resolve(m *types.Manifest, read func(string) (string, error)) error {
	if m.Script == "" && m.ScriptFile != "" {
		src, err := read(m.ScriptFile)
		if err != nil {
			return fmt.Errorf("script_file %s: %w", m.ScriptFile, err)
		}
		m.Script = src
	}
	if m.HTML == "" && m.HTMLFile != "" {
		markup, err := read(m.HTMLFile)
		if err != nil {
			return fmt.Errorf("html_file %s: %w", m.HTMLFile, err)
		}
		m.HTML = markup
	}
	return nil
}

// SeedDefaults installs the built-in apps that are not already present
func (s *Seeder) SeedDefaults(ctx context.Context) (Result, error) {
	var res Result
	for _, m := range DefaultApps() {
		if s.manager.Exists(ctx, m.ID) {
			continue
		}
		if err := s.manager.Save(ctx, m); err != nil {
			res.fail(m.ID, err)
			continue
		}
		res.Loaded++
	}
	if res.Loaded > 0 {
		s.logger.Info("seeded default apps", zap.Int("count", res.Loaded))
	}
	return res, nil
}

// DefaultApps returns the built-in packages
func DefaultApps() []*types.Manifest {
	return []*types.Manifest{
		{
			ID:          "clock",
			Name:        "Clock",
			Description: "Shows the current time",
			Icon:        "🕒",
			Category:    "system",
			Version:     "1.0.0",
			Author:      "system",
			Tags:        []string{"clock", "time"},
			HTML:        `<div class="clock"><span id="time"></span></div>`,
			Script: `
var label = getElementById("time");
function tick() { label.textContent = new Date().toLocaleTimeString(); }
tick();
setInterval(tick, 1000);
`,
		},
		{
			ID:          "notepad",
			Name:        "Notepad",
			Description: "Plain text notes saved to the file system",
			Icon:        "📝",
			Category:    "productivity",
			Version:     "1.0.0",
			Author:      "system",
			Tags:        []string{"notes", "text", "editor"},
			Exports:     []string{"save", "load"},
			Settings: []types.SettingDefinition{
				{Key: "file", Value: "/user/documents/notes.txt", Type: "string", Description: "File the note is saved to"},
			},
			HTML: `<textarea id="note" name="note"></textarea>` +
				`<button id="save" onclick="save()">Save</button>` +
				`<button id="load" onclick="load()">Load</button>`,
			Script: `
var note = getElementById("note");
function save() {
  return api.fs.write(getAppSetting("file"), note.value).then(function () {
    showNotification("Notepad", "Saved", "success");
  });
}
function load() {
  return api.fs.read(getAppSetting("file")).then(function (text) { note.value = text; });
}
registerShortcut("ctrl+s", save);
`,
		},
		{
			ID:          "about",
			Name:        "About",
			Description: "About this desktop",
			Icon:        "ℹ️",
			Category:    "system",
			Version:     "1.0.0",
			Author:      "system",
			Tags:        []string{"about", "system"},
			HTML:        `<h1>WebOS</h1><p id="stats"></p>`,
			Script: `
function refresh() {
  var opened = (storage.getItem("opened") || 0) + 1;
  storage.setItem("opened", opened);
  getElementById("stats").textContent = appId + " opened " + opened + " times";
}
expose("refresh", refresh);
refresh();
`,
		},
	}
}

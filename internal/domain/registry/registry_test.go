package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/database"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/vfs"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

type countMetrics struct{ last int }

func (c *countMetrics) SetRegistryApps(n int) { c.last = n }

func newManager(t *testing.T) (*Manager, *vfs.FS, *countMetrics) {
	t.Helper()
	db, err := database.Connect(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	m := &countMetrics{}
	return NewManager(db, nil, m), vfs.New(db, nil), m
}

func manifest(id, category string) *types.Manifest {
	return &types.Manifest{
		ID:       id,
		Name:     "App " + id,
		Category: category,
		Script:   "expose('ping', function () { return 'pong'; });",
		Tags:     []string{"demo"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *types.Manifest)
		wantErr bool
	}{
		{"valid", func(*types.Manifest) {}, false},
		{"html only", func(m *types.Manifest) { m.Script = ""; m.HTML = "<p>hi</p>" }, false},
		{"missing id", func(m *types.Manifest) { m.ID = "" }, true},
		{"path id", func(m *types.Manifest) { m.ID = "../x" }, true},
		{"missing name", func(m *types.Manifest) { m.Name = "" }, true},
		{"empty app", func(m *types.Manifest) { m.Script = "" }, true},
		{"bad export", func(m *types.Manifest) { m.Exports = []string{"a-b"} }, true},
		{"bad category", func(m *types.Manifest) { m.Category = "Tools" }, true},
		{"duplicate setting", func(m *types.Manifest) {
			m.Settings = []types.SettingDefinition{{Key: "a"}, {Key: "a"}}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := manifest("notes", "")
			tt.mutate(m)
			err := Validate(m)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidManifest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		file string
		data string
	}{
		{"a.app.json", `{"id":"a","name":"A","script":"1","settings":[{"key":"k","value":"v"}]}`},
		{"a.app.yaml", "id: a\nname: A\nscript: \"1\"\nsettings:\n  - key: k\n    value: v\n"},
		{"a.app.yml", "id: a\nname: A\nscript: \"1\"\nsettings:\n  - key: k\n    value: v\n"},
		{"a.app.toml", "id = \"a\"\nname = \"A\"\nscript = \"1\"\n[[settings]]\nkey = \"k\"\nvalue = \"v\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			format, ok := FormatFor(tt.file)
			require.True(t, ok)
			m, err := Parse([]byte(tt.data), format)
			require.NoError(t, err)
			assert.Equal(t, "a", m.ID)
			assert.Equal(t, map[string]interface{}{"k": "v"}, m.Defaults())
		})
	}

	_, ok := FormatFor("readme.json")
	assert.False(t, ok)
	_, err := Parse([]byte("{"), FormatJSON)
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestManagerCRUD(t *testing.T) {
	ctx := context.Background()
	mgr, _, metrics := newManager(t)

	require.NoError(t, mgr.Save(ctx, manifest("notes", "productivity")))
	require.NoError(t, mgr.Save(ctx, manifest("chess", "games")))
	assert.Equal(t, 2, metrics.last)

	got, err := mgr.Get(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "App notes", got.Name)
	created := got.CreatedAt

	updated := manifest("notes", "productivity")
	updated.Name = "Notes"
	require.NoError(t, mgr.Save(ctx, updated))
	assert.True(t, created.Equal(updated.CreatedAt))

	games, err := mgr.List(ctx, "games")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "chess", games[0].ID)

	all, err := mgr.ListMetadata(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stats, err := mgr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPackages)
	assert.Equal(t, 1, stats.Categories["games"])

	require.NoError(t, mgr.Delete(ctx, "chess"))
	assert.ErrorIs(t, mgr.Delete(ctx, "chess"), ErrNotFound)
	_, err = mgr.Get(ctx, "chess")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mgr.Exists(ctx, "chess"))
	assert.Equal(t, 1, metrics.last)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t)

	a := manifest("notes", "productivity")
	a.Description = "Write things down"
	b := manifest("chess", "games")
	b.Tags = []string{"board"}
	require.NoError(t, mgr.Save(ctx, a))
	require.NoError(t, mgr.Save(ctx, b))

	res, err := mgr.Search(ctx, "BOARD")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "chess", res[0].ID)

	res, err = mgr.Search(ctx, "write")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "notes", res[0].ID)

	res, err = mgr.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestSeedDirResolvesFiles(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t)
	dir := t.TempDir()

	write := func(name, content string) {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("calc/calc.app.yaml", "id: calc\nname: Calculator\nscript_file: main.js\nhtml_file: view.html\n")
	write("calc/main.js", "expose('add', function (a, b) { return a + b; });")
	write("calc/view.html", "<div id='out'></div>")
	write("todo.app.toml", "id = \"todo\"\nname = \"Todo\"\nscript = \"1\"\n")
	write("broken.app.json", "{")
	write("escape.app.json", `{"id":"escape","name":"Escape","script_file":"../secret.js"}`)
	write("notes.txt", "ignored")

	res, err := NewSeeder(mgr, nil).SeedDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 2, res.Failed)

	calc, err := mgr.Get(ctx, "calc")
	require.NoError(t, err)
	assert.Contains(t, calc.Script, "expose('add'")
	assert.Equal(t, "<div id='out'></div>", calc.HTML)

	res, err = NewSeeder(mgr, nil).SeedDir(ctx, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, res.Loaded)
}

func TestSeedVFS(t *testing.T) {
	ctx := context.Background()
	mgr, fs, _ := newManager(t)

	require.NoError(t, fs.MkdirAll(ctx, "/apps/paint"))
	_, err := fs.WriteFile(ctx, "/apps/paint/paint.app.json", []byte(`{"id":"paint","name":"Paint","script_file":"paint.js"}`))
	require.NoError(t, err)
	_, err = fs.WriteFile(ctx, "/apps/paint/paint.js", []byte("var canvas = 1;"))
	require.NoError(t, err)

	res, err := NewSeeder(mgr, nil).SeedVFS(ctx, fs, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loaded)

	paint, err := mgr.Get(ctx, "paint")
	require.NoError(t, err)
	assert.Equal(t, "var canvas = 1;", paint.Script)
}

func TestSeedDefaultsSkipsInstalled(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t)

	custom := manifest("clock", "system")
	custom.Name = "My Clock"
	require.NoError(t, mgr.Save(ctx, custom))

	res, err := NewSeeder(mgr, nil).SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultApps())-1, res.Loaded)

	clock, err := mgr.Get(ctx, "clock")
	require.NoError(t, err)
	assert.Equal(t, "My Clock", clock.Name)
}

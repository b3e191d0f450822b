package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/database"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Connect(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, nil)
}

func TestSettingFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	s.RegisterDefaults("notes", map[string]interface{}{"theme": "light", "size": float64(12)})

	v, ok, err := s.GetAppSetting(ctx, "notes", "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)

	require.NoError(t, s.SetAppSetting(ctx, "notes", "theme", "dark"))
	v, ok, err = s.GetAppSetting(ctx, "notes", "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	_, ok, err = s.GetAppSetting(ctx, "notes", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DeleteAppSetting(ctx, "notes", "theme"))
	v, _, err = s.GetAppSetting(ctx, "notes", "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)
}

func TestAllAppSettingsMergesStoredOverDefaults(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	s.RegisterDefaults("notes", map[string]interface{}{"theme": "light", "size": float64(12)})
	require.NoError(t, s.SetAppSetting(ctx, "notes", "size", 14))
	require.NoError(t, s.SetAppSetting(ctx, "notes", "tags", []string{"a", "b"}))
	require.NoError(t, s.SetAppSetting(ctx, "other", "size", 99))

	all, err := s.AllAppSettings(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "light", all["theme"])
	assert.Equal(t, float64(14), all["size"])
	assert.Equal(t, []interface{}{"a", "b"}, all["tags"])

	apps, err := s.Apps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes", "other"}, apps)
}

func TestInvalidKeysRejected(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, s.SetAppSetting(context.Background(), "", "k", 1), ErrInvalidKey)
	_, _, err := s.GetAppSetting(context.Background(), "app", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestWindowStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.WindowState(ctx, "notes")
	assert.ErrorIs(t, err, ErrNotFound)

	want := types.WindowState{
		AppID:     "notes",
		Position:  types.WindowPosition{X: 10, Y: 20},
		Size:      types.WindowSize{Width: 640, Height: 480},
		Maximized: true,
	}
	require.NoError(t, s.SaveWindowState(ctx, want))
	want.Position.X = 30
	require.NoError(t, s.SaveWindowState(ctx, want))

	got, err := s.WindowState(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 30, got.Position.X)
	assert.Equal(t, 640, got.Size.Width)
	assert.True(t, got.Maximized)

	require.NoError(t, s.DeleteWindowState(ctx, "notes"))
	_, err = s.WindowState(ctx, "notes")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSecurePreferences(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.VerifySecure(ctx, "lock", "pin", "1234")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetSecure(ctx, "lock", "pin", "1234"))
	has, err := s.HasSecure(ctx, "lock", "pin")
	require.NoError(t, err)
	assert.True(t, has)

	ok, err := s.VerifySecure(ctx, "lock", "pin", "1234")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.VerifySecure(ctx, "lock", "pin", "0000")
	require.NoError(t, err)
	assert.False(t, ok)
}

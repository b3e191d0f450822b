// Package settings persists per-app settings, window geometry and hashed
// security preferences in the shared sqlite database.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

var (
	ErrNotFound   = errors.New("setting not found")
	ErrInvalidKey = errors.New("invalid setting key")
)

// Store implements capability.SettingsStore over sqlite
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	defaults map[string]map[string]interface{}
}

// NewStore creates a store on an already migrated database
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:       db,
		logger:   logger,
		now:      time.Now,
		defaults: make(map[string]map[string]interface{}),
	}
}

// RegisterDefaults installs the manifest defaults for an app, replacing any
// previously registered set
func (s *Store) RegisterDefaults(appID string, defaults map[string]interface{}) {
	cp := make(map[string]interface{}, len(defaults))
	for k, v := range defaults {
		cp[k] = v
	}
	s.mu.Lock()
	s.defaults[appID] = cp
	s.mu.Unlock()
}

func (s *Store) defaultFor(appID, key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.defaults[appID][key]
	return v, ok
}

// GetAppSetting returns the stored value, else the registered default
func (s *Store) GetAppSetting(ctx context.Context, appID, key string) (interface{}, bool, error) {
	if appID == "" || key == "" {
		return nil, false, ErrInvalidKey
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE app_id = ? AND key = ?`, appID, key).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		v, ok := s.defaultFor(appID, key)
		return v, ok, nil
	case err != nil:
		return nil, false, fmt.Errorf("get setting %s/%s: %w", appID, key, err)
	}

	var v interface{}
	if err := sonic.UnmarshalString(raw, &v); err != nil {
		return nil, false, fmt.Errorf("decode setting %s/%s: %w", appID, key, err)
	}
	return v, true, nil
}

// AllAppSettings merges defaults with stored values, stored values win
func (s *Store) AllAppSettings(ctx context.Context, appID string) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	s.mu.RLock()
	for k, v := range s.defaults[appID] {
		out[k] = v
	}
	s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_settings WHERE app_id = ?`, appID)
	if err != nil {
		return nil, fmt.Errorf("list settings %s: %w", appID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var v interface{}
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			s.logger.Warn("skipping undecodable setting",
				zap.String("app_id", appID), zap.String("key", key), zap.Error(err))
			continue
		}
		out[key] = v
	}
	return out, rows.Err()
}

// SetAppSetting stores value JSON-encoded
func (s *Store) SetAppSetting(ctx context.Context, appID, key string, value interface{}) error {
	if appID == "" || key == "" {
		return ErrInvalidKey
	}
	raw, err := sonic.MarshalString(value)
	if err != nil {
		return fmt.Errorf("encode setting %s/%s: %w", appID, key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_settings (app_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (app_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		appID, key, raw, s.now().Unix())
	if err != nil {
		return fmt.Errorf("set setting %s/%s: %w", appID, key, err)
	}
	s.logger.Debug("setting saved", zap.String("app_id", appID), zap.String("key", key))
	return nil
}

// DeleteAppSetting removes a stored value; the default, if any, shows again
func (s *Store) DeleteAppSetting(ctx context.Context, appID, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM app_settings WHERE app_id = ? AND key = ?`, appID, key)
	if err != nil {
		return fmt.Errorf("delete setting %s/%s: %w", appID, key, err)
	}
	return nil
}

// Apps lists app ids that have stored settings
func (s *Store) Apps(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT app_id FROM app_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}

// SaveWindowState persists window geometry for an app
func (s *Store) SaveWindowState(ctx context.Context, state types.WindowState) error {
	if state.AppID == "" {
		return ErrInvalidKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO window_states (app_id, x, y, width, height, maximized, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (app_id) DO UPDATE SET
			x = excluded.x, y = excluded.y, width = excluded.width, height = excluded.height,
			maximized = excluded.maximized, updated_at = excluded.updated_at`,
		state.AppID, state.Position.X, state.Position.Y, state.Size.Width, state.Size.Height,
		state.Maximized, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save window state %s: %w", state.AppID, err)
	}
	return nil
}

// WindowState loads the saved geometry; ErrNotFound when none was saved
func (s *Store) WindowState(ctx context.Context, appID string) (types.WindowState, error) {
	var (
		st      = types.WindowState{AppID: appID}
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT x, y, width, height, maximized, updated_at FROM window_states WHERE app_id = ?`, appID).
		Scan(&st.Position.X, &st.Position.Y, &st.Size.Width, &st.Size.Height, &st.Maximized, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return st, ErrNotFound
	}
	if err != nil {
		return st, fmt.Errorf("load window state %s: %w", appID, err)
	}
	st.UpdatedAt = time.Unix(updated, 0)
	return st, nil
}

// DeleteWindowState forgets saved geometry
func (s *Store) DeleteWindowState(ctx context.Context, appID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM window_states WHERE app_id = ?`, appID)
	return err
}

// SetSecure stores a bcrypt hash of plain under category/key
func (s *Store) SetSecure(ctx context.Context, category, key, plain string) error {
	if category == "" || key == "" {
		return ErrInvalidKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash %s/%s: %w", category, key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secure_prefs (category, key, hash, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (category, key) DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at`,
		category, key, hash, s.now().Unix())
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", category, key, err)
	}
	return nil
}

// VerifySecure reports whether plain matches the stored hash. A missing
// entry returns ErrNotFound.
func (s *Store) VerifySecure(ctx context.Context, category, key, plain string) (bool, error) {
	var hash []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM secure_prefs WHERE category = ? AND key = ?`, category, key).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(plain)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HasSecure reports whether category/key has a stored hash
func (s *Store) HasSecure(ctx context.Context, category, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM secure_prefs WHERE category = ? AND key = ?`, category, key).Scan(&n)
	return n > 0, err
}

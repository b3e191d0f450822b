package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

const (
	// MaxRegistryCacheSize defines the maximum number of packages in the registry cache
	MaxRegistryCacheSize = 1000
	// RegistryCacheEvictionThreshold defines when to trigger eviction (90% of max)
	RegistryCacheEvictionThreshold = 900
)

var ErrNotFound = errors.New("package not found")

// Metrics receives the package count
type Metrics interface {
	SetRegistryApps(count int)
}

// Manager handles package persistence
type Manager struct {
	db      *sql.DB
	logger  *zap.Logger
	metrics Metrics
	now     func() time.Time

	packages  sync.Map
	cacheSize int64
	evicting  int32
	writeMu   sync.Mutex
}

// NewManager creates a registry manager over a migrated database
func NewManager(db *sql.DB, logger *zap.Logger, metrics Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:      db,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Save validates and stores a package, replacing any package with the same id
func (m *Manager) Save(ctx context.Context, pkg *types.Manifest) error {
	if err := Validate(pkg); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	now := m.now()
	pkg.UpdatedAt = now
	if pkg.CreatedAt.IsZero() {
		if existing, err := m.load(ctx, pkg.ID); err == nil {
			pkg.CreatedAt = existing.CreatedAt
		} else {
			pkg.CreatedAt = now
		}
	}

	data, err := sonic.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("failed to marshal package: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO packages (id, category, manifest, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			category = excluded.category, manifest = excluded.manifest, updated_at = excluded.updated_at`,
		pkg.ID, pkg.Category, string(data), pkg.CreatedAt.UnixMilli(), pkg.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write package: %w", err)
	}

	m.cache(pkg)
	m.reportCount(ctx)
	m.logger.Debug("package saved", zap.String("id", pkg.ID))
	return nil
}

// Get loads a package by id
func (m *Manager) Get(ctx context.Context, id string) (*types.Manifest, error) {
	if cached, ok := m.packages.Load(id); ok {
		return cached.(*types.Manifest), nil
	}
	pkg, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	m.cache(pkg)
	return pkg, nil
}

func (m *Manager) load(ctx context.Context, id string) (*types.Manifest, error) {
	var raw string
	err := m.db.QueryRowContext(ctx, `SELECT manifest FROM packages WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package: %w", err)
	}

	var pkg types.Manifest
	if err := sonic.UnmarshalString(raw, &pkg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal package %s: %w", id, err)
	}
	if pkg.ID == "" {
		return nil, fmt.Errorf("package %s has empty ID field", id)
	}
	return &pkg, nil
}

// List returns packages sorted by id, filtered by category when not empty
func (m *Manager) List(ctx context.Context, category string) ([]*types.Manifest, error) {
	query := `SELECT manifest FROM packages ORDER BY id`
	args := []interface{}{}
	if category != "" {
		query = `SELECT manifest FROM packages WHERE category = ? ORDER BY id`
		args = append(args, category)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	packages := []*types.Manifest{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var pkg types.Manifest
		if err := sonic.UnmarshalString(raw, &pkg); err != nil {
			m.logger.Warn("skipping unreadable package", zap.Error(err))
			continue
		}
		packages = append(packages, &pkg)
	}
	return packages, rows.Err()
}

// ListMetadata lists metadata for all packages
func (m *Manager) ListMetadata(ctx context.Context, category string) ([]types.ManifestMetadata, error) {
	packages, err := m.List(ctx, category)
	if err != nil {
		return nil, err
	}

	metadata := make([]types.ManifestMetadata, len(packages))
	for i, pkg := range packages {
		metadata[i] = pkg.ToMetadata()
	}
	return metadata, nil
}

// Search matches query case-insensitively against id, name, description,
// category and tags
func (m *Manager) Search(ctx context.Context, query string) ([]types.ManifestMetadata, error) {
	packages, err := m.List(ctx, "")
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))

	out := []types.ManifestMetadata{}
	for _, pkg := range packages {
		if q == "" || matches(pkg, q) {
			out = append(out, pkg.ToMetadata())
		}
	}
	return out, nil
}

func matches(pkg *types.Manifest, q string) bool {
	fields := append([]string{pkg.ID, pkg.Name, pkg.Description, pkg.Category}, pkg.Tags...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Delete removes a package
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	res, err := m.db.ExecContext(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete package: %w", err)
	}
	if _, existed := m.packages.LoadAndDelete(id); existed {
		atomic.AddInt64(&m.cacheSize, -1)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.reportCount(ctx)
	return nil
}

// Exists checks if a package exists
func (m *Manager) Exists(ctx context.Context, id string) bool {
	if _, ok := m.packages.Load(id); ok {
		return true
	}
	_, err := m.load(ctx, id)
	return err == nil
}

// Stats returns registry statistics
func (m *Manager) Stats(ctx context.Context) (types.RegistryStats, error) {
	stats := types.RegistryStats{Categories: make(map[string]int)}

	rows, err := m.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM packages GROUP BY category`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return stats, err
		}
		stats.TotalPackages += n
		if category == "" {
			category = "uncategorized"
		}
		stats.Categories[category] += n
	}
	return stats, rows.Err()
}

// Categories lists the categories in use
func (m *Manager) Categories(ctx context.Context) ([]string, error) {
	stats, err := m.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(stats.Categories))
	for c := range stats.Categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Manager) reportCount(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`).Scan(&n); err == nil {
		m.metrics.SetRegistryApps(n)
	}
}

func (m *Manager) cache(pkg *types.Manifest) {
	if _, loaded := m.packages.Swap(pkg.ID, pkg); !loaded {
		if atomic.AddInt64(&m.cacheSize, 1) > RegistryCacheEvictionThreshold {
			m.evictCacheEntries()
		}
	}
}

// evictCacheEntries trims the cache when it grows too large. Only one
// goroutine evicts at a time; evicted packages are reloaded from the
// database on demand.
func (m *Manager) evictCacheEntries() {
	if !atomic.CompareAndSwapInt32(&m.evicting, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&m.evicting, 0)

	currentSize := atomic.LoadInt64(&m.cacheSize)
	if currentSize <= RegistryCacheEvictionThreshold {
		return
	}

	targetEvictions := currentSize - RegistryCacheEvictionThreshold + 100
	evicted := int64(0)

	// sync.Map has no order, so this drops arbitrary entries
	m.packages.Range(func(key, _ interface{}) bool {
		if evicted >= targetEvictions {
			return false
		}
		m.packages.Delete(key)
		evicted++
		return true
	})

	atomic.AddInt64(&m.cacheSize, -evicted)
}

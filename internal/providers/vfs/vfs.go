// Package vfs is the virtual file system shared by every app. Nodes live in
// the vfs_nodes table; file content is mime-typed on write and compressed
// at rest once it passes CompressThreshold.
package vfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/paths"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidName  = errors.New("invalid name")
	ErrNotFound     = errors.New("path not found")
	ErrExists       = errors.New("path already exists")
	ErrNotDirectory = errors.New("not a directory")
	ErrIsDirectory  = errors.New("is a directory")
	ErrProtected    = errors.New("path is protected")
)

const nodeColumns = `path, name, is_dir, size, mime, charset, compressed, created_at, modified_at`

// FS implements capability.FileSystem
type FS struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time

	// serialises check-then-write sequences
	mu sync.Mutex
}

// New creates a file system over a migrated database
func New(db *sql.DB, logger *zap.Logger) *FS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FS{db: db, logger: logger, now: time.Now}
}

// Bootstrap creates the standard directory layout
func (f *FS) Bootstrap(ctx context.Context) error {
	for _, dir := range paths.StandardDirectories() {
		if _, err := f.Mkdir(ctx, dir); err != nil && !errors.Is(err, ErrExists) {
			return fmt.Errorf("bootstrap %s: %w", dir, err)
		}
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanInfo(row interface{ Scan(...interface{}) error }) (types.FileInfo, error) {
	var (
		info             types.FileInfo
		created, updated int64
	)
	err := row.Scan(&info.Path, &info.Name, &info.IsDir, &info.Size, &info.MimeType,
		&info.Charset, &info.Compressed, &created, &updated)
	if err != nil {
		return info, err
	}
	info.CreatedAt = time.UnixMilli(created)
	info.ModifiedAt = time.UnixMilli(updated)
	return info, nil
}

func stat(ctx context.Context, q queryer, p string) (types.FileInfo, error) {
	info, err := scanInfo(q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM vfs_nodes WHERE path = ?`, p))
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return info, err
}

// parentDir checks that the parent of p exists and is a directory
func parentDir(ctx context.Context, q queryer, p string) (string, string, error) {
	parent, name := split(p)
	info, err := stat(ctx, q, parent)
	if err != nil {
		return "", "", err
	}
	if !info.IsDir {
		return "", "", fmt.Errorf("%w: %s", ErrNotDirectory, parent)
	}
	return parent, name, nil
}

// Stat returns metadata for a path
func (f *FS) Stat(ctx context.Context, p string) (types.FileInfo, error) {
	norm, err := Normalize(p)
	if err != nil {
		return types.FileInfo{}, err
	}
	return stat(ctx, f.db, norm)
}

// Exists reports whether p names a node
func (f *FS) Exists(ctx context.Context, p string) bool {
	_, err := f.Stat(ctx, p)
	return err == nil
}

// Mkdir creates a directory; the parent must already exist
func (f *FS) Mkdir(ctx context.Context, p string) (types.FileInfo, error) {
	norm, err := Normalize(p)
	if err != nil {
		return types.FileInfo{}, err
	}
	if norm == "/" {
		return types.FileInfo{}, fmt.Errorf("%w: /", ErrExists)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := stat(ctx, f.db, norm); err == nil {
		return types.FileInfo{}, fmt.Errorf("%w: %s", ErrExists, norm)
	}
	parent, name, err := parentDir(ctx, f.db, norm)
	if err != nil {
		return types.FileInfo{}, err
	}

	now := f.now().UnixMilli()
	_, err = f.db.ExecContext(ctx, `
		INSERT INTO vfs_nodes (path, parent, name, is_dir, created_at, modified_at)
		VALUES (?, ?, ?, 1, ?, ?)`, norm, parent, name, now, now)
	if err != nil {
		return types.FileInfo{}, fmt.Errorf("mkdir %s: %w", norm, err)
	}
	f.logger.Debug("directory created", zap.String("path", norm))
	return stat(ctx, f.db, norm)
}

// MkdirAll creates p and any missing parents
func (f *FS) MkdirAll(ctx context.Context, p string) error {
	norm, err := Normalize(p)
	if err != nil {
		return err
	}
	cur := ""
	for _, seg := range strings.Split(strings.TrimPrefix(norm, "/"), "/") {
		if seg == "" {
			continue
		}
		cur += "/" + seg
		if _, err := f.Mkdir(ctx, cur); err != nil && !errors.Is(err, ErrExists) {
			return err
		}
	}
	if info, err := f.Stat(ctx, norm); err != nil {
		return err
	} else if !info.IsDir {
		return fmt.Errorf("%w: %s", ErrNotDirectory, norm)
	}
	return nil
}

// WriteFile creates or replaces a file. The parent must be an existing
// directory and p must not name a directory.
func (f *FS) WriteFile(ctx context.Context, p string, data []byte) (types.FileInfo, error) {
	norm, err := Normalize(p)
	if err != nil {
		return types.FileInfo{}, err
	}
	if norm == "/" {
		return types.FileInfo{}, fmt.Errorf("%w: /", ErrIsDirectory)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := stat(ctx, f.db, norm)
	switch {
	case err == nil && existing.IsDir:
		return types.FileInfo{}, fmt.Errorf("%w: %s", ErrIsDirectory, norm)
	case err != nil && !errors.Is(err, ErrNotFound):
		return types.FileInfo{}, err
	}
	parent, name, err := parentDir(ctx, f.db, norm)
	if err != nil {
		return types.FileInfo{}, err
	}

	enc := encode(data)
	now := f.now().UnixMilli()
	_, err = f.db.ExecContext(ctx, `
		INSERT INTO vfs_nodes (path, parent, name, is_dir, content, size, mime, charset, compressed, created_at, modified_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			content = excluded.content, size = excluded.size, mime = excluded.mime,
			charset = excluded.charset, compressed = excluded.compressed, modified_at = excluded.modified_at`,
		norm, parent, name, enc.data, enc.size, enc.mime, enc.charset, enc.compressed, now, now)
	if err != nil {
		return types.FileInfo{}, fmt.Errorf("write %s: %w", norm, err)
	}

	f.logger.Debug("file written",
		zap.String("path", norm),
		zap.Int64("size", enc.size),
		zap.String("mime", enc.mime),
		zap.Bool("compressed", enc.compressed))
	return stat(ctx, f.db, norm)
}

// ReadFile returns a file's content and metadata
func (f *FS) ReadFile(ctx context.Context, p string) ([]byte, types.FileInfo, error) {
	norm, err := Normalize(p)
	if err != nil {
		return nil, types.FileInfo{}, err
	}

	var (
		info             types.FileInfo
		raw              []byte
		created, updated int64
	)
	err = f.db.QueryRowContext(ctx, `SELECT `+nodeColumns+`, content FROM vfs_nodes WHERE path = ?`, norm).
		Scan(&info.Path, &info.Name, &info.IsDir, &info.Size, &info.MimeType,
			&info.Charset, &info.Compressed, &created, &updated, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, info, fmt.Errorf("%w: %s", ErrNotFound, norm)
	}
	if err != nil {
		return nil, info, err
	}
	if info.IsDir {
		return nil, info, fmt.Errorf("%w: %s", ErrIsDirectory, norm)
	}
	info.CreatedAt = time.UnixMilli(created)
	info.ModifiedAt = time.UnixMilli(updated)

	data, err := decode(raw, info.Compressed)
	if err != nil {
		return nil, info, fmt.Errorf("read %s: %w", norm, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, info, nil
}

// List returns the direct children of a directory, directories first
func (f *FS) List(ctx context.Context, p string) ([]types.FileInfo, error) {
	norm, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	info, err := stat(ctx, f.db, norm)
	if err != nil {
		return nil, err
	}
	if !info.IsDir {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, norm)
	}

	rows, err := f.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM vfs_nodes WHERE parent = ? ORDER BY is_dir DESC, name`, norm)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", norm, err)
	}
	defer rows.Close()

	out := []types.FileInfo{}
	for rows.Next() {
		child, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, rows.Err()
}

// Delete removes a file, or a directory and everything below it
func (f *FS) Delete(ctx context.Context, p string) error {
	norm, err := Normalize(p)
	if err != nil {
		return err
	}
	if norm == "/" {
		return fmt.Errorf("%w: /", ErrProtected)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := stat(ctx, f.db, norm); err != nil {
		return err
	}
	prefix := descendantPrefix(norm)
	res, err := f.db.ExecContext(ctx,
		`DELETE FROM vfs_nodes WHERE path = ? OR substr(path, 1, ?) = ?`, norm, len(prefix), prefix)
	if err != nil {
		return fmt.Errorf("delete %s: %w", norm, err)
	}
	n, _ := res.RowsAffected()
	f.logger.Debug("path deleted", zap.String("path", norm), zap.Int64("nodes", n))
	return nil
}

// Rename moves a node and, for directories, everything below it. The target
// must not exist and its parent must be a directory.
func (f *FS) Rename(ctx context.Context, from, to string) error {
	src, err := Normalize(from)
	if err != nil {
		return err
	}
	dst, err := Normalize(to)
	if err != nil {
		return err
	}
	if src == "/" || dst == "/" {
		return fmt.Errorf("%w: /", ErrProtected)
	}
	if src == dst {
		return nil
	}
	if strings.HasPrefix(dst, descendantPrefix(src)) {
		return fmt.Errorf("%w: cannot move %s into itself", ErrInvalidPath, src)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := stat(ctx, tx, src); err != nil {
		return err
	}
	if _, err := stat(ctx, tx, dst); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	if _, _, err := parentDir(ctx, tx, dst); err != nil {
		return err
	}

	prefix := descendantPrefix(src)
	rows, err := tx.QueryContext(ctx,
		`SELECT path FROM vfs_nodes WHERE path = ? OR substr(path, 1, ?) = ?`, src, len(prefix), prefix)
	if err != nil {
		return err
	}
	var moving []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		moving = append(moving, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := f.now().UnixMilli()
	for _, old := range moving {
		next := dst + strings.TrimPrefix(old, src)
		parent, name := split(next)
		if _, err := tx.ExecContext(ctx,
			`UPDATE vfs_nodes SET path = ?, parent = ?, name = ?, modified_at = ? WHERE path = ?`,
			next, parent, name, now, old); err != nil {
			return fmt.Errorf("rename %s: %w", old, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	f.logger.Debug("path renamed", zap.String("from", src), zap.String("to", dst), zap.Int("nodes", len(moving)))
	return nil
}

// Glob returns nodes whose path matches a doublestar pattern. Relative
// patterns are anchored at the root.
func (f *FS) Glob(ctx context.Context, pattern string) ([]types.FileInfo, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPath)
	}
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: bad pattern %q", ErrInvalidPath, pattern)
	}

	rows, err := f.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM vfs_nodes WHERE path != '/'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.FileInfo{}
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		if ok, _ := doublestar.Match(pattern, info.Path); ok {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, rows.Err()
}

// Stats counts files and directories below the root
func (f *FS) Stats(ctx context.Context) (types.FSStats, error) {
	var st types.FSStats
	err := f.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_dir = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_dir = 1 AND path != '/' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_dir = 0 THEN size ELSE 0 END), 0)
		FROM vfs_nodes`).Scan(&st.Files, &st.Directories, &st.TotalBytes)
	return st, err
}

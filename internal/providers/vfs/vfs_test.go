package vfs

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/database"
)

func newFS(t *testing.T) *FS {
	t.Helper()
	db, err := database.Connect(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil)
}

func names(t *testing.T, fs *FS, dir string) []string {
	t.Helper()
	list, err := fs.List(context.Background(), dir)
	require.NoError(t, err)
	out := make([]string, 0, len(list))
	for _, info := range list {
		out = append(out, info.Name)
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"/", "/", false},
		{"//", "/", false},
		{"a/b", "/a/b", false},
		{"/a//b/", "/a/b", false},
		{"", "", true},
		{"/a/../b", "", true},
		{"/a/.hidden", "", true},
		{"/a/b?", "", true},
		{"/a/ b", "", true},
		{"/café", "", true},
		{"/" + strings.Repeat("x", MaxNameLength+1), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMkdirAndWrite(t *testing.T) {
	ctx := context.Background()
	fs := newFS(t)

	_, err := fs.Mkdir(ctx, "/docs")
	require.NoError(t, err)
	_, err = fs.Mkdir(ctx, "/docs")
	assert.ErrorIs(t, err, ErrExists)
	_, err = fs.Mkdir(ctx, "/missing/child")
	assert.ErrorIs(t, err, ErrNotFound)

	info, err := fs.WriteFile(ctx, "/docs/a.txt", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
	assert.True(t, strings.HasPrefix(info.MimeType, "text/plain"))
	assert.False(t, info.Compressed)

	_, err = fs.WriteFile(ctx, "/docs/a.txt/b", []byte("x"))
	assert.ErrorIs(t, err, ErrNotDirectory)
	_, err = fs.WriteFile(ctx, "/docs", []byte("x"))
	assert.ErrorIs(t, err, ErrIsDirectory)

	_, err = fs.WriteFile(ctx, "/docs/a.txt", []byte("bye"))
	require.NoError(t, err)
	data, info, err := fs.ReadFile(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))
	assert.Equal(t, int64(3), info.Size)
}

func TestLargeFilesAreCompressed(t *testing.T) {
	ctx := context.Background()
	fs := newFS(t)

	big := bytes.Repeat([]byte("compressible line of text\n"), 1000)
	info, err := fs.WriteFile(ctx, "/big.txt", big)
	require.NoError(t, err)
	assert.True(t, info.Compressed)
	assert.Equal(t, int64(len(big)), info.Size)

	data, _, err := fs.ReadFile(ctx, "/big.txt")
	require.NoError(t, err)
	assert.Equal(t, big, data)

	st, err := fs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, int64(len(big)), st.TotalBytes)
}

func TestListOrdersDirectoriesFirst(t *testing.T) {
	ctx := context.Background()
	fs := newFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("a"))
	require.NoError(t, err)
	_, err = fs.Mkdir(ctx, "/zeta")
	require.NoError(t, err)
	_, err = fs.Mkdir(ctx, "/alpha")
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "zeta", "a.txt"}, names(t, fs, "/"))

	_, err = fs.List(ctx, "/a.txt")
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestDeleteIsRecursive(t *testing.T) {
	ctx := context.Background()
	fs := newFS(t)

	require.NoError(t, fs.MkdirAll(ctx, "/p/q/r"))
	_, err := fs.WriteFile(ctx, "/p/q/r/f.txt", []byte("x"))
	require.NoError(t, err)
	_, err = fs.WriteFile(ctx, "/pq.txt", []byte("sibling sharing a prefix"))
	require.NoError(t, err)

	require.NoError(t, fs.Delete(ctx, "/p"))
	assert.False(t, fs.Exists(ctx, "/p/q/r/f.txt"))
	assert.False(t, fs.Exists(ctx, "/p"))
	assert.True(t, fs.Exists(ctx, "/pq.txt"))

	assert.ErrorIs(t, fs.Delete(ctx, "/"), ErrProtected)
	assert.ErrorIs(t, fs.Delete(ctx, "/p"), ErrNotFound)
}

func TestRenameMovesChildren(t *testing.T) {
	ctx := context.Background()
	fs := newFS(t)

	require.NoError(t, fs.MkdirAll(ctx, "/src/inner"))
	_, err := fs.WriteFile(ctx, "/src/inner/f.txt", []byte("content"))
	require.NoError(t, err)
	_, err = fs.Mkdir(ctx, "/dst")
	require.NoError(t, err)

	require.NoError(t, fs.Rename(ctx, "/src", "/dst/moved"))
	assert.False(t, fs.Exists(ctx, "/src"))

	data, info, err := fs.ReadFile(ctx, "/dst/moved/inner/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.Equal(t, "f.txt", info.Name)
	assert.Equal(t, []string{"inner"}, names(t, fs, "/dst/moved"))

	assert.ErrorIs(t, fs.Rename(ctx, "/dst", "/dst/moved/deeper"), ErrInvalidPath)
	assert.ErrorIs(t, fs.Rename(ctx, "/dst", "/"), ErrProtected)
	assert.ErrorIs(t, fs.Rename(ctx, "/nope", "/other"), ErrNotFound)

	_, err = fs.Mkdir(ctx, "/taken")
	require.NoError(t, err)
	assert.ErrorIs(t, fs.Rename(ctx, "/dst", "/taken"), ErrExists)
}

func TestGlob(t *testing.T) {
	ctx := context.Background()
	fs := newFS(t)

	require.NoError(t, fs.MkdirAll(ctx, "/user/docs/deep"))
	for _, p := range []string{"/user/a.txt", "/user/docs/b.txt", "/user/docs/deep/c.txt", "/user/docs/d.md"} {
		_, err := fs.WriteFile(ctx, p, []byte(p))
		require.NoError(t, err)
	}

	matches, err := fs.Glob(ctx, "user/**/*.txt")
	require.NoError(t, err)
	var got []string
	for _, m := range matches {
		got = append(got, m.Path)
	}
	assert.Equal(t, []string{"/user/a.txt", "/user/docs/b.txt", "/user/docs/deep/c.txt"}, got)

	_, err = fs.Glob(ctx, "/user/[")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestBootstrapIsRepeatable(t *testing.T) {
	ctx := context.Background()
	fs := newFS(t)

	require.NoError(t, fs.Bootstrap(ctx))
	require.NoError(t, fs.Bootstrap(ctx))
	assert.True(t, fs.Exists(ctx, "/user/documents"))
	assert.True(t, fs.Exists(ctx, "/apps"))
}

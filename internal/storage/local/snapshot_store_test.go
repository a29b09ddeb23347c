package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{BaseDir: "   "})
	require.Error(t, err)
}

func TestNewCreatesMissingBaseDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "snapshots")
	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPutWritesCityPageFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.Put(context.Background(), "New York", 2, strings.NewReader("<html>page two</html>"))
	require.NoError(t, err)

	path := filepath.Join(dir, "new-york", "page-002.html")
	require.Equal(t, "file://"+path, uri)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "<html>page two</html>", string(data))
}

func TestPutRejectsEmptyCity(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "", 1, strings.NewReader("x"))
	require.Error(t, err)
}

func TestPutSanitizesTraversalAttempts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	// Separators in the city name collapse into hyphens instead of
	// escaping the base directory.
	uri, err := store.Put(context.Background(), "../escape", 1, strings.NewReader("x"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"+dir+string(filepath.Separator)))
}

package local

import (
	"bytes"
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
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "jobs/1.csv", "text/csv", bytes.NewReader([]byte("url,emails\n")))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	content, err := os.ReadFile(filepath.Join(dir, "jobs", "1.csv"))
	require.NoError(t, err)
	require.Equal(t, "url,emails\n", string(content))
}

func TestPutObjectRejectsEscapingPath(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.csv", "text/csv", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

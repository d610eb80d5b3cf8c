package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldenglass/vfsdiff/scanner/ignore"
	"github.com/eldenglass/vfsdiff/vfs/local"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o777))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o666))
	}
}

func TestScanLocalFindsAllEntries(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":        "a",
		"sub/b.txt":    "b",
		"sub/c/d.txt":  "d",
		"other/e.txt":  "e",
	})
	v, err := local.New(root)
	require.NoError(t, err)

	entries, err := Scan(context.Background(), v, "", Options{})
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, string(e.Path))
	}
	require.Contains(t, paths, "a.txt")
	require.Contains(t, paths, "sub/b.txt")
	require.Contains(t, paths, "sub/c/d.txt")
	require.Contains(t, paths, "other/e.txt")
	require.Contains(t, paths, "sub")
	require.Contains(t, paths, "sub/c")
	require.Contains(t, paths, "other")
}

func TestScanRespectsIgnoreRules(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.txt":     "k",
		"skip.tmp":     "s",
		"build/out.o":  "o",
	})
	v, err := local.New(root)
	require.NoError(t, err)

	rules, err := ignore.ParseLines("*.tmp\n/build/\n")
	require.NoError(t, err)

	entries, err := Scan(context.Background(), v, "", Options{Ignore: rules})
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, string(e.Path))
	}
	require.Contains(t, paths, "keep.txt")
	require.NotContains(t, paths, "skip.tmp")
	require.NotContains(t, paths, "build")
	require.NotContains(t, paths, "build/out.o")
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})
	v, err := local.New(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Scan(ctx, v, "", Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScanGenericMatchesLocal(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"x/y.txt": "y",
	})
	v, err := local.New(root)
	require.NoError(t, err)

	entries, err := scanGeneric(context.Background(), v, "", Options{})
	require.NoError(t, err)

	found := false
	for _, e := range entries {
		if string(e.Path) == "x/y.txt" {
			found = true
		}
	}
	require.True(t, found)
}

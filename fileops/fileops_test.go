package fileops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldenglass/vfsdiff/copytransfer"
)

func TestCopyDryRunDoesNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hi"), 0o666))
	dest := filepath.Join(dir, "b.txt")

	err := Copy(src, dest, copytransfer.Options{CheckpointDir: dir}, Options{DryRun: true})
	require.NoError(t, err)
	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err))
}

func TestMoveSameFilesystem(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hi"), 0o666))
	dest := filepath.Join(dir, "sub", "b.txt")

	err := Move(src, dest, copytransfer.Options{CheckpointDir: dir}, Options{})
	require.NoError(t, err)

	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "hi", string(got))
}

func TestDeleteHardRemovesFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o666))

	require.NoError(t, Delete(p, Options{}))
	_, err := os.Stat(p)
	require.True(t, os.IsNotExist(err))
}

func TestTouchCreatesThenUpdates(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "new.txt")

	require.NoError(t, Touch(p, Options{}))
	info1, err := os.Stat(p)
	require.NoError(t, err)

	require.NoError(t, Touch(p, Options{}))
	info2, err := os.Stat(p)
	require.NoError(t, err)
	require.False(t, info2.ModTime().Before(info1.ModTime()))
}

func TestBatchDeleteAllPaths(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o666))
		paths = append(paths, p)
	}
	require.NoError(t, BatchDelete(paths, Options{}))
	for _, p := range paths {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err))
	}
}

package ziparc

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldenglass/vfsdiff/vfs"
)

func writeTestZip(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	w, err := zw.Create("sub/a.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)

	w, err = zw.Create("top.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("xy"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestOpenReadOnlyListsEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.zip")
	writeTestZip(t, path)

	ro, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, "zip:"+path, ro.InstanceID())

	meta, err := ro.Metadata("sub/a.txt")
	require.NoError(t, err)
	require.Equal(t, int64(5), meta.Size)

	meta, err = ro.Metadata("sub")
	require.NoError(t, err)
	require.True(t, meta.IsDir)

	root, err := ro.ReadDir("")
	require.NoError(t, err)
	var names []string
	for _, e := range root {
		names = append(names, string(e.Path))
	}
	require.Contains(t, names, "top.txt")
	require.Contains(t, names, "sub")
}

func TestOpenReadOnlyOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.zip")
	writeTestZip(t, path)

	ro, err := Open(path)
	require.NoError(t, err)

	rc, err := ro.OpenFile("sub/a.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestOpenReadOnlyMetadataNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.zip")
	writeTestZip(t, path)

	ro, err := Open(path)
	require.NoError(t, err)

	_, err = ro.Metadata("missing")
	require.True(t, vfs.IsKind(err, vfs.KindNotFound))
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.zip")
	writeTestZip(t, path)

	ro, err := Open(path)
	require.NoError(t, err)

	require.True(t, vfs.IsKind(ro.WriteFile("a", nil), vfs.KindUnsupported))
	require.False(t, ro.IsWritable())
	require.NoError(t, ro.Flush())
}

func TestReadWriteRoundTripAndFlush(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rw.zip")
	writeTestZip(t, path)

	rw, err := OpenWritable(path)
	require.NoError(t, err)
	defer rw.Close()

	meta, err := rw.Metadata("sub/a.txt")
	require.NoError(t, err)
	require.Equal(t, int64(5), meta.Size)

	require.NoError(t, rw.WriteFile("new.txt", []byte("new")))
	require.NoError(t, rw.Flush())

	ro, err := Open(path)
	require.NoError(t, err)
	meta, err = ro.Metadata("new.txt")
	require.NoError(t, err)
	require.Equal(t, int64(3), meta.Size)
	// original entries survive the rebuild
	meta, err = ro.Metadata("sub/a.txt")
	require.NoError(t, err)
	require.Equal(t, int64(5), meta.Size)
}

func TestOpenWritableCreatesNewArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.zip")

	rw, err := OpenWritable(path)
	require.NoError(t, err)
	defer rw.Close()

	require.NoError(t, rw.WriteFile("a.txt", []byte("x")))
	require.NoError(t, rw.Flush())

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestReadWriteCapabilities(t *testing.T) {
	dir := t.TempDir()
	rw, err := OpenWritable(filepath.Join(dir, "fresh.zip"))
	require.NoError(t, err)
	defer rw.Close()

	caps := rw.Capabilities()
	require.True(t, caps.CanWrite)
	require.True(t, rw.IsWritable())
}

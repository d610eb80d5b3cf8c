package local

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eldenglass/vfsdiff/vfs"
)

func TestNewRejectsNothingMakesAbsolute(t *testing.T) {
	dir := t.TempDir()
	v, err := New(dir)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(v.Root))
	require.Equal(t, "local:"+v.Root, v.InstanceID())
}

func TestWriteReadRoundTrip(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, v.WriteFile("sub/a.txt", []byte("hello")))

	meta, err := v.Metadata("sub/a.txt")
	require.NoError(t, err)
	require.Equal(t, int64(5), meta.Size)
	require.False(t, meta.IsDir)

	rc, err := v.OpenFile("sub/a.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestMetadataNotFound(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = v.Metadata("missing.txt")
	require.Error(t, err)
	require.True(t, vfs.IsKind(err, vfs.KindNotFound))
}

func TestReadDirListsChildrenIncludingSymlinks(t *testing.T) {
	dir := t.TempDir()
	v, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, v.CreateDir("sub"))
	require.NoError(t, v.WriteFile("sub/a.txt", []byte("1")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "sub", "a.txt"), filepath.Join(dir, "sub", "link.txt")))

	entries, err := v.ReadDir("sub")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, string(e.Path))
	}
	require.Contains(t, names, "sub/a.txt")
	require.Contains(t, names, "sub/link.txt")
}

func TestReadDirRejectsFile(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, v.WriteFile("a.txt", []byte("x")))

	_, err = v.ReadDir("a.txt")
	require.Error(t, err)
	require.True(t, vfs.IsKind(err, vfs.KindNotADirectory))
}

func TestOpenFileRejectsDir(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, v.CreateDir("sub"))

	_, err = v.OpenFile("sub")
	require.Error(t, err)
	require.True(t, vfs.IsKind(err, vfs.KindNotAFile))
}

func TestRemoveFile(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, v.WriteFile("a.txt", []byte("x")))
	require.NoError(t, v.RemoveFile("a.txt"))

	_, err = v.Metadata("a.txt")
	require.True(t, vfs.IsKind(err, vfs.KindNotFound))
}

func TestCopyFile(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, v.WriteFile("a.txt", []byte("x")))
	require.NoError(t, v.CopyFile("a.txt", "sub/b.txt"))

	meta, err := v.Metadata("sub/b.txt")
	require.NoError(t, err)
	require.Equal(t, int64(1), meta.Size)
}

func TestRename(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, v.WriteFile("a.txt", []byte("x")))
	require.NoError(t, v.Rename("a.txt", "sub/b.txt"))

	_, err = v.Metadata("a.txt")
	require.True(t, vfs.IsKind(err, vfs.KindNotFound))
	_, err = v.Metadata("sub/b.txt")
	require.NoError(t, err)
}

func TestSetMTimeTruncatesToSecond(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, v.WriteFile("a.txt", []byte("x")))

	mtime := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	require.NoError(t, v.SetMTime("a.txt", mtime))

	meta, err := v.Metadata("a.txt")
	require.NoError(t, err)
	require.True(t, meta.ModTime.Equal(mtime.Truncate(time.Second)))
}

func TestCapabilitiesAreFullyWritable(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)
	caps := v.Capabilities()
	require.True(t, caps.CanRead)
	require.True(t, caps.CanWrite)
	require.True(t, v.IsWritable())
	require.NoError(t, v.Flush())
}

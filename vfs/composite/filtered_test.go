package composite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldenglass/vfsdiff/vfs"
	"github.com/eldenglass/vfsdiff/vfs/local"
)

func setupTree(t *testing.T) *local.VFS {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.go"), []byte("x"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.tmp"), []byte("x"), 0o666))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "vendor"), 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor", "lib.go"), []byte("x"), 0o666))
	v, err := local.New(dir)
	require.NoError(t, err)
	return v
}

func TestFilteredExcludeHidesPath(t *testing.T) {
	v := setupTree(t)
	f := NewFiltered(v, nil, []string{"*.tmp", "vendor/**"})

	entries, err := f.ReadDir("")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, string(e.Path))
	}
	require.Contains(t, names, "keep.go")
	require.NotContains(t, names, "skip.tmp")
	require.NotContains(t, names, "vendor")

	_, err = f.OpenFile("skip.tmp")
	require.Error(t, err)
	var verr *vfs.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, vfs.KindNotFound, verr.Kind)
}

func TestFilteredIncludeNarrowsVisibility(t *testing.T) {
	v := setupTree(t)
	f := NewFiltered(v, []string{"*.go"}, nil)

	_, err := f.Metadata("keep.go")
	require.NoError(t, err)
	_, err = f.Metadata("skip.tmp")
	require.Error(t, err)
}

func TestFilteredWriteOutsideScopeUnsupported(t *testing.T) {
	v := setupTree(t)
	f := NewFiltered(v, nil, []string{"*.tmp"})

	err := f.WriteFile("skip.tmp", []byte("y"))
	require.Error(t, err)
	var verr *vfs.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, vfs.KindUnsupported, verr.Kind)
}

func TestFilteredDelegatesCapabilities(t *testing.T) {
	v := setupTree(t)
	f := NewFiltered(v, nil, nil)
	require.Equal(t, v.Capabilities(), f.Capabilities())
	require.Equal(t, v.IsWritable(), f.IsWritable())
}

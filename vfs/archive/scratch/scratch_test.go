package scratch

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCreatesUniqueDirs(t *testing.T) {
	a, err := New("vfsdiff-test")
	require.NoError(t, err)
	defer a.Close()
	b, err := New("vfsdiff-test")
	require.NoError(t, err)
	defer b.Close()

	require.NotEqual(t, a.Path, b.Path)
	require.NotNil(t, a.VFS)

	info, err := os.Stat(a.Path)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestCloseRemovesDir(t *testing.T) {
	d, err := New("vfsdiff-test")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = os.Stat(d.Path)
	require.True(t, os.IsNotExist(err))
}

func TestScratchDirIsWritableViaVFS(t *testing.T) {
	d, err := New("vfsdiff-test")
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.VFS.WriteFile("a.txt", []byte("x")))
	meta, err := d.VFS.Metadata("a.txt")
	require.NoError(t, err)
	require.Equal(t, int64(1), meta.Size)
}

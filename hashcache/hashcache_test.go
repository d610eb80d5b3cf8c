package hashcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eldenglass/vfsdiff/vfs"
)

func TestCacheGetPutRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	key := NewKey("/abs/path/a.txt", 123, time.Unix(1000, 0))
	_, ok := c.Get(key)
	require.False(t, ok)

	var digest vfs.Digest
	digest[0] = 0xAB
	c.Put(key, digest)

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, digest, got)
}

func TestCachePersistAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")

	c, err := Open(path)
	require.NoError(t, err)

	key := NewKey("/abs/path/b.txt", 456, time.Unix(2000, 0))
	var digest vfs.Digest
	digest[1] = 0xCD
	c.Put(key, digest)
	require.NoError(t, c.Persist())
	require.NoError(t, c.Close())

	c2, err := Open(path)
	require.NoError(t, err)
	defer c2.Close()

	got, ok := c2.Get(key)
	require.True(t, ok)
	require.Equal(t, digest, got)
}

func TestResolveLocationOverride(t *testing.T) {
	path, err := ResolveLocation("/explicit/dir", "/configured/dir")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/explicit/dir", cacheFileName), path)
}

func TestResolveLocationConfigured(t *testing.T) {
	path, err := ResolveLocation("", "/configured/dir")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/configured/dir", cacheFileName), path)
}

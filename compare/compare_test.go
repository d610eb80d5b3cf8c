package compare

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eldenglass/vfsdiff/vfs"
)

func writeFile(t *testing.T, dir, name, content string, mtime time.Time) vfs.Entry {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(full, []byte(content), 0o666))
	require.NoError(t, os.Chtimes(full, mtime, mtime))
	fi, err := os.Stat(full)
	require.NoError(t, err)
	return vfs.Entry{Path: vfs.Path(name), Size: fi.Size(), ModTime: fi.ModTime()}
}

func TestTwoWayOrphans(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	le := writeFile(t, leftDir, "only-left.txt", "x", time.Now())
	re := writeFile(t, rightDir, "only-right.txt", "y", time.Now())

	nodes, err := TwoWay(context.Background(), Side{Root: leftDir}, Side{Root: rightDir},
		[]vfs.Entry{le}, []vfs.Entry{re}, false)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	byPath := map[string]vfs.DiffStatus{}
	for _, n := range nodes {
		byPath[string(n.Path)] = n.Status
	}
	require.Equal(t, vfs.OrphanLeft, byPath["only-left.txt"])
	require.Equal(t, vfs.OrphanRight, byPath["only-right.txt"])
}

func TestTwoWayFastPathSameMTime(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	le := writeFile(t, leftDir, "x.txt", "abcd", mtime)
	re := writeFile(t, rightDir, "x.txt", "abce", mtime)

	nodes, err := TwoWay(context.Background(), Side{Root: leftDir}, Side{Root: rightDir},
		[]vfs.Entry{le}, []vfs.Entry{re}, false)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, vfs.Same, nodes[0].Status)
}

func TestTwoWayVerifyHashesCatchesContentChange(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	le := writeFile(t, leftDir, "x.txt", "abcd", mtime)
	re := writeFile(t, rightDir, "x.txt", "abce", mtime)

	nodes, err := TwoWay(context.Background(), Side{Root: leftDir}, Side{Root: rightDir},
		[]vfs.Entry{le}, []vfs.Entry{re}, true)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, vfs.Different, nodes[0].Status)
}

func TestTwoWaySizeMismatchAlwaysDifferent(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	now := time.Now()
	le := writeFile(t, leftDir, "x.txt", "short", now)
	re := writeFile(t, rightDir, "x.txt", "a much longer body", now)

	nodes, err := TwoWay(context.Background(), Side{Root: leftDir}, Side{Root: rightDir},
		[]vfs.Entry{le}, []vfs.Entry{re}, false)
	require.NoError(t, err)
	require.Equal(t, vfs.Different, nodes[0].Status)
}

func TestProbeIdempotent(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 200*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(path, content, 0o666))

	d1, err := probeLocal(path, int64(len(content)))
	require.NoError(t, err)
	d2, err := probeLocal(path, int64(len(content)))
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestThreeWayAllSame(t *testing.T) {
	baseDir, leftDir, rightDir := t.TempDir(), t.TempDir(), t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	be := writeFile(t, baseDir, "a.txt", "same", mtime)
	le := writeFile(t, leftDir, "a.txt", "same", mtime)
	re := writeFile(t, rightDir, "a.txt", "same", mtime)

	nodes, err := ThreeWay(context.Background(),
		Side{Root: baseDir}, Side{Root: leftDir}, Side{Root: rightDir},
		[]vfs.Entry{be}, []vfs.Entry{le}, []vfs.Entry{re})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, vfs.AllSame, nodes[0].Status)
}

func TestThreeWayLeftChanged(t *testing.T) {
	baseDir, leftDir, rightDir := t.TempDir(), t.TempDir(), t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	be := writeFile(t, baseDir, "a.txt", "base", mtime)
	le := writeFile(t, leftDir, "a.txt", "left-edit", mtime)
	re := writeFile(t, rightDir, "a.txt", "base", mtime)

	nodes, err := ThreeWay(context.Background(),
		Side{Root: baseDir}, Side{Root: leftDir}, Side{Root: rightDir},
		[]vfs.Entry{be}, []vfs.Entry{le}, []vfs.Entry{re})
	require.NoError(t, err)
	require.Equal(t, vfs.LeftChanged, nodes[0].Status)
}

func TestThreeWayBaseOnly(t *testing.T) {
	baseDir := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	be := writeFile(t, baseDir, "gone.txt", "x", mtime)

	nodes, err := ThreeWay(context.Background(),
		Side{Root: baseDir}, Side{Root: t.TempDir()}, Side{Root: t.TempDir()},
		[]vfs.Entry{be}, nil, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, vfs.BaseOnly, nodes[0].Status)
}

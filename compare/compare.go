// Package compare implements the two-way and three-way comparison
// engines: given entry sets from a scan, it classifies each relative
// path as Same, Different, an orphan, or (three-way) one of the
// richer base/left/right statuses.
package compare

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"lukechampine.com/blake3"

	"github.com/eldenglass/vfsdiff/hashcache"
	"github.com/eldenglass/vfsdiff/vfs"
)

// probeWindow is the size of each window the partial-hash probe reads;
// files no larger than three windows are hashed in full instead.
const probeWindow = 16 * 1024

// streamChunk is the buffer size used for full-content streaming hashes.
const streamChunk = 64 * 1024

// Side bundles everything the comparator needs about one side of a
// comparison: its VFS (nil means the native local filesystem), the
// root the entries are relative to, and an optional hash cache (used
// only when VFS is nil, since the cache key is local-path coordinates).
type Side struct {
	VFS   vfs.VFS // nil => local filesystem at Root
	Root  string  // OS-native root path when VFS is nil; otherwise the VFS-relative root
	Cache *hashcache.Cache
}

func (s Side) isLocal() bool { return s.VFS == nil }

// DiffNode is one two-way comparison result.
type DiffNode struct {
	Path   vfs.Path
	Left   *vfs.Entry
	Right  *vfs.Entry
	Status vfs.DiffStatus
}

// TwoWay compares left and right entry sets per §4.I. Cancellation is
// polled once per sorted-union key.
func TwoWay(ctx context.Context, left, right Side, leftEntries, rightEntries []vfs.Entry, verifyHashes bool) ([]DiffNode, error) {
	leftMap := indexByRelPath(leftEntries)
	rightMap := indexByRelPath(rightEntries)

	keys := unionKeys(leftMap, rightMap)
	nodes := make([]DiffNode, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, vfs.NewError(vfs.KindCancelled, "two_way", vfs.Path(key), err)
		}
		le, lok := leftMap[key]
		re, rok := rightMap[key]
		node := DiffNode{Path: vfs.Path(key)}
		if lok {
			e := le
			node.Left = &e
		}
		if rok {
			e := re
			node.Right = &e
		}
		switch {
		case lok && !rok:
			node.Status = vfs.OrphanLeft
		case !lok && rok:
			node.Status = vfs.OrphanRight
		case le.IsDir && re.IsDir:
			node.Status = vfs.Same
		case le.IsDir != re.IsDir:
			node.Status = vfs.Different
		default:
			status, err := compareFiles(ctx, left, right, le, re, verifyHashes)
			if err != nil {
				return nil, err
			}
			node.Status = status
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func indexByRelPath(entries []vfs.Entry) map[string]vfs.Entry {
	m := make(map[string]vfs.Entry, len(entries))
	for _, e := range entries {
		m[string(e.Path)] = e
	}
	return m
}

func unionKeys(a, b map[string]vfs.Entry) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// compareFiles is the file comparator described in §4.I.
func compareFiles(ctx context.Context, left, right Side, le, re vfs.Entry, verifyHashes bool) (vfs.DiffStatus, error) {
	if le.Size != re.Size {
		return vfs.Different, nil
	}
	if !verifyHashes {
		if le.ModTime.Equal(re.ModTime) {
			return vfs.Same, nil
		}
		return vfs.Unchecked, nil
	}
	if left.isLocal() && right.isLocal() {
		leftPath := filepath.Join(left.Root, filepath.FromSlash(string(le.Path)))
		rightPath := filepath.Join(right.Root, filepath.FromSlash(string(re.Path)))

		lProbe, err := probeLocal(leftPath, le.Size)
		if err != nil {
			return 0, err
		}
		rProbe, err := probeLocal(rightPath, re.Size)
		if err != nil {
			return 0, err
		}
		if lProbe != rProbe {
			return vfs.Different, nil
		}

		lDigest, err := fullHashLocalCached(leftPath, le, left.Cache)
		if err != nil {
			return 0, err
		}
		rDigest, err := fullHashLocalCached(rightPath, re, right.Cache)
		if err != nil {
			return 0, err
		}
		if lDigest == rDigest {
			return vfs.Same, nil
		}
		return vfs.Different, nil
	}

	lDigest, err := fullHashEither(left, le.Path)
	if err != nil {
		return 0, err
	}
	rDigest, err := fullHashEither(right, re.Path)
	if err != nil {
		return 0, err
	}
	if lDigest == rDigest {
		return vfs.Same, nil
	}
	return vfs.Different, nil
}

// probeLocal runs the partial-hash probe against a native file.
func probeLocal(path string, size int64) (vfs.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return vfs.Digest{}, vfs.NewError(vfs.KindIO, "probe", vfs.Path(path), err)
	}
	defer f.Close()
	return probeReader(f, size)
}

// probeReader implements the windowed probe: small files are hashed
// whole; larger files hash three 16 KiB windows (head, middle, tail)
// fed into one streaming hasher in that order. It never declares Same
// on its own — callers treat equal probes only as "not yet ruled out".
func probeReader(r io.ReaderAt, size int64) (vfs.Digest, error) {
	h := blake3.New(32, nil)
	const w = probeWindow
	if size <= 3*w {
		if _, err := io.Copy(h, io.NewSectionReader(r, 0, size)); err != nil {
			return vfs.Digest{}, vfs.NewError(vfs.KindIO, "probe", "", err)
		}
		return digestFromHasher(h), nil
	}
	mid := size/2 - w/2
	windows := []int64{0, mid, size - w}
	for _, off := range windows {
		if _, err := io.Copy(h, io.NewSectionReader(r, off, w)); err != nil {
			return vfs.Digest{}, vfs.NewError(vfs.KindIO, "probe", "", err)
		}
	}
	return digestFromHasher(h), nil
}

func digestFromHasher(h *blake3.Hasher) vfs.Digest {
	var d vfs.Digest
	copy(d[:], h.Sum(nil))
	return d
}

// fullHashLocalCached hashes a local file, consulting the hash cache
// first by (canonical path, size, mtime) and populating it on miss.
func fullHashLocalCached(path string, e vfs.Entry, cache *hashcache.Cache) (vfs.Digest, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return vfs.Digest{}, vfs.NewError(vfs.KindIO, "hash", vfs.Path(path), err)
	}
	if cache != nil {
		key := hashcache.NewKey(canonical, e.Size, e.ModTime)
		if d, ok := cache.Get(key); ok {
			return d, nil
		}
		d, err := fullHashLocal(path)
		if err != nil {
			return vfs.Digest{}, err
		}
		cache.Put(key, d)
		return d, nil
	}
	return fullHashLocal(path)
}

func fullHashLocal(path string) (vfs.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return vfs.Digest{}, vfs.NewError(vfs.KindIO, "hash", vfs.Path(path), err)
	}
	defer f.Close()
	return streamHash(f)
}

// fullHashEither streams an entry through a 64 KiB-chunked hasher,
// reading from the VFS when present or the native filesystem
// otherwise. Used whenever either side of a comparison is VFS-backed,
// since the hash cache's key space is local-path coordinates only.
func fullHashEither(side Side, path vfs.Path) (vfs.Digest, error) {
	if side.isLocal() {
		return fullHashLocal(filepath.Join(side.Root, filepath.FromSlash(string(path))))
	}
	rc, err := side.VFS.OpenFile(path)
	if err != nil {
		return vfs.Digest{}, err
	}
	defer rc.Close()
	return streamHash(rc)
}

func streamHash(r io.Reader) (vfs.Digest, error) {
	h := blake3.New(32, nil)
	buf := make([]byte, streamChunk)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return vfs.Digest{}, vfs.NewError(vfs.KindIO, "hash", "", err)
	}
	return digestFromHasher(h), nil
}

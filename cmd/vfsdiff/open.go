package main

import (
	"fmt"
	"os"

	"github.com/eldenglass/vfsdiff/compare"
	"github.com/eldenglass/vfsdiff/hashcache"
	"github.com/eldenglass/vfsdiff/vfs"
	"github.com/eldenglass/vfsdiff/vfs/archive/archivekind"
	"github.com/eldenglass/vfsdiff/vfs/archive/compressedarc"
	"github.com/eldenglass/vfsdiff/vfs/archive/rararc"
	"github.com/eldenglass/vfsdiff/vfs/archive/sevenziparc"
	"github.com/eldenglass/vfsdiff/vfs/archive/tararc"
	"github.com/eldenglass/vfsdiff/vfs/archive/ziparc"
	"github.com/eldenglass/vfsdiff/vfs/local"
)

// openedTree is a hierarchy resolved from a LEFT/RIGHT CLI argument:
// either a directory (scanned through a local.VFS, compared natively)
// or an archive (scanned through one of the archive VFS backends).
type openedTree struct {
	vfs  vfs.VFS
	side compare.Side
}

// openTree resolves path to a directory, an archive file, or a remote
// URL, per spec §6 ("LEFT/RIGHT may be directories OR archive files")
// and §4.E (SFTP/S3/WebDAV remote VFSes).
func openTree(path string) (*openedTree, error) {
	if isRemoteURL(path) {
		return openRemote(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if info.IsDir() {
		v, err := local.New(path)
		if err != nil {
			return nil, err
		}
		return &openedTree{vfs: v, side: compare.Side{Root: path}}, nil
	}

	kind := archivekind.Detect(path)
	var v vfs.VFS
	switch kind {
	case archivekind.Zip:
		v, err = ziparc.Open(path)
	case archivekind.Tar:
		v, err = tararc.Open(path, false)
	case archivekind.TarGz:
		v, err = tararc.Open(path, true)
	case archivekind.SevenZip:
		v, err = sevenziparc.Open(path)
	case archivekind.Rar:
		v, err = rararc.Open(path)
	case archivekind.Compressed:
		v, err = compressedarc.OpenReadOnly(path)
	default:
		return nil, fmt.Errorf("open %s: not a directory and no known archive suffix", path)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &openedTree{vfs: v, side: compare.Side{VFS: v}}, nil
}

// attachCache wires a hash cache into a local-filesystem side. Archive
// and remote sides are never given one: the cache key space is local
// path coordinates only.
func attachCache(t *openedTree, cache *hashcache.Cache) {
	if t.side.VFS == nil {
		t.side.Cache = cache
	}
}


// Package scratch implements the "extract into a scoped temporary
// directory, delegate reads/writes to a LocalVFS over it" pattern
// shared by the read-write ZIP and TAR VFSes and by the read-only 7z
// and RAR VFSes (which lack useful streaming primitives in their Go
// libraries). The single-file compressed archive VFS does not use it.
package scratch

import (
	"os"

	"github.com/google/uuid"

	"github.com/eldenglass/vfsdiff/vfs"
	"github.com/eldenglass/vfsdiff/vfs/local"
)

// Dir is a scoped temporary directory wrapping a LocalVFS. Its
// lifetime is tied to whatever archive VFS created it; Close removes
// it from disk.
type Dir struct {
	Path string
	VFS  *local.VFS
}

// New creates a fresh scratch directory under the OS temp dir, named
// uniquely so concurrent archive VFS instances never collide.
func New(prefix string) (*Dir, error) {
	dir, err := os.MkdirTemp("", prefix+"-"+uuid.NewString())
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "scratch_new", "", err)
	}
	lv, err := local.New(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &Dir{Path: dir, VFS: lv}, nil
}

// Close removes the scratch directory and everything staged in it.
func (d *Dir) Close() error {
	return os.RemoveAll(d.Path)
}

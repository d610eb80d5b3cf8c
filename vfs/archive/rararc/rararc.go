// Package rararc provides a read-only VFS view over a RAR archive
// file. RAR's own format offers no good pure-Go streaming primitive,
// so (as with 7z) this backend extracts the whole archive into a
// scoped scratch directory at construction using go-unarr, which
// binds libarchive/unarr — the OS-level unrar library the spec calls
// for — and delegates all reads to a LocalVFS over that directory.
package rararc

import (
	"fmt"
	"time"

	"github.com/gen2brain/go-unarr"

	"github.com/eldenglass/vfsdiff/vfs"
	"github.com/eldenglass/vfsdiff/vfs/archive/scratch"
)

// VFS is a read-only view over the fully-extracted contents of a RAR
// archive.
type VFS struct {
	archivePath string
	scratch     *scratch.Dir
}

// Open extracts archivePath into a fresh scratch directory.
func Open(archivePath string) (*VFS, error) {
	a, err := unarr.NewArchive(archivePath)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
	}
	defer a.Close()

	s, err := scratch.New("rararc")
	if err != nil {
		return nil, err
	}
	if _, err := a.Extract(s.VFS.Root); err != nil {
		s.Close()
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
	}
	return &VFS{archivePath: archivePath, scratch: s}, nil
}

func (v *VFS) Close() error { return v.scratch.Close() }

func (v *VFS) InstanceID() string { return "rar:" + v.archivePath }

func (v *VFS) Metadata(p vfs.Path) (vfs.Metadata, error)   { return v.scratch.VFS.Metadata(p) }
func (v *VFS) ReadDir(p vfs.Path) ([]vfs.Entry, error)     { return v.scratch.VFS.ReadDir(p) }
func (v *VFS) OpenFile(p vfs.Path) (vfs.ReadStream, error) { return v.scratch.VFS.OpenFile(p) }
func (v *VFS) CreateFile(vfs.Path) (vfs.WriteSink, error) {
	return nil, vfs.NewError(vfs.KindUnsupported, "create_file", "", fmt.Errorf("read-only rar"))
}
func (v *VFS) WriteFile(vfs.Path, []byte) error {
	return vfs.NewError(vfs.KindUnsupported, "write_file", "", fmt.Errorf("read-only rar"))
}
func (v *VFS) RemoveFile(vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "remove_file", "", fmt.Errorf("read-only rar"))
}
func (v *VFS) CopyFile(_, dest vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "copy_file", dest, fmt.Errorf("read-only rar"))
}
func (v *VFS) Rename(_, to vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "rename", to, fmt.Errorf("read-only rar"))
}
func (v *VFS) CreateDir(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "create_dir", p, fmt.Errorf("read-only rar"))
}
func (v *VFS) CreateDirAll(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "create_dir_all", p, fmt.Errorf("read-only rar"))
}
func (v *VFS) SetMTime(p vfs.Path, _ time.Time) error {
	return vfs.NewError(vfs.KindUnsupported, "set_mtime", p, fmt.Errorf("read-only rar"))
}
func (v *VFS) Flush() error                   { return nil }
func (v *VFS) Capabilities() vfs.Capabilities { return vfs.Capabilities{CanRead: true} }
func (v *VFS) IsWritable() bool               { return false }

// Package composite provides VFS wrappers that compose other VFS
// instances: FilteredVFS narrows visibility by glob, UnionVFS layers
// several VFSes into one merged view.
package composite

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/eldenglass/vfsdiff/vfs"
)

// Filtered wraps a VFS with ordered include/exclude glob lists, per
// §4.F: a path is visible iff no exclude matches and (includes is
// empty or some include matches). Glob matching uses doublestar so
// "**" behaves the same way it does in the ignore engine's gitignore
// patterns, without re-deriving that semantics a second time.
type Filtered struct {
	inner    vfs.VFS
	includes []string
	excludes []string
}

// NewFiltered wraps inner with the given include/exclude pattern lists.
func NewFiltered(inner vfs.VFS, includes, excludes []string) *Filtered {
	return &Filtered{inner: inner, includes: includes, excludes: excludes}
}

func (f *Filtered) visible(p vfs.Path) bool {
	path := string(p)
	for _, pat := range f.excludes {
		if ok, _ := doublestar.Match(pat, path); ok {
			return false
		}
	}
	if len(f.includes) == 0 {
		return true
	}
	for _, pat := range f.includes {
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
	}
	return false
}

func notFound(op string, p vfs.Path) error {
	return vfs.NewError(vfs.KindNotFound, op, p, fmt.Errorf("filtered out"))
}

func (f *Filtered) InstanceID() string { return "filtered:" + f.inner.InstanceID() }

func (f *Filtered) Metadata(p vfs.Path) (vfs.Metadata, error) {
	if !f.visible(p) {
		return vfs.Metadata{}, notFound("metadata", p)
	}
	return f.inner.Metadata(p)
}

func (f *Filtered) ReadDir(p vfs.Path) ([]vfs.Entry, error) {
	entries, err := f.inner.ReadDir(p)
	if err != nil {
		return nil, err
	}
	var out []vfs.Entry
	for _, e := range entries {
		if f.visible(e.Path) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Filtered) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	if !f.visible(p) {
		return nil, notFound("open_file", p)
	}
	return f.inner.OpenFile(p)
}

func (f *Filtered) CreateFile(p vfs.Path) (vfs.WriteSink, error) {
	if !f.visible(p) {
		return nil, vfs.NewError(vfs.KindUnsupported, "create_file", p, fmt.Errorf("path is filtered out"))
	}
	return f.inner.CreateFile(p)
}

func (f *Filtered) WriteFile(p vfs.Path, data []byte) error {
	if !f.visible(p) {
		return vfs.NewError(vfs.KindUnsupported, "write_file", p, fmt.Errorf("path is filtered out"))
	}
	return f.inner.WriteFile(p, data)
}

func (f *Filtered) RemoveFile(p vfs.Path) error {
	if !f.visible(p) {
		return notFound("remove_file", p)
	}
	return f.inner.RemoveFile(p)
}

func (f *Filtered) CopyFile(src, dest vfs.Path) error {
	if !f.visible(src) || !f.visible(dest) {
		return vfs.NewError(vfs.KindUnsupported, "copy_file", dest, fmt.Errorf("path is filtered out"))
	}
	return f.inner.CopyFile(src, dest)
}

func (f *Filtered) Rename(from, to vfs.Path) error {
	if !f.visible(from) || !f.visible(to) {
		return vfs.NewError(vfs.KindUnsupported, "rename", from, fmt.Errorf("path is filtered out"))
	}
	return f.inner.Rename(from, to)
}

func (f *Filtered) CreateDir(p vfs.Path) error {
	if !f.visible(p) {
		return vfs.NewError(vfs.KindUnsupported, "create_dir", p, fmt.Errorf("path is filtered out"))
	}
	return f.inner.CreateDir(p)
}

func (f *Filtered) CreateDirAll(p vfs.Path) error {
	if !f.visible(p) {
		return vfs.NewError(vfs.KindUnsupported, "create_dir_all", p, fmt.Errorf("path is filtered out"))
	}
	return f.inner.CreateDirAll(p)
}

func (f *Filtered) SetMTime(p vfs.Path, t time.Time) error {
	if !f.visible(p) {
		return vfs.NewError(vfs.KindUnsupported, "set_mtime", p, fmt.Errorf("path is filtered out"))
	}
	return f.inner.SetMTime(p, t)
}

func (f *Filtered) Flush() error { return f.inner.Flush() }

func (f *Filtered) Capabilities() vfs.Capabilities { return f.inner.Capabilities() }

func (f *Filtered) IsWritable() bool { return f.inner.IsWritable() }

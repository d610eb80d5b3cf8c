package composite

import (
	"fmt"
	"time"

	"github.com/eldenglass/vfsdiff/vfs"
)

// Union stacks several VFSes, later layers taking precedence, per
// §4.F. Reads scan top to bottom and return the first hit; read_dir
// merges every layer's listing, later layers overriding entries at
// the same relative path; writes target the highest writable layer.
type Union struct {
	layers []vfs.VFS // layers[0] is the bottom (lowest precedence) layer
}

// NewUnion stacks layers in precedence order: later elements win.
func NewUnion(layers ...vfs.VFS) *Union {
	return &Union{layers: layers}
}

// topDown iterates layers from highest precedence to lowest.
func (u *Union) topDown() []vfs.VFS {
	out := make([]vfs.VFS, len(u.layers))
	for i, l := range u.layers {
		out[len(u.layers)-1-i] = l
	}
	return out
}

func (u *Union) InstanceID() string {
	id := "union:"
	for i, l := range u.layers {
		if i > 0 {
			id += "+"
		}
		id += l.InstanceID()
	}
	return id
}

func (u *Union) Metadata(p vfs.Path) (vfs.Metadata, error) {
	var lastErr error
	for _, l := range u.topDown() {
		m, err := l.Metadata(p)
		if err == nil {
			return m, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no layers")
	}
	return vfs.Metadata{}, lastErr
}

func (u *Union) ReadDir(p vfs.Path) ([]vfs.Entry, error) {
	merged := make(map[vfs.Path]vfs.Entry)
	found := false
	for _, l := range u.layers { // bottom to top, so later layers overwrite
		entries, err := l.ReadDir(p)
		if err != nil {
			continue
		}
		found = true
		for _, e := range entries {
			merged[e.Path] = e
		}
	}
	if !found {
		return nil, vfs.NewError(vfs.KindNotFound, "read_dir", p, fmt.Errorf("no layer has %q", p))
	}
	out := make([]vfs.Entry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	vfs.SortEntries(out)
	return out, nil
}

func (u *Union) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	var lastErr error
	for _, l := range u.topDown() {
		rc, err := l.OpenFile(p)
		if err == nil {
			return rc, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no layers")
	}
	return nil, lastErr
}

// highestWritable returns the highest-precedence layer that can honor
// a write, or nil if none can.
func (u *Union) highestWritable() vfs.VFS {
	for _, l := range u.topDown() {
		if l.IsWritable() {
			return l
		}
	}
	return nil
}

func unsupported(op string, p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, op, p, fmt.Errorf("no writable layer"))
}

func (u *Union) CreateFile(p vfs.Path) (vfs.WriteSink, error) {
	l := u.highestWritable()
	if l == nil {
		return nil, unsupported("create_file", p)
	}
	return l.CreateFile(p)
}

func (u *Union) WriteFile(p vfs.Path, data []byte) error {
	l := u.highestWritable()
	if l == nil {
		return unsupported("write_file", p)
	}
	return l.WriteFile(p, data)
}

func (u *Union) RemoveFile(p vfs.Path) error {
	l := u.highestWritable()
	if l == nil {
		return unsupported("remove_file", p)
	}
	return l.RemoveFile(p)
}

func (u *Union) CopyFile(src, dest vfs.Path) error {
	l := u.highestWritable()
	if l == nil {
		return unsupported("copy_file", dest)
	}
	return l.CopyFile(src, dest)
}

func (u *Union) Rename(from, to vfs.Path) error {
	l := u.highestWritable()
	if l == nil {
		return unsupported("rename", from)
	}
	return l.Rename(from, to)
}

func (u *Union) CreateDir(p vfs.Path) error {
	l := u.highestWritable()
	if l == nil {
		return unsupported("create_dir", p)
	}
	return l.CreateDir(p)
}

func (u *Union) CreateDirAll(p vfs.Path) error {
	l := u.highestWritable()
	if l == nil {
		return unsupported("create_dir_all", p)
	}
	return l.CreateDirAll(p)
}

func (u *Union) SetMTime(p vfs.Path, t time.Time) error {
	l := u.highestWritable()
	if l == nil {
		return unsupported("set_mtime", p)
	}
	return l.SetMTime(p, t)
}

func (u *Union) Flush() error {
	for _, l := range u.layers {
		if err := l.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (u *Union) Capabilities() vfs.Capabilities {
	var c vfs.Capabilities
	for _, l := range u.layers {
		lc := l.Capabilities()
		c.CanRead = c.CanRead || lc.CanRead
		c.CanWrite = c.CanWrite || lc.CanWrite
		c.CanDelete = c.CanDelete || lc.CanDelete
		c.CanRename = c.CanRename || lc.CanRename
		c.CanCreateDir = c.CanCreateDir || lc.CanCreateDir
		c.CanSetMTime = c.CanSetMTime || lc.CanSetMTime
	}
	return c
}

func (u *Union) IsWritable() bool { return u.highestWritable() != nil }

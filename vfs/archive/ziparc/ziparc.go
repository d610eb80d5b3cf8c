// Package ziparc provides read-only and read-write VFS views over a
// ZIP archive file.
package ziparc

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eldenglass/vfsdiff/vfs"
	"github.com/eldenglass/vfsdiff/vfs/archive/scratch"
)

// ReadOnly is a read-only VFS view over an existing ZIP file.
// Metadata and ReadDir enumerate the ZIP's table of contents;
// directories are synthesized from entry names containing a path
// separator, per spec §4.D. OpenFile extracts the entry into a memory
// buffer and returns a cursor over it — most archive libraries don't
// offer cheap random-access streaming, and VFS consumers typically
// hash an entry once and discard it.
type ReadOnly struct {
	archivePath string
	mu          sync.Mutex
	dirs        map[vfs.Path]bool
	files       map[vfs.Path]*zip.File
	children    map[vfs.Path][]vfs.Entry
}

// Open opens the ZIP file at archivePath for reading.
func Open(archivePath string) (*ReadOnly, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
	}
	defer r.Close()

	ro := &ReadOnly{
		archivePath: archivePath,
		dirs:        map[vfs.Path]bool{"": true},
		files:       map[vfs.Path]*zip.File{},
		children:    map[vfs.Path][]vfs.Entry{},
	}
	for _, f := range r.File {
		name := strings.TrimSuffix(f.Name, "/")
		if name == "" {
			continue
		}
		p := vfs.Path(name)
		if strings.HasSuffix(f.Name, "/") {
			ro.dirs[p] = true
			continue
		}
		ro.files[p] = f
		for _, anc := range p.Ancestors() {
			ro.dirs[anc] = true
		}
	}
	for p := range ro.files {
		dir := p.Dir()
		ro.children[dir] = append(ro.children[dir], vfs.Entry{Path: p})
	}
	for d := range ro.dirs {
		if d == "" {
			continue
		}
		parent := d.Dir()
		ro.children[parent] = append(ro.children[parent], vfs.Entry{Path: d, IsDir: true})
	}
	for _, f := range r.File {
		name := strings.TrimSuffix(f.Name, "/")
		if name == "" || strings.HasSuffix(f.Name, "/") {
			continue
		}
		p := vfs.Path(name)
		for i, e := range ro.children[p.Dir()] {
			if e.Path == p {
				ro.children[p.Dir()][i].Size = int64(f.UncompressedSize64)
				ro.children[p.Dir()][i].ModTime = f.Modified
			}
		}
	}
	for dir, entries := range ro.children {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
		ro.children[dir] = entries
	}
	return ro, nil
}

func (r *ReadOnly) InstanceID() string { return "zip:" + r.archivePath }

func (r *ReadOnly) Metadata(p vfs.Path) (vfs.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dirs[p] {
		return vfs.Metadata{IsDir: true}, nil
	}
	if f, ok := r.files[p]; ok {
		return vfs.Metadata{Size: int64(f.UncompressedSize64), ModTime: f.Modified}, nil
	}
	return vfs.Metadata{}, vfs.NewError(vfs.KindNotFound, "metadata", p, fmt.Errorf("not in archive"))
}

func (r *ReadOnly) ReadDir(p vfs.Path) ([]vfs.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirs[p] {
		return nil, vfs.NewError(vfs.KindNotFound, "read_dir", p, fmt.Errorf("not a directory in archive"))
	}
	return append([]vfs.Entry(nil), r.children[p]...), nil
}

func (r *ReadOnly) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	r.mu.Lock()
	f, ok := r.files[p]
	r.mu.Unlock()
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "open_file", p, fmt.Errorf("not in archive"))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	defer rc.Close()
	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (r *ReadOnly) CreateFile(vfs.Path) (vfs.WriteSink, error) {
	return nil, vfs.NewError(vfs.KindUnsupported, "create_file", "", fmt.Errorf("read-only zip"))
}
func (r *ReadOnly) WriteFile(vfs.Path, []byte) error {
	return vfs.NewError(vfs.KindUnsupported, "write_file", "", fmt.Errorf("read-only zip"))
}
func (r *ReadOnly) RemoveFile(vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "remove_file", "", fmt.Errorf("read-only zip"))
}
func (r *ReadOnly) CopyFile(_, dest vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "copy_file", dest, fmt.Errorf("read-only zip"))
}
func (r *ReadOnly) Rename(_, to vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "rename", to, fmt.Errorf("read-only zip"))
}
func (r *ReadOnly) CreateDir(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "create_dir", p, fmt.Errorf("read-only zip"))
}
func (r *ReadOnly) CreateDirAll(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "create_dir_all", p, fmt.Errorf("read-only zip"))
}
func (r *ReadOnly) SetMTime(p vfs.Path, _ time.Time) error {
	return vfs.NewError(vfs.KindUnsupported, "set_mtime", p, fmt.Errorf("read-only zip"))
}
func (r *ReadOnly) Flush() error { return nil }
func (r *ReadOnly) Capabilities() vfs.Capabilities {
	return vfs.Capabilities{CanRead: true}
}
func (r *ReadOnly) IsWritable() bool { return false }

// ReadWrite is a read-write VFS view over a ZIP file. Construction
// extracts any existing archive into a scoped scratch directory and
// wraps it in a LocalVFS; a dirty flag is set by every mutating
// operation. Flush rebuilds the ZIP file from the scratch directory
// when dirty, matching the scratch-and-rebuild pattern in spec §4.D.
type ReadWrite struct {
	archivePath string
	scratch     *scratch.Dir

	mu    sync.Mutex
	dirty bool
}

// OpenWritable opens (or creates) a writable ZIP VFS at archivePath.
func OpenWritable(archivePath string) (*ReadWrite, error) {
	s, err := scratch.New("ziparc")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(archivePath); err == nil {
		if err := extractInto(archivePath, s); err != nil {
			s.Close()
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		s.Close()
		return nil, vfs.NewError(vfs.KindIO, "open_writable", vfs.Path(archivePath), err)
	}
	return &ReadWrite{archivePath: archivePath, scratch: s}, nil
}

func extractInto(archivePath string, s *scratch.Dir) error {
	ro, err := Open(archivePath)
	if err != nil {
		return err
	}
	var walk func(p vfs.Path) error
	walk = func(p vfs.Path) error {
		entries, err := ro.ReadDir(p)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir {
				if err := s.VFS.CreateDirAll(e.Path); err != nil {
					return err
				}
				if err := walk(e.Path); err != nil {
					return err
				}
				continue
			}
			rc, err := ro.OpenFile(e.Path)
			if err != nil {
				return err
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			if err := s.VFS.WriteFile(e.Path, data); err != nil {
				return err
			}
		}
		return nil
	}
	return walk("")
}

// Close discards the scratch directory without rebuilding the
// archive. Callers that want changes persisted must call Flush first.
func (w *ReadWrite) Close() error { return w.scratch.Close() }

func (w *ReadWrite) InstanceID() string { return "zip-rw:" + w.archivePath }

func (w *ReadWrite) markDirty() {
	w.mu.Lock()
	w.dirty = true
	w.mu.Unlock()
}

func (w *ReadWrite) Metadata(p vfs.Path) (vfs.Metadata, error) { return w.scratch.VFS.Metadata(p) }
func (w *ReadWrite) ReadDir(p vfs.Path) ([]vfs.Entry, error)   { return w.scratch.VFS.ReadDir(p) }
func (w *ReadWrite) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	return w.scratch.VFS.OpenFile(p)
}

type dirtySink struct {
	vfs.WriteSink
	w *ReadWrite
}

func (s *dirtySink) Close() error {
	s.w.markDirty()
	return s.WriteSink.Close()
}

func (w *ReadWrite) CreateFile(p vfs.Path) (vfs.WriteSink, error) {
	sink, err := w.scratch.VFS.CreateFile(p)
	if err != nil {
		return nil, err
	}
	return &dirtySink{WriteSink: sink, w: w}, nil
}

func (w *ReadWrite) WriteFile(p vfs.Path, data []byte) error {
	if err := w.scratch.VFS.WriteFile(p, data); err != nil {
		return err
	}
	w.markDirty()
	return nil
}

func (w *ReadWrite) RemoveFile(p vfs.Path) error {
	if err := w.scratch.VFS.RemoveFile(p); err != nil {
		return err
	}
	w.markDirty()
	return nil
}

func (w *ReadWrite) CopyFile(src, dest vfs.Path) error {
	if err := w.scratch.VFS.CopyFile(src, dest); err != nil {
		return err
	}
	w.markDirty()
	return nil
}

func (w *ReadWrite) Rename(from, to vfs.Path) error {
	if err := w.scratch.VFS.Rename(from, to); err != nil {
		return err
	}
	w.markDirty()
	return nil
}

func (w *ReadWrite) CreateDir(p vfs.Path) error {
	if err := w.scratch.VFS.CreateDir(p); err != nil {
		return err
	}
	w.markDirty()
	return nil
}

func (w *ReadWrite) CreateDirAll(p vfs.Path) error {
	if err := w.scratch.VFS.CreateDirAll(p); err != nil {
		return err
	}
	w.markDirty()
	return nil
}

func (w *ReadWrite) SetMTime(p vfs.Path, t time.Time) error {
	if err := w.scratch.VFS.SetMTime(p, t); err != nil {
		return err
	}
	w.markDirty()
	return nil
}

// Flush rebuilds the ZIP file from the scratch directory if dirty,
// then clears the dirty flag. Idempotent.
func (w *ReadWrite) Flush() error {
	w.mu.Lock()
	dirty := w.dirty
	w.mu.Unlock()
	if !dirty {
		return nil
	}
	tmp := w.archivePath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(w.archivePath), err)
	}
	zw := zip.NewWriter(out)

	var walk func(p vfs.Path) error
	walk = func(p vfs.Path) error {
		entries, err := w.scratch.VFS.ReadDir(p)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir {
				hdr := &zip.FileHeader{Name: string(e.Path) + "/", Modified: e.ModTime}
				if _, err := zw.CreateHeader(hdr); err != nil {
					return err
				}
				if err := walk(e.Path); err != nil {
					return err
				}
				continue
			}
			rc, err := w.scratch.VFS.OpenFile(e.Path)
			if err != nil {
				return err
			}
			hdr := &zip.FileHeader{Name: string(e.Path), Modified: e.ModTime, Method: zip.Deflate}
			fw, err := zw.CreateHeader(hdr)
			if err != nil {
				rc.Close()
				return err
			}
			if _, err := io.Copy(fw, rc); err != nil {
				rc.Close()
				return err
			}
			rc.Close()
		}
		return nil
	}
	if err := walk(""); err != nil {
		zw.Close()
		out.Close()
		os.Remove(tmp)
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(w.archivePath), err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(w.archivePath), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(w.archivePath), err)
	}
	if err := os.Rename(tmp, w.archivePath); err != nil {
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(w.archivePath), err)
	}
	w.mu.Lock()
	w.dirty = false
	w.mu.Unlock()
	return nil
}

func (w *ReadWrite) Capabilities() vfs.Capabilities {
	return vfs.Capabilities{
		CanRead: true, CanWrite: true, CanDelete: true,
		CanRename: true, CanCreateDir: true, CanSetMTime: true,
	}
}
func (w *ReadWrite) IsWritable() bool { return true }

// Package tararc provides read-only and read-write VFS views over TAR
// and gzip-framed TAR (.tar.gz/.tgz) archive files.
package tararc

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
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

type entry struct {
	meta vfs.Metadata
	data []byte // nil for directories
}

// ReadOnly is a read-only VFS view over a TAR or TAR.GZ file. TAR has
// no central directory, so unlike ZIP the whole archive is read
// sequentially and buffered into memory once at Open time; OpenFile
// then just hands back the buffered bytes.
type ReadOnly struct {
	archivePath string
	gzipped     bool

	mu       sync.Mutex
	dirs     map[vfs.Path]bool
	files    map[vfs.Path]entry
	children map[vfs.Path][]vfs.Entry
}

// Open opens the TAR (or TAR.GZ, when gzipped is true) file at
// archivePath for reading.
func Open(archivePath string, gzipped bool) (*ReadOnly, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
		}
		defer gr.Close()
		r = gr
	}

	ro := &ReadOnly{
		archivePath: archivePath,
		gzipped:     gzipped,
		dirs:        map[vfs.Path]bool{"": true},
		files:       map[vfs.Path]entry{},
		children:    map[vfs.Path][]vfs.Entry{},
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(hdr.Name, "./"), "/")
		if name == "" {
			continue
		}
		p := vfs.Path(name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			ro.dirs[p] = true
		case tar.TypeReg, tar.TypeRegA:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
			}
			ro.files[p] = entry{meta: vfs.Metadata{Size: hdr.Size, ModTime: hdr.ModTime}, data: data}
			for _, anc := range p.Ancestors() {
				ro.dirs[anc] = true
			}
		default:
			// symlinks and other special types are skipped; the
			// spec materializes symlinks as their target kind only
			// when a scanner follows them, which happens above the
			// VFS layer.
		}
	}

	for p, e := range ro.files {
		ro.children[p.Dir()] = append(ro.children[p.Dir()], vfs.Entry{Path: p, Size: e.meta.Size, ModTime: e.meta.ModTime})
	}
	for d := range ro.dirs {
		if d == "" {
			continue
		}
		ro.children[d.Dir()] = append(ro.children[d.Dir()], vfs.Entry{Path: d, IsDir: true})
	}
	for dir, entries := range ro.children {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
		ro.children[dir] = entries
	}
	return ro, nil
}

func (r *ReadOnly) InstanceID() string { return "tar:" + r.archivePath }

func (r *ReadOnly) Metadata(p vfs.Path) (vfs.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dirs[p] {
		return vfs.Metadata{IsDir: true}, nil
	}
	if e, ok := r.files[p]; ok {
		return e.meta, nil
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
	e, ok := r.files[p]
	r.mu.Unlock()
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "open_file", p, fmt.Errorf("not in archive"))
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func (r *ReadOnly) CreateFile(vfs.Path) (vfs.WriteSink, error) {
	return nil, vfs.NewError(vfs.KindUnsupported, "create_file", "", fmt.Errorf("read-only tar"))
}
func (r *ReadOnly) WriteFile(vfs.Path, []byte) error {
	return vfs.NewError(vfs.KindUnsupported, "write_file", "", fmt.Errorf("read-only tar"))
}
func (r *ReadOnly) RemoveFile(vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "remove_file", "", fmt.Errorf("read-only tar"))
}
func (r *ReadOnly) CopyFile(_, dest vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "copy_file", dest, fmt.Errorf("read-only tar"))
}
func (r *ReadOnly) Rename(_, to vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "rename", to, fmt.Errorf("read-only tar"))
}
func (r *ReadOnly) CreateDir(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "create_dir", p, fmt.Errorf("read-only tar"))
}
func (r *ReadOnly) CreateDirAll(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "create_dir_all", p, fmt.Errorf("read-only tar"))
}
func (r *ReadOnly) SetMTime(p vfs.Path, _ time.Time) error {
	return vfs.NewError(vfs.KindUnsupported, "set_mtime", p, fmt.Errorf("read-only tar"))
}
func (r *ReadOnly) Flush() error                    { return nil }
func (r *ReadOnly) Capabilities() vfs.Capabilities  { return vfs.Capabilities{CanRead: true} }
func (r *ReadOnly) IsWritable() bool                { return false }

// ReadWrite is a read-write VFS view over a TAR or TAR.GZ file, using
// the same scratch-extract-and-rebuild pattern as ziparc.ReadWrite.
type ReadWrite struct {
	archivePath string
	gzipped     bool
	scratch     *scratch.Dir

	mu    sync.Mutex
	dirty bool
}

// OpenWritable opens (or creates) a writable TAR/TAR.GZ VFS at
// archivePath.
func OpenWritable(archivePath string, gzipped bool) (*ReadWrite, error) {
	s, err := scratch.New("tararc")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(archivePath); err == nil {
		if err := extractInto(archivePath, gzipped, s); err != nil {
			s.Close()
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		s.Close()
		return nil, vfs.NewError(vfs.KindIO, "open_writable", vfs.Path(archivePath), err)
	}
	return &ReadWrite{archivePath: archivePath, gzipped: gzipped, scratch: s}, nil
}

func extractInto(archivePath string, gzipped bool, s *scratch.Dir) error {
	ro, err := Open(archivePath, gzipped)
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

func (w *ReadWrite) Close() error { return w.scratch.Close() }

func (w *ReadWrite) InstanceID() string { return "tar-rw:" + w.archivePath }

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

// Flush rebuilds the archive from the scratch directory when dirty.
// For TAR.GZ it recompresses the whole stream; the first two bytes of
// a freshly flushed .tar.gz are always the gzip magic 0x1F 0x8B.
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
	var tw *tar.Writer
	var gz *gzip.Writer
	if w.gzipped {
		gz = gzip.NewWriter(out)
		tw = tar.NewWriter(gz)
	} else {
		tw = tar.NewWriter(out)
	}

	var walk func(p vfs.Path) error
	walk = func(p vfs.Path) error {
		entries, err := w.scratch.VFS.ReadDir(p)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir {
				hdr := &tar.Header{Name: string(e.Path) + "/", Typeflag: tar.TypeDir, ModTime: e.ModTime, Mode: 0o777}
				if err := tw.WriteHeader(hdr); err != nil {
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
			hdr := &tar.Header{Name: string(e.Path), Typeflag: tar.TypeReg, Size: e.Size, ModTime: e.ModTime, Mode: 0o666}
			if err := tw.WriteHeader(hdr); err != nil {
				rc.Close()
				return err
			}
			if _, err := io.Copy(tw, rc); err != nil {
				rc.Close()
				return err
			}
			rc.Close()
		}
		return nil
	}
	if err := walk(""); err != nil {
		tw.Close()
		if gz != nil {
			gz.Close()
		}
		out.Close()
		os.Remove(tmp)
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(w.archivePath), err)
	}
	if err := tw.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(w.archivePath), err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			out.Close()
			os.Remove(tmp)
			return vfs.NewError(vfs.KindIO, "flush", vfs.Path(w.archivePath), err)
		}
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

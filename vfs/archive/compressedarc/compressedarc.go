// Package compressedarc provides read-only and read-write VFS views
// over single-file compressed codecs (.gz, .bz2, .xz). There is no
// directory concept: the archive holds exactly one logical file,
// whose name is the archive's filename with the compression suffix
// stripped.
package compressedarc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/buengese/sgzip"
	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"

	"github.com/eldenglass/vfsdiff/vfs"
)

// Codec identifies which single-file compression format wraps the
// content.
type Codec int

const (
	Gzip Codec = iota
	Bzip2
	Xz
)

// DetectCodec maps an archive filename's suffix to its Codec.
func DetectCodec(name string) (Codec, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return Gzip, true
	case strings.HasSuffix(lower, ".bz2"):
		return Bzip2, true
	case strings.HasSuffix(lower, ".xz"):
		return Xz, true
	default:
		return 0, false
	}
}

func (c Codec) suffix() string {
	switch c {
	case Gzip:
		return ".gz"
	case Bzip2:
		return ".bz2"
	case Xz:
		return ".xz"
	default:
		return ""
	}
}

func decompress(c Codec, r io.Reader) ([]byte, error) {
	var dr io.Reader
	switch c {
	case Gzip:
		gz, err := sgzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		dr = gz
	case Bzip2:
		bz, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, err
		}
		defer bz.Close()
		dr = bz
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		dr = xr
	default:
		return nil, fmt.Errorf("unknown codec")
	}
	return io.ReadAll(dr)
}

func compress(c Codec, data []byte, w io.Writer) error {
	switch c {
	case Gzip:
		gw, err := sgzip.NewWriterLevel(w, sgzip.DefaultCompression)
		if err != nil {
			return err
		}
		if _, err := gw.Write(data); err != nil {
			gw.Close()
			return err
		}
		return gw.Close()
	case Bzip2:
		bw, err := bzip2.NewWriter(w, nil)
		if err != nil {
			return err
		}
		if _, err := bw.Write(data); err != nil {
			bw.Close()
			return err
		}
		return bw.Close()
	case Xz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := xw.Write(data); err != nil {
			xw.Close()
			return err
		}
		return xw.Close()
	default:
		return fmt.Errorf("unknown codec")
	}
}

// entryName derives the single logical path inside the archive from
// the archive's own filename.
func entryName(archivePath string, c Codec) vfs.Path {
	base := filepath.Base(archivePath)
	return vfs.Path(strings.TrimSuffix(base, c.suffix()))
}

// VFS is a read-write view over a single-file compressed archive. The
// decompressed content is buffered fully in memory; a dirty flag is
// set by any write and Flush recompresses and rewrites the archive
// file.
type VFS struct {
	archivePath string
	codec       Codec
	name        vfs.Path

	mu      sync.Mutex
	content []byte
	modTime time.Time
	dirty   bool
	// readOnly disables the write-side operations entirely; used when
	// constructed via OpenReadOnly.
	readOnly bool
}

// Open opens an existing compressed file for read-write access,
// buffering its decompressed content in memory.
func Open(archivePath string) (*VFS, error) {
	codec, ok := DetectCodec(archivePath)
	if !ok {
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), fmt.Errorf("unrecognized compressed suffix"))
	}
	v := &VFS{archivePath: archivePath, codec: codec, name: entryName(archivePath, codec)}
	fi, err := os.Stat(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return v, nil // writable VFS may create the archive fresh on flush
		}
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
	}
	defer f.Close()
	data, err := decompress(codec, f)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(archivePath), err)
	}
	v.content = data
	v.modTime = fi.ModTime()
	return v, nil
}

// OpenReadOnly opens an existing compressed file for read-only access.
func OpenReadOnly(archivePath string) (*VFS, error) {
	v, err := Open(archivePath)
	if err != nil {
		return nil, err
	}
	if v.content == nil {
		return nil, vfs.NewError(vfs.KindNotFound, "open", vfs.Path(archivePath), fmt.Errorf("archive does not exist"))
	}
	v.readOnly = true
	return v, nil
}

func (v *VFS) InstanceID() string { return "compressed:" + v.archivePath }

func (v *VFS) Metadata(p vfs.Path) (vfs.Metadata, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p == v.name {
		return vfs.Metadata{Size: int64(len(v.content)), ModTime: v.modTime}, nil
	}
	if p.IsEmpty() {
		return vfs.Metadata{IsDir: true}, nil
	}
	return vfs.Metadata{}, vfs.NewError(vfs.KindNotFound, "metadata", p, fmt.Errorf("not the archive's entry"))
}

func (v *VFS) ReadDir(p vfs.Path) ([]vfs.Entry, error) {
	if !p.IsEmpty() {
		return nil, vfs.NewError(vfs.KindNotFound, "read_dir", p, fmt.Errorf("no such directory"))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return []vfs.Entry{{Path: v.name, Size: int64(len(v.content)), ModTime: v.modTime}}, nil
}

func (v *VFS) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p != v.name {
		return nil, vfs.NewError(vfs.KindNotFound, "open_file", p, fmt.Errorf("not the archive's entry"))
	}
	return io.NopCloser(bytes.NewReader(v.content)), nil
}

type memSink struct {
	v   *VFS
	buf bytes.Buffer
}

func (s *memSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memSink) Close() error {
	s.v.mu.Lock()
	s.v.content = s.buf.Bytes()
	s.v.modTime = time.Now()
	s.v.dirty = true
	s.v.mu.Unlock()
	return nil
}

func (v *VFS) CreateFile(p vfs.Path) (vfs.WriteSink, error) {
	if v.readOnly {
		return nil, vfs.NewError(vfs.KindUnsupported, "create_file", p, fmt.Errorf("read-only"))
	}
	if p != v.name {
		return nil, vfs.NewError(vfs.KindUnsupported, "create_file", p, fmt.Errorf("single-file archive only holds %q", v.name))
	}
	return &memSink{v: v}, nil
}

func (v *VFS) WriteFile(p vfs.Path, data []byte) error {
	sink, err := v.CreateFile(p)
	if err != nil {
		return err
	}
	if _, err := sink.Write(data); err != nil {
		return vfs.NewError(vfs.KindIO, "write_file", p, err)
	}
	return sink.Close()
}

func (v *VFS) RemoveFile(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "remove_file", p, fmt.Errorf("single-file archive can't remove its only entry"))
}
func (v *VFS) CopyFile(_, dest vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "copy_file", dest, fmt.Errorf("unsupported on single-file archive"))
}
func (v *VFS) Rename(_, to vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "rename", to, fmt.Errorf("unsupported on single-file archive"))
}
func (v *VFS) CreateDir(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "create_dir", p, fmt.Errorf("no directory concept"))
}
func (v *VFS) CreateDirAll(p vfs.Path) error {
	return vfs.NewError(vfs.KindUnsupported, "create_dir_all", p, fmt.Errorf("no directory concept"))
}

// SetMTime is unsupported: a compressed single-file archive has no
// directory concept to anchor per-entry times separate from the
// archive file's own mtime, matching spec §4.D.
func (v *VFS) SetMTime(p vfs.Path, _ time.Time) error {
	return vfs.NewError(vfs.KindUnsupported, "set_mtime", p, fmt.Errorf("unsupported on single-file archive"))
}

// Flush recompresses the in-memory buffer and writes it to the
// archive file when dirty.
func (v *VFS) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty {
		return nil
	}
	tmp := v.archivePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(v.archivePath), err)
	}
	if err := compress(v.codec, v.content, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(v.archivePath), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(v.archivePath), err)
	}
	if err := os.Rename(tmp, v.archivePath); err != nil {
		return vfs.NewError(vfs.KindIO, "flush", vfs.Path(v.archivePath), err)
	}
	v.dirty = false
	return nil
}

func (v *VFS) Capabilities() vfs.Capabilities {
	if v.readOnly {
		return vfs.Capabilities{CanRead: true}
	}
	return vfs.Capabilities{CanRead: true, CanWrite: true}
}
func (v *VFS) IsWritable() bool { return !v.readOnly }

// Package local provides a VFS backed directly by the native
// filesystem, rooted at a base directory.
package local

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/eldenglass/vfsdiff/vfs"
)

// VFS adapts the OS filesystem rooted at Root to the vfs.VFS contract.
// Every operation maps to the equivalent os.* call; ReadDir strips the
// root prefix from returned paths.
type VFS struct {
	Root string

	// UTFNorm applies NFC unicode normalization to path components
	// read from disk, matching the local backend's handling of
	// decomposed (NFD) names produced by some filesystems (notably
	// macOS).
	UTFNorm bool
}

// New constructs a local VFS rooted at root. root is made absolute so
// InstanceID is stable across callers with different working
// directories.
func New(root string) (*VFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "new", vfs.Path(root), err)
	}
	return &VFS{Root: abs}, nil
}

func (v *VFS) InstanceID() string { return "local:" + v.Root }

func (v *VFS) osPath(p vfs.Path) string {
	parts := p.Split()
	joined := filepath.Join(append([]string{v.Root}, parts...)...)
	return joined
}

func (v *VFS) cleanName(name string) string {
	if v.UTFNorm {
		return norm.NFC.String(name)
	}
	return name
}

func (v *VFS) Metadata(p vfs.Path) (vfs.Metadata, error) {
	fi, err := os.Lstat(v.osPath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return vfs.Metadata{}, vfs.NewError(vfs.KindNotFound, "metadata", p, err)
		}
		return vfs.Metadata{}, vfs.NewError(vfs.KindIO, "metadata", p, err)
	}
	return fiToMetadata(fi), nil
}

func fiToMetadata(fi os.FileInfo) vfs.Metadata {
	return vfs.Metadata{
		Size:      fi.Size(),
		ModTime:   fi.ModTime(),
		IsDir:     fi.IsDir(),
		IsSymlink: fi.Mode()&os.ModeSymlink != 0,
	}
}

func (v *VFS) ReadDir(p vfs.Path) ([]vfs.Entry, error) {
	dirPath := v.osPath(p)
	fi, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfs.NewError(vfs.KindNotFound, "read_dir", p, err)
		}
		return nil, vfs.NewError(vfs.KindIO, "read_dir", p, err)
	}
	if !fi.IsDir() {
		return nil, vfs.NewError(vfs.KindNotADirectory, "read_dir", p, fmt.Errorf("%q is not a directory", dirPath))
	}

	f, err := os.Open(dirPath)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "read_dir", p, err)
	}
	defer f.Close()

	var entries []vfs.Entry
	for {
		names, rerr := f.Readdirnames(1024)
		if rerr == io.EOF && len(names) == 0 {
			break
		}
		if rerr != nil && rerr != io.EOF {
			return nil, vfs.NewError(vfs.KindIO, "read_dir", p, rerr)
		}
		for _, name := range names {
			childOS := filepath.Join(dirPath, name)
			childFi, serr := os.Lstat(childOS)
			if os.IsNotExist(serr) {
				continue // removed concurrently
			}
			if serr != nil {
				return nil, vfs.NewError(vfs.KindIO, "read_dir", p, serr)
			}
			// Symlinks are listed as entries same as any other child,
			// using Lstat so IsDir reflects the link itself rather than
			// its target. Whether to follow one into a directory is the
			// scanner's call (follow-symlinks is a scan-time policy,
			// not a VFS-level one), not this method's.
			rel := vfs.Join(p, v.cleanName(name))
			entries = append(entries, vfs.Entry{
				Path:    rel,
				Size:    childFi.Size(),
				ModTime: childFi.ModTime(),
				IsDir:   childFi.IsDir(),
			})
		}
		if rerr == io.EOF {
			break
		}
	}
	return entries, nil
}

func (v *VFS) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	osPath := v.osPath(p)
	fi, err := os.Stat(osPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfs.NewError(vfs.KindNotFound, "open_file", p, err)
		}
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	if fi.IsDir() {
		return nil, vfs.NewError(vfs.KindNotAFile, "open_file", p, fmt.Errorf("%q is a directory", osPath))
	}
	f, err := os.Open(osPath)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	return f, nil
}

func (v *VFS) CreateFile(p vfs.Path) (vfs.WriteSink, error) {
	osPath := v.osPath(p)
	if err := os.MkdirAll(filepath.Dir(osPath), 0o777); err != nil {
		return nil, vfs.NewError(vfs.KindIO, "create_file", p, err)
	}
	f, err := os.Create(osPath)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "create_file", p, err)
	}
	return f, nil
}

func (v *VFS) WriteFile(p vfs.Path, data []byte) error {
	sink, err := v.CreateFile(p)
	if err != nil {
		return err
	}
	if _, werr := sink.Write(data); werr != nil {
		sink.Close()
		return vfs.NewError(vfs.KindIO, "write_file", p, werr)
	}
	if cerr := sink.Close(); cerr != nil {
		return vfs.NewError(vfs.KindIO, "write_file", p, cerr)
	}
	return nil
}

func (v *VFS) RemoveFile(p vfs.Path) error {
	if err := os.Remove(v.osPath(p)); err != nil {
		if os.IsNotExist(err) {
			return vfs.NewError(vfs.KindNotFound, "remove_file", p, err)
		}
		return vfs.NewError(vfs.KindIO, "remove_file", p, err)
	}
	return nil
}

func (v *VFS) CopyFile(src, dest vfs.Path) error {
	in, err := v.OpenFile(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := v.CreateFile(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return vfs.NewError(vfs.KindIO, "copy_file", dest, err)
	}
	if err := out.Close(); err != nil {
		return vfs.NewError(vfs.KindIO, "copy_file", dest, err)
	}
	return nil
}

func (v *VFS) Rename(from, to vfs.Path) error {
	toOS := v.osPath(to)
	if err := os.MkdirAll(filepath.Dir(toOS), 0o777); err != nil {
		return vfs.NewError(vfs.KindIO, "rename", to, err)
	}
	if err := os.Rename(v.osPath(from), toOS); err != nil {
		return vfs.NewError(vfs.KindIO, "rename", from, err)
	}
	return nil
}

func (v *VFS) CreateDir(p vfs.Path) error {
	if err := os.Mkdir(v.osPath(p), 0o777); err != nil {
		return vfs.NewError(vfs.KindIO, "create_dir", p, err)
	}
	return nil
}

func (v *VFS) CreateDirAll(p vfs.Path) error {
	if err := os.MkdirAll(v.osPath(p), 0o777); err != nil {
		return vfs.NewError(vfs.KindIO, "create_dir_all", p, err)
	}
	return nil
}

// SetMTime uses integer-second resolution, matching what the
// platform's utimes-family calls actually guarantee everywhere.
func (v *VFS) SetMTime(p vfs.Path, t time.Time) error {
	t = t.Truncate(time.Second)
	if err := os.Chtimes(v.osPath(p), t, t); err != nil {
		return vfs.NewError(vfs.KindIO, "set_mtime", p, err)
	}
	return nil
}

// Flush is a no-op: the local VFS writes straight through, there is
// nothing staged to materialize.
func (v *VFS) Flush() error { return nil }

func (v *VFS) Capabilities() vfs.Capabilities {
	return vfs.Capabilities{
		CanRead: true, CanWrite: true, CanDelete: true,
		CanRename: true, CanCreateDir: true, CanSetMTime: true,
	}
}

func (v *VFS) IsWritable() bool { return vfs.IsWritableFromCapabilities(v.Capabilities()) }

package vfs

import (
	"io"
	"time"
)

// ReadStream is a finite, restartable byte stream returned by
// OpenFile. Restartable means the caller may always get an equivalent
// fresh stream by calling OpenFile again; the stream itself need not
// support Seek. It must be safe to hand off to another goroutine after
// it is returned (but not to read from concurrently).
type ReadStream interface {
	io.ReadCloser
}

// WriteSink is a writable byte sink returned by CreateFile. Closing it
// finalizes the write; backends that buffer in memory (S3, compressed
// single-file archives) flush their buffer on Close.
type WriteSink interface {
	io.WriteCloser
}

// VFS is the single polymorphic contract implemented by every storage
// backend: local disk, archive formats (read-only and read-write),
// remote stores, and the filtered/union composites layered over them.
//
// Implementations must fail closed: an operation outside the
// declared Capabilities must return a KindUnsupported error rather
// than silently doing nothing or doing something unexpected.
type VFS interface {
	// InstanceID returns a stable string identifying this VFS
	// instance, used by consumers to detect same-backend shortcuts
	// when comparing two VFSes (e.g. skip hashing when both sides
	// are proven to be the same physical store).
	InstanceID() string

	Metadata(path Path) (Metadata, error)

	// ReadDir lists the immediate children of path, non-recursively.
	// Returned entries carry paths relative to the VFS root, not to
	// path.
	ReadDir(path Path) ([]Entry, error)

	OpenFile(path Path) (ReadStream, error)

	// CreateFile opens path for writing, creating intermediate
	// parent directories where the backend requires them.
	CreateFile(path Path) (WriteSink, error)

	// WriteFile is a convenience that fully replaces the contents of
	// path with data.
	WriteFile(path Path, data []byte) error

	RemoveFile(path Path) error
	CopyFile(src, dest Path) error
	Rename(from, to Path) error
	CreateDir(path Path) error
	CreateDirAll(path Path) error
	SetMTime(path Path, t time.Time) error

	// Flush materializes any staged changes to the real backing
	// store. It is idempotent; a VFS with nothing to stage has flush
	// as a legal no-op.
	Flush() error

	Capabilities() Capabilities
	IsWritable() bool
}

// IsWritableFromCapabilities is the convenience implementation of
// VFS.IsWritable shared by the local, S3, SFTP and WebDAV backends.
// The archive and composite VFSes implement IsWritable themselves.
func IsWritableFromCapabilities(c Capabilities) bool {
	return c.CanWrite || c.CanDelete || c.CanRename || c.CanCreateDir
}

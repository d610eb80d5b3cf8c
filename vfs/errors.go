package vfs

import (
	"errors"
	"fmt"
)

// Kind classifies a VFS error so callers can branch on it without
// string-matching, the same role fserrors.NoRetryError and friends
// play for rclone backends.
type Kind int

const (
	// KindIO covers any underlying storage failure that doesn't fit a
	// more specific kind below.
	KindIO Kind = iota
	KindNotFound
	KindNotADirectory
	KindNotAFile
	KindUnsupported
	KindCancelled
	KindConfig
	// KindVFS wraps an error surfaced verbatim by a backend.
	KindVFS
	// KindComparison is a structural problem detected by the
	// comparison engine, e.g. cancellation observed mid-diff.
	KindComparison
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindNotFound:
		return "NotFound"
	case KindNotADirectory:
		return "NotADirectory"
	case KindNotAFile:
		return "NotAFile"
	case KindUnsupported:
		return "Unsupported"
	case KindCancelled:
		return "Cancelled"
	case KindConfig:
		return "Config"
	case KindVFS:
		return "VFS"
	case KindComparison:
		return "Comparison"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every VFS operation and by the
// scanner/comparison/copy engines built on top of it.
type Error struct {
	Kind Kind
	Path Path
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s %q: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a *Error, wrapping err (which may be nil, in which
// case a generic message for the kind is used).
func NewError(kind Kind, op string, path Path, err error) *Error {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &Error{Kind: kind, Path: path, Op: op, Err: err}
}

// IsKind reports whether the first *Error in err's chain (err itself,
// or the nearest *Error it wraps) carries the given Kind. The kinds of
// *Errors wrapped inside that one are not consulted.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrCancelled is a ready-made KindCancelled error. The scan and
// compare loops do not return this value: they build their own
// KindCancelled errors carrying the operation and path, and
// IsKind(err, KindCancelled) matches both.
var ErrCancelled = NewError(KindCancelled, "cancelled", "", errors.New("operation cancelled"))

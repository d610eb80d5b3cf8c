// Package vfs defines the virtual filesystem contract shared by every
// storage backend: local disk, archive formats, remote stores and the
// composite filtered/union views built on top of them.
package vfs

import (
	"sort"
	"strings"
	"time"
)

// Path is a relative, canonical path below some VFS root. It is always
// stored as a slash-separated sequence of components; it never begins
// with a separator and never contains "." or ".." components.
type Path string

// Clean splits p into its components, stripping any leading/trailing
// separators, and rejoins them with "/". It only normalizes
// separators: neither Clean nor Join checks for or removes "." and
// ".." components.
func (p Path) Clean() Path {
	parts := p.Split()
	return Path(strings.Join(parts, "/"))
}

// Split returns the path's components.
func (p Path) Split() []string {
	s := strings.Trim(strings.ReplaceAll(string(p), "\\", "/"), "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

// IsEmpty reports whether the path has no components (i.e. refers to
// the VFS root itself).
func (p Path) IsEmpty() bool {
	return len(p.Split()) == 0
}

// Base returns the final path component.
func (p Path) Base() string {
	parts := p.Split()
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Dir returns the parent path, or "" if p is a top-level entry.
func (p Path) Dir() Path {
	parts := p.Split()
	if len(parts) <= 1 {
		return ""
	}
	return Path(strings.Join(parts[:len(parts)-1], "/"))
}

// Join appends components onto p.
func Join(p Path, components ...string) Path {
	parts := append(p.Split(), components...)
	return Path(strings.Join(parts, "/"))
}

// Ancestors returns every proper ancestor directory of p, from the
// immediate parent up to (but not including) the root, nearest first.
func (p Path) Ancestors() []Path {
	parts := p.Split()
	if len(parts) <= 1 {
		return nil
	}
	out := make([]Path, 0, len(parts)-1)
	for i := len(parts) - 1; i > 0; i-- {
		out = append(out, Path(strings.Join(parts[:i], "/")))
	}
	return out
}

// Metadata is the subset of Entry returned by a per-path query.
type Metadata struct {
	Size         int64
	ModTime      time.Time
	IsDir        bool
	IsSymlink    bool
}

// Entry is one element of a scan's output, describing a single path
// below the root that produced it.
type Entry struct {
	Path    Path
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Metadata projects an Entry down to the Metadata subset.
func (e Entry) Metadata() Metadata {
	return Metadata{Size: e.Size, ModTime: e.ModTime, IsDir: e.IsDir}
}

// SortEntries sorts entries lexicographically by path, as required of
// every scanner's output and every comparison engine's diff nodes.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

// Digest is a 256-bit cryptographic content digest (BLAKE3-class; any
// collision-resistant hash with a streaming API satisfies the
// contract described in the hash cache and comparison engine).
type Digest [32]byte

// String renders the digest as lowercase hex, the form used for
// checkpoint filenames and cache persistence.
func (d Digest) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, len(d)*2)
	for i, b := range d {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf)
}

// IsZero reports whether d is the zero digest (never produced by a
// real hash; used as a sentinel for "not yet computed").
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Capabilities describes what a VFS can actually do. A VFS must never
// report a capability it cannot honor; consumers should check
// capabilities before attempting mutating operations rather than rely
// on Unsupported errors alone.
type Capabilities struct {
	CanRead      bool
	CanWrite     bool
	CanDelete    bool
	CanRename    bool
	CanCreateDir bool
	CanSetMTime  bool
}

// DiffStatus is the two-way comparison result for a single path.
type DiffStatus int

const (
	Same DiffStatus = iota
	Different
	OrphanLeft
	OrphanRight
	Unchecked
)

func (s DiffStatus) String() string {
	switch s {
	case Same:
		return "Same"
	case Different:
		return "Different"
	case OrphanLeft:
		return "OrphanLeft"
	case OrphanRight:
		return "OrphanRight"
	case Unchecked:
		return "Unchecked"
	default:
		return "Unknown"
	}
}

// ThreeWayStatus is the three-way comparison result for a single path
// against a common base.
type ThreeWayStatus int

const (
	AllSame ThreeWayStatus = iota
	LeftChanged
	RightChanged
	BothChanged
	BaseOnly
	LeftOnly
	RightOnly
	BothAdded
	BaseAndLeft
	BaseAndRight
)

func (s ThreeWayStatus) String() string {
	switch s {
	case AllSame:
		return "AllSame"
	case LeftChanged:
		return "LeftChanged"
	case RightChanged:
		return "RightChanged"
	case BothChanged:
		return "BothChanged"
	case BaseOnly:
		return "BaseOnly"
	case LeftOnly:
		return "LeftOnly"
	case RightOnly:
		return "RightOnly"
	case BothAdded:
		return "BothAdded"
	case BaseAndLeft:
		return "BaseAndLeft"
	case BaseAndRight:
		return "BaseAndRight"
	default:
		return "Unknown"
	}
}

// TreeNode is the hierarchical presentation shape the comparison
// engine's consumers build from a flat diff-node list. The engine
// itself only needs to guarantee the aggregate rule is computable from
// its flat output; it does not build trees.
type TreeNode struct {
	Path     Path
	Left     *Entry
	Right    *Entry
	Status   DiffStatus
	Children []*TreeNode
}

// AggregateStatus folds a directory's children per the spec's rule: a
// directory is Different if any descendant is neither Same nor
// Unchecked, and Same only if every descendant is Same.
func AggregateStatus(children []*TreeNode) DiffStatus {
	allSame := true
	for _, c := range children {
		if c.Status != Same {
			allSame = false
		}
		if c.Status != Same && c.Status != Unchecked {
			return Different
		}
	}
	if allSame {
		return Same
	}
	return Unchecked
}

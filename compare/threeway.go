package compare

import (
	"context"
	"sort"

	"github.com/eldenglass/vfsdiff/vfs"
)

// ThreeWayNode is one three-way comparison result.
type ThreeWayNode struct {
	Path   vfs.Path
	Base   *vfs.Entry
	Left   *vfs.Entry
	Right  *vfs.Entry
	Status vfs.ThreeWayStatus
}

// ThreeWay classifies every relative path present in any of base,
// left, right against the table in §4.I. Equality between two
// present sides reuses the same file comparator as the two-way path,
// with verify_hashes forced on: a three-way merge decision is not
// something to answer with a cheap mtime guess.
func ThreeWay(ctx context.Context, base, left, right Side, baseEntries, leftEntries, rightEntries []vfs.Entry) ([]ThreeWayNode, error) {
	baseMap := indexByRelPath(baseEntries)
	leftMap := indexByRelPath(leftEntries)
	rightMap := indexByRelPath(rightEntries)

	keys := unionKeys3(baseMap, leftMap, rightMap)

	nodes := make([]ThreeWayNode, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, vfs.NewError(vfs.KindCancelled, "three_way", vfs.Path(key), err)
		}
		be, bok := baseMap[key]
		le, lok := leftMap[key]
		re, rok := rightMap[key]

		node := ThreeWayNode{Path: vfs.Path(key)}
		if bok {
			e := be
			node.Base = &e
		}
		if lok {
			e := le
			node.Left = &e
		}
		if rok {
			e := re
			node.Right = &e
		}

		status, err := classify(ctx, base, left, right, bok, lok, rok, be, le, re)
		if err != nil {
			return nil, err
		}
		node.Status = status
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func unionKeys3(a, b, c map[string]vfs.Entry) []string {
	seen := make(map[string]struct{}, len(a)+len(b)+len(c))
	keys := make([]string, 0, len(a)+len(b)+len(c))
	for _, m := range []map[string]vfs.Entry{a, b, c} {
		for k := range m {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func classify(ctx context.Context, base, left, right Side, bok, lok, rok bool, be, le, re vfs.Entry) (vfs.ThreeWayStatus, error) {
	switch {
	case bok && !lok && !rok:
		return vfs.BaseOnly, nil
	case !bok && lok && !rok:
		return vfs.LeftOnly, nil
	case !bok && !lok && rok:
		return vfs.RightOnly, nil
	case bok && lok && !rok:
		return vfs.BaseAndLeft, nil
	case bok && !lok && rok:
		return vfs.BaseAndRight, nil
	case !bok && lok && rok:
		return vfs.BothAdded, nil
	}
	// All three present.
	if le.IsDir && re.IsDir && be.IsDir {
		return vfs.AllSame, nil
	}
	if le.IsDir != re.IsDir || le.IsDir != be.IsDir {
		return vfs.BothChanged, nil
	}

	leftSame, err := entriesEqual(ctx, base, left, be, le)
	if err != nil {
		return 0, err
	}
	rightSame, err := entriesEqual(ctx, base, right, be, re)
	if err != nil {
		return 0, err
	}
	switch {
	case leftSame && rightSame:
		return vfs.AllSame, nil
	case leftSame && !rightSame:
		return vfs.RightChanged, nil
	case !leftSame && rightSame:
		return vfs.LeftChanged, nil
	default:
		return vfs.BothChanged, nil
	}
}

// entriesEqual decides L≡B (or R≡B) using the same comparator the
// two-way engine uses, always with hash verification on.
func entriesEqual(ctx context.Context, a, b Side, ae, be vfs.Entry) (bool, error) {
	status, err := compareFiles(ctx, a, b, ae, be, true)
	if err != nil {
		return false, err
	}
	return status == vfs.Same, nil
}

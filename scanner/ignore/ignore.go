// Package ignore implements gitignore-style layered ignore rules: a
// pattern set assembled from user configuration plus every .gitignore
// file found along a path's ancestors, with later (deeper) rules
// overriding earlier ones and "!" negation re-including a path.
package ignore

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// Pattern is one compiled ignore rule.
type Pattern struct {
	raw     string
	negate  bool
	dirOnly bool
	re      *regexp.Regexp
}

func (p Pattern) match(path string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}
	return p.re.MatchString(path)
}

// Parse compiles a single gitignore-style line. Blank lines and lines
// beginning with "#" return (Pattern{}, false, nil).
func Parse(line string) (Pattern, bool, error) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return Pattern{}, false, nil
	}
	negate := false
	if strings.HasPrefix(line, "!") {
		negate = true
		line = line[1:]
	}
	dirOnly := strings.HasSuffix(line, "/")
	line = strings.TrimSuffix(line, "/")
	re, err := globToRegexp(line)
	if err != nil {
		return Pattern{}, false, fmt.Errorf("parsing pattern %q: %w", line, err)
	}
	return Pattern{raw: line, negate: negate, dirOnly: dirOnly, re: re}, true, nil
}

// Set is an ordered list of patterns; later patterns win, matching
// gitignore's "last matching pattern decides" rule.
type Set struct {
	patterns []Pattern
}

// ParseLines builds a Set from newline-separated pattern source, as
// read from a .gitignore file or a --ignore config value.
func ParseLines(r string) (Set, error) {
	var set Set
	scanner := bufio.NewScanner(strings.NewReader(r))
	for scanner.Scan() {
		p, ok, err := Parse(scanner.Text())
		if err != nil {
			return Set{}, err
		}
		if ok {
			set.patterns = append(set.patterns, p)
		}
	}
	return set, scanner.Err()
}

// Merge returns a new Set with other's patterns appended after s's, so
// that a deeper .gitignore's rules take precedence over shallower
// ones and user-config rules, matching the layering order a scan
// assembles them in as it descends.
func (s Set) Merge(other Set) Set {
	out := Set{patterns: make([]Pattern, 0, len(s.patterns)+len(other.patterns))}
	out.patterns = append(out.patterns, s.patterns...)
	out.patterns = append(out.patterns, other.patterns...)
	return out
}

// Match reports whether path (slash-separated, relative to the scan
// root) should be ignored. isDir lets directory-only patterns apply
// correctly, and lets a caller skip descending into an ignored
// directory entirely rather than filtering each descendant.
func (s Set) Match(path string, isDir bool) bool {
	ignored := false
	for _, p := range s.patterns {
		if p.match(path, isDir) {
			ignored = !p.negate
		}
	}
	return ignored
}

// Empty reports whether the set has no patterns.
func (s Set) Empty() bool { return len(s.patterns) == 0 }

package stager

import (
	"fmt"
	"strings"
)

// SafePath is an absolute path on the target volume whose components are
// known to be safe to hand to the filesystem tools verbatim. The zero value
// is the root directory.
type SafePath struct {
	elems []string
}

// Root is the root directory of the volume.
var Root = SafePath{}

// ParsePath normalises a user supplied directory: runs of '/' and '\' become
// a single separator and the result is rooted. Components that are empty
// after normalisation are dropped; "." and ".." components, control
// characters and the wildcard characters the tools would expand are
// rejected.
func ParsePath(s string) (SafePath, error) {
	var elems []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == "." || part == ".." {
			return SafePath{}, fmt.Errorf("invalid directory %q: relative component %q", s, part)
		}
		for _, r := range part {
			switch {
			case r < 0x20 || r == 0x7f:
				return SafePath{}, fmt.Errorf("invalid directory %q: control character %#x", s, r)
			case strings.ContainsRune(`*?[]"`, r):
				return SafePath{}, fmt.Errorf("invalid directory %q: character %q", s, r)
			}
		}
		elems = append(elems, part)
	}
	return SafePath{elems: elems}, nil
}

// IsRoot reports whether p is the root directory.
func (p SafePath) IsRoot() bool { return len(p.elems) == 0 }

// Join returns p with name appended. name must be a single plain component.
func (p SafePath) Join(name string) SafePath {
	elems := make([]string, len(p.elems), len(p.elems)+1)
	copy(elems, p.elems)
	return SafePath{elems: append(elems, name)}
}

// Elems returns the path components.
func (p SafePath) Elems() []string {
	return append([]string(nil), p.elems...)
}

// String returns the path with a leading '/' and no trailing separator.
func (p SafePath) String() string {
	return "/" + strings.Join(p.elems, "/")
}

// Equal reports whether p and q name the same path.
func (p SafePath) Equal(q SafePath) bool {
	if len(p.elems) != len(q.elems) {
		return false
	}
	for i := range p.elems {
		if p.elems[i] != q.elems[i] {
			return false
		}
	}
	return true
}

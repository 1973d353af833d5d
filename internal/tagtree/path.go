package tagtree

import (
	"strconv"
	"strings"
)

// Path locates one node of a decoded save. Compound children are addressed
// by name, list elements by decimal index. Segments never contain '/'.
type Path []string

func P(segs ...string) Path {
	out := make(Path, len(segs))
	copy(out, segs)
	return out
}

// ParsePath is the inverse of Path.String.
func ParsePath(s string) Path {
	s = strings.Trim(s, "/")
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "/"))
}

func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

func (p Path) Index(i int) Path { return p.Child(strconv.Itoa(i)) }

func (p Path) Join(segs ...string) Path {
	out := make(Path, len(p), len(p)+len(segs))
	copy(out, p)
	return append(out, segs...)
}

func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return P(p[:len(p)-1]...)
}

func (p Path) Base() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is an ancestor of (or equal to) p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string { return "/" + strings.Join(p, "/") }

package tagtree

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	ErrNotFound     = errors.New("tag not found")
	ErrTypeMismatch = errors.New("tag type mismatch")
)

// Facade is the narrow accessor contract the map engine reads and writes a
// decoded save through.
type Facade interface {
	ReadScalar(p Path) (Scalar, error)
	ReadByteArray(p Path) ([]byte, error)
	ReadChildren(p Path) ([]Path, error)
	WriteScalar(p Path, v Scalar) error
	WriteByteArray(p Path, b []byte) error
	DeleteNode(p Path) error
}

// Node is one decoded tag. Only the fields matching Kind are meaningful.
type Node struct {
	Kind     Kind
	Int      int64
	Float    float64
	Str      string
	Bytes    []byte
	Ints     []int64
	Elem     Kind
	List     []*Node
	Compound map[string]*Node
}

// Tree is an in-memory decoded save. Concurrent readers are safe; writes
// must come from a single goroutine with no readers in flight.
type Tree struct {
	Root *Node
}

func New() *Tree { return &Tree{Root: NewCompound()} }

func NewCompound() *Node { return &Node{Kind: KindCompound, Compound: map[string]*Node{}} }

func NewList(elem Kind, items ...*Node) *Node {
	return &Node{Kind: KindList, Elem: elem, List: items}
}

func ScalarNode(v Scalar) *Node {
	return &Node{Kind: v.kind, Int: v.i, Float: v.f, Str: v.s}
}

func ByteArrayNode(b []byte) *Node {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Node{Kind: KindByteArray, Bytes: cp}
}

func IntArrayNode(v ...int64) *Node { return &Node{Kind: KindIntArray, Ints: v} }

// Set adds or replaces a compound child and returns n for chaining.
func (n *Node) Set(name string, child *Node) *Node {
	if n.Compound == nil {
		n.Compound = map[string]*Node{}
	}
	n.Compound[name] = child
	return n
}

// Append adds a list element and returns n for chaining.
func (n *Node) Append(child *Node) *Node {
	n.List = append(n.List, child)
	if n.Elem == KindEnd {
		n.Elem = child.Kind
	}
	return n
}

func (n *Node) scalar() Scalar {
	return Scalar{kind: n.Kind, i: n.Int, f: n.Float, s: n.Str}
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.Bytes != nil {
		out.Bytes = append([]byte(nil), n.Bytes...)
	}
	if n.Ints != nil {
		out.Ints = append([]int64(nil), n.Ints...)
	}
	if n.List != nil {
		out.List = make([]*Node, len(n.List))
		for i, c := range n.List {
			out.List[i] = c.Clone()
		}
	}
	if n.Compound != nil {
		out.Compound = make(map[string]*Node, len(n.Compound))
		for k, c := range n.Compound {
			out.Compound[k] = c.Clone()
		}
	}
	return &out
}

func (t *Tree) Clone() *Tree { return &Tree{Root: t.Root.Clone()} }

// Lookup returns the node at p.
func (t *Tree) Lookup(p Path) (*Node, error) {
	n := t.Root
	if n == nil {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	for i, seg := range p {
		next, err := child(n, seg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p[:i+1], err)
		}
		n = next
	}
	return n, nil
}

func child(n *Node, seg string) (*Node, error) {
	switch n.Kind {
	case KindCompound:
		c, ok := n.Compound[seg]
		if !ok {
			return nil, ErrNotFound
		}
		return c, nil
	case KindList:
		i, err := strconv.Atoi(seg)
		if err != nil {
			return nil, ErrTypeMismatch
		}
		if i < 0 || i >= len(n.List) {
			return nil, ErrNotFound
		}
		return n.List[i], nil
	}
	return nil, ErrTypeMismatch
}

func (t *Tree) ReadScalar(p Path) (Scalar, error) {
	n, err := t.Lookup(p)
	if err != nil {
		return Scalar{}, err
	}
	if !n.Kind.IsScalar() {
		return Scalar{}, fmt.Errorf("%s is %s: %w", p, n.Kind, ErrTypeMismatch)
	}
	return n.scalar(), nil
}

func (t *Tree) ReadByteArray(p Path) ([]byte, error) {
	n, err := t.Lookup(p)
	if err != nil {
		return nil, err
	}
	if n.Kind != KindByteArray {
		return nil, fmt.Errorf("%s is %s: %w", p, n.Kind, ErrTypeMismatch)
	}
	return append([]byte(nil), n.Bytes...), nil
}

func (t *Tree) ReadChildren(p Path) ([]Path, error) {
	n, err := t.Lookup(p)
	if err != nil {
		return nil, err
	}
	switch n.Kind {
	case KindCompound:
		names := make([]string, 0, len(n.Compound))
		for k := range n.Compound {
			names = append(names, k)
		}
		sort.Strings(names)
		out := make([]Path, len(names))
		for i, name := range names {
			out[i] = p.Child(name)
		}
		return out, nil
	case KindList:
		out := make([]Path, len(n.List))
		for i := range n.List {
			out[i] = p.Index(i)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s is %s: %w", p, n.Kind, ErrTypeMismatch)
}

func (t *Tree) WriteScalar(p Path, v Scalar) error {
	if !v.kind.IsScalar() {
		return fmt.Errorf("%s: write %s: %w", p, v.kind, ErrTypeMismatch)
	}
	return t.put(p, ScalarNode(v))
}

func (t *Tree) WriteByteArray(p Path, b []byte) error {
	return t.put(p, ByteArrayNode(b))
}

// put replaces an existing node of the same kind or creates a new compound
// child.
func (t *Tree) put(p Path, n *Node) error {
	if len(p) == 0 {
		return fmt.Errorf("write root: %w", ErrTypeMismatch)
	}
	parent, err := t.Lookup(p.Parent())
	if err != nil {
		return err
	}
	name := p.Base()
	switch parent.Kind {
	case KindCompound:
		if cur, ok := parent.Compound[name]; ok && cur.Kind != n.Kind {
			return fmt.Errorf("%s is %s, not %s: %w", p, cur.Kind, n.Kind, ErrTypeMismatch)
		}
		parent.Set(name, n)
		return nil
	case KindList:
		i, err := strconv.Atoi(name)
		if err != nil {
			return fmt.Errorf("%s: %w", p, ErrTypeMismatch)
		}
		if i < 0 || i >= len(parent.List) {
			return fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		if cur := parent.List[i]; cur.Kind != n.Kind {
			return fmt.Errorf("%s is %s, not %s: %w", p, cur.Kind, n.Kind, ErrTypeMismatch)
		}
		parent.List[i] = n
		return nil
	}
	return fmt.Errorf("%s: parent is %s: %w", p, parent.Kind, ErrTypeMismatch)
}

// DeleteNode removes a compound child. List elements cannot be deleted
// since that would shift the locators of their siblings.
func (t *Tree) DeleteNode(p Path) error {
	if len(p) == 0 {
		return fmt.Errorf("delete root: %w", ErrTypeMismatch)
	}
	parent, err := t.Lookup(p.Parent())
	if err != nil {
		return err
	}
	if parent.Kind != KindCompound {
		return fmt.Errorf("%s: parent is %s: %w", p, parent.Kind, ErrTypeMismatch)
	}
	if _, ok := parent.Compound[p.Base()]; !ok {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	delete(parent.Compound, p.Base())
	return nil
}

var _ Facade = (*Tree)(nil)

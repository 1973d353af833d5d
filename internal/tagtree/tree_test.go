package tagtree

import (
	"errors"
	"testing"
)

func sampleTree() *Tree {
	t := New()
	item := NewCompound().
		Set("id", ScalarNode(String("minecraft:filled_map"))).
		Set("Count", ScalarNode(Byte(1))).
		Set("tag", NewCompound().Set("map", ScalarNode(Int(7))))
	t.Root.Set("chest", NewCompound().Set("Items", NewList(KindCompound, item)))
	t.Root.Set("colors", ByteArrayNode([]byte{1, 2, 3}))
	return t
}

func TestTree_ReadScalarAndChildren(t *testing.T) {
	tr := sampleTree()

	v, err := tr.ReadScalar(P("chest", "Items", "0", "tag", "map"))
	if err != nil {
		t.Fatalf("ReadScalar: %v", err)
	}
	if n, _ := v.AsInt(); n != 7 || v.Kind() != KindInt {
		t.Fatalf("map id=%v kind=%s", v, v.Kind())
	}

	kids, err := tr.ReadChildren(P())
	if err != nil {
		t.Fatalf("ReadChildren: %v", err)
	}
	if len(kids) != 2 || kids[0].String() != "/chest" || kids[1].String() != "/colors" {
		t.Fatalf("children not sorted: %v", kids)
	}

	items, err := tr.ReadChildren(P("chest", "Items"))
	if err != nil || len(items) != 1 || items[0].String() != "/chest/Items/0" {
		t.Fatalf("list children=%v err=%v", items, err)
	}
}

func TestTree_NoSilentCoercion(t *testing.T) {
	tr := sampleTree()

	if _, err := tr.ReadScalar(P("colors")); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("ReadScalar(byte array) err=%v, want ErrTypeMismatch", err)
	}
	if _, err := tr.ReadByteArray(P("chest")); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("ReadByteArray(compound) err=%v, want ErrTypeMismatch", err)
	}
	if _, err := ReadString(tr, P("chest", "Items", "0", "Count")); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("ReadString(byte) err=%v, want ErrTypeMismatch", err)
	}
	if _, err := tr.ReadScalar(P("chest", "Items", "3")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("out of range err=%v, want ErrNotFound", err)
	}
	if _, err := tr.ReadScalar(P("nope")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err=%v, want ErrNotFound", err)
	}
	if err := tr.WriteScalar(P("chest", "Items", "0", "tag", "map"), Long(9)); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("write long over int err=%v, want ErrTypeMismatch", err)
	}
}

func TestTree_WriteAndDelete(t *testing.T) {
	tr := sampleTree()
	p := P("chest", "Items", "0", "tag", "map")

	cur, _ := tr.ReadScalar(p)
	next, err := cur.WithInt(5)
	if err != nil {
		t.Fatalf("WithInt: %v", err)
	}
	if err := tr.WriteScalar(p, next); err != nil {
		t.Fatalf("WriteScalar: %v", err)
	}
	if n, _ := ReadInt(tr, p); n != 5 {
		t.Fatalf("after write map=%d want 5", n)
	}

	if err := tr.WriteByteArray(P("colors"), []byte{9}); err != nil {
		t.Fatalf("WriteByteArray: %v", err)
	}
	b, _ := tr.ReadByteArray(P("colors"))
	b[0] = 0
	if again, _ := tr.ReadByteArray(P("colors")); again[0] != 9 {
		t.Fatalf("ReadByteArray must return a copy")
	}

	if err := tr.DeleteNode(P("chest", "Items", "0")); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("delete list element err=%v, want ErrTypeMismatch", err)
	}
	if err := tr.DeleteNode(P("colors")); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if err := tr.DeleteNode(P("colors")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err=%v, want ErrNotFound", err)
	}
}

func TestPath_RoundTrip(t *testing.T) {
	p := P("dimensions", "minecraft:overworld", "region", "r.0.-1")
	if got := ParsePath(p.String()); !got.Equal(p) {
		t.Fatalf("ParsePath(%q)=%v", p.String(), got)
	}
	if !p.HasPrefix(P("dimensions")) || p.HasPrefix(P("data")) {
		t.Fatalf("HasPrefix mismatch")
	}
	c := p.Child("c.1.2")
	if p.Base() != "r.0.-1" || c.Parent().String() != p.String() {
		t.Fatalf("Child/Parent mismatch: %v", c)
	}
}

func TestScalar_WithIntKeepsWidth(t *testing.T) {
	cases := []struct {
		in   Scalar
		v    int64
		fits bool
	}{
		{Byte(1), 127, true},
		{Byte(1), 128, false},
		{Short(1), 32767, true},
		{Short(1), 40000, false},
		{Short(1), -32769, false},
		{Int(1), 1 << 31, false},
		{Long(1), 1 << 40, true},
	}
	for _, c := range cases {
		got, err := c.in.WithInt(c.v)
		if !c.fits {
			if !errors.Is(err, ErrTypeMismatch) {
				t.Fatalf("%s WithInt(%d): err=%v want ErrTypeMismatch", c.in.Kind(), c.v, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s WithInt(%d): %v", c.in.Kind(), c.v, err)
		}
		if n, _ := got.AsInt(); n != c.v || got.Kind() != c.in.Kind() {
			t.Fatalf("%s WithInt(%d)=%v kind %s", c.in.Kind(), c.v, got, got.Kind())
		}
	}
}

package tagtree

import (
	"fmt"
	"math"
)

// Kind mirrors the binary tag type ids.
type Kind uint8

const (
	KindEnd Kind = iota
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindByteArray
	KindString
	KindList
	KindCompound
	KindIntArray
	KindLongArray
)

var kindNames = [...]string{
	KindEnd:       "end",
	KindByte:      "byte",
	KindShort:     "short",
	KindInt:       "int",
	KindLong:      "long",
	KindFloat:     "float",
	KindDouble:    "double",
	KindByteArray: "byte_array",
	KindString:    "string",
	KindList:      "list",
	KindCompound:  "compound",
	KindIntArray:  "int_array",
	KindLongArray: "long_array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) IsInteger() bool {
	return k == KindByte || k == KindShort || k == KindInt || k == KindLong
}

func (k Kind) IsScalar() bool {
	return k.IsInteger() || k == KindFloat || k == KindDouble || k == KindString
}

// Scalar is a single numeric or string tag value.
type Scalar struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Byte(v int8) Scalar      { return Scalar{kind: KindByte, i: int64(v)} }
func Short(v int16) Scalar    { return Scalar{kind: KindShort, i: int64(v)} }
func Int(v int32) Scalar      { return Scalar{kind: KindInt, i: int64(v)} }
func Long(v int64) Scalar     { return Scalar{kind: KindLong, i: v} }
func Double(v float64) Scalar { return Scalar{kind: KindDouble, f: v} }
func String(v string) Scalar  { return Scalar{kind: KindString, s: v} }

func (s Scalar) Kind() Kind { return s.kind }

func (s Scalar) AsInt() (int64, error) {
	if !s.kind.IsInteger() {
		return 0, fmt.Errorf("%s is not an integer: %w", s.kind, ErrTypeMismatch)
	}
	return s.i, nil
}

func (s Scalar) AsFloat() (float64, error) {
	if s.kind != KindFloat && s.kind != KindDouble {
		return 0, fmt.Errorf("%s is not a float: %w", s.kind, ErrTypeMismatch)
	}
	return s.f, nil
}

func (s Scalar) AsString() (string, error) {
	if s.kind != KindString {
		return "", fmt.Errorf("%s is not a string: %w", s.kind, ErrTypeMismatch)
	}
	return s.s, nil
}

// WithInt returns an integer scalar of the same kind holding v. v must fit
// the kind's width.
func (s Scalar) WithInt(v int64) (Scalar, error) {
	if !s.kind.IsInteger() {
		return s, fmt.Errorf("%s is not an integer: %w", s.kind, ErrTypeMismatch)
	}
	var lo, hi int64 = math.MinInt64, math.MaxInt64
	switch s.kind {
	case KindByte:
		lo, hi = math.MinInt8, math.MaxInt8
	case KindShort:
		lo, hi = math.MinInt16, math.MaxInt16
	case KindInt:
		lo, hi = math.MinInt32, math.MaxInt32
	}
	if v < lo || v > hi {
		return s, fmt.Errorf("%d does not fit %s: %w", v, s.kind, ErrTypeMismatch)
	}
	return Scalar{kind: s.kind, i: v}, nil
}

func (s Scalar) String() string {
	switch {
	case s.kind.IsInteger():
		return fmt.Sprintf("%d", s.i)
	case s.kind == KindFloat || s.kind == KindDouble:
		return fmt.Sprintf("%g", s.f)
	case s.kind == KindString:
		return fmt.Sprintf("%q", s.s)
	}
	return s.kind.String()
}

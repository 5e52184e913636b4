// Package keycodec implements the order-preserving binary encoding of
// composite keys used throughout the store: every key is a sequence of
// typed parts, and encode(a) < encode(b) (as byte strings) iff a < b under
// the documented total order.
package keycodec

import "math/big"

// PartKind identifies the variant carried by a KeyPart.
type PartKind uint8

const (
	KindBytes PartKind = iota
	KindString
	KindInt
	KindFloat64
	KindFalse
	KindTrue
)

// Fixed tag byte ordering: Bytes < String < Int < Float < False < True.
// The tag is always the first byte written for a part, so lexicographic
// comparison of the encoded form falls out of comparing tags first.
const (
	tagBytes  byte = 0x01
	tagString byte = 0x02
	tagInt    byte = 0x03
	tagFloat  byte = 0x04
	tagFalse  byte = 0x05
	tagTrue   byte = 0x06
)

// KeyPart is one element of a composite Key.
type KeyPart struct {
	kind  PartKind
	bytes []byte
	str   string
	i     *big.Int
	f     float64
}

// Key is an ordered sequence of typed parts.
type Key []KeyPart

// Bytes constructs a Bytes-typed key part.
func Bytes(b []byte) KeyPart {
	cp := make([]byte, len(b))
	copy(cp, b)
	return KeyPart{kind: KindBytes, bytes: cp}
}

// String constructs a String-typed key part.
func String(s string) KeyPart {
	return KeyPart{kind: KindString, str: s}
}

// Int constructs an Int-typed key part from a signed, arbitrary-precision
// integer.
func Int(i *big.Int) KeyPart {
	return KeyPart{kind: KindInt, i: new(big.Int).Set(i)}
}

// IntFromInt64 is a convenience constructor for small integers.
func IntFromInt64(v int64) KeyPart {
	return KeyPart{kind: KindInt, i: big.NewInt(v)}
}

// Float64 constructs a Float64-typed key part. f must not be NaN.
func Float64(f float64) KeyPart {
	return KeyPart{kind: KindFloat64, f: f}
}

// False and True construct the two boolean key parts.
func False() KeyPart { return KeyPart{kind: KindFalse} }
func True() KeyPart  { return KeyPart{kind: KindTrue} }

// Kind reports the part's variant.
func (p KeyPart) Kind() PartKind { return p.kind }

// AsBytes returns the payload of a Bytes part.
func (p KeyPart) AsBytes() []byte { return p.bytes }

// AsString returns the payload of a String part.
func (p KeyPart) AsString() string { return p.str }

// AsInt returns the payload of an Int part.
func (p KeyPart) AsInt() *big.Int { return p.i }

// AsFloat64 returns the payload of a Float64 part.
func (p KeyPart) AsFloat64() float64 { return p.f }

// Equal reports whether two parts have the same kind and value.
func (p KeyPart) Equal(o KeyPart) bool {
	if p.kind != o.kind {
		return false
	}
	switch p.kind {
	case KindBytes:
		return string(p.bytes) == string(o.bytes)
	case KindString:
		return p.str == o.str
	case KindInt:
		return p.i.Cmp(o.i) == 0
	case KindFloat64:
		return p.f == o.f
	default:
		return true
	}
}

// Equal reports whether two keys have identical parts in the same order.
func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if !k[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

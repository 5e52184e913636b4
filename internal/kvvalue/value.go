// Package kvvalue implements the tagged-union value type stored alongside
// every KV row, and the integer encoding tag persisted next to it.
package kvvalue

import (
	"encoding/binary"
	"fmt"
)

// Encoding identifies how the raw bytes column of a KV row should be
// interpreted.
type Encoding int64

const (
	// EncodingV8 carries an opaque value serialized by the host runtime
	// (treated as opaque bytes by this store).
	EncodingV8 Encoding = 0
	// EncodingBytes carries an uninterpreted byte string supplied directly
	// by the caller.
	EncodingBytes Encoding = 1
	// EncodingU64 carries an 8-byte big-endian unsigned integer, the only
	// encoding numeric mutations (Sum/Min/Max) operate on.
	EncodingU64 Encoding = 2
)

// Value is a tagged union over the three storable value shapes.
type Value interface {
	Encoding() Encoding
	raw() []byte
}

// V8Bytes is an opaque value produced by the host runtime's serializer.
type V8Bytes []byte

func (V8Bytes) Encoding() Encoding { return EncodingV8 }
func (v V8Bytes) raw() []byte      { return v }

// RawBytes is a caller-supplied byte string with no further interpretation.
type RawBytes []byte

func (RawBytes) Encoding() Encoding { return EncodingBytes }
func (v RawBytes) raw() []byte      { return v }

// U64 is an unsigned 64-bit integer, the operand and storage type for
// Sum/Min/Max mutations.
type U64 uint64

func (U64) Encoding() Encoding { return EncodingU64 }
func (v U64) raw() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

// Marshal serializes a Value to the bytes stored in the KV row's value
// column, alongside its Encoding tag stored in a separate column.
func Marshal(v Value) []byte {
	return v.raw()
}

// Unmarshal reconstructs a Value from stored bytes and its encoding tag.
func Unmarshal(enc Encoding, data []byte) (Value, error) {
	switch enc {
	case EncodingV8:
		return V8Bytes(data), nil
	case EncodingBytes:
		return RawBytes(data), nil
	case EncodingU64:
		if len(data) != 8 {
			return nil, fmt.Errorf("u64 value must be 8 bytes, got %d", len(data))
		}
		return U64(binary.BigEndian.Uint64(data)), nil
	default:
		return nil, fmt.Errorf("unknown value encoding %d", enc)
	}
}

// AsU64 returns the underlying uint64 if v carries one, and a typed error
// if the stored value is not a U64 — the error numeric mutations
// (Sum/Min/Max) return when applied to a non-U64 existing value.
func AsU64(v Value) (uint64, error) {
	u, ok := v.(U64)
	if !ok {
		return 0, fmt.Errorf("%w: value is not a U64", ErrNotU64)
	}
	return uint64(u), nil
}

// ErrNotU64 is wrapped by AsU64 when the stored value is not numeric.
var ErrNotU64 = fmt.Errorf("value type mismatch")

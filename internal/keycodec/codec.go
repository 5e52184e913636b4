package keycodec

import (
	"fmt"
	"math"
	"math/big"
)

// MaxWriteKeyBytes is the largest encoded key accepted by a mutating
// operation.
const MaxWriteKeyBytes = 2048

// MaxReadKeyBytes is the largest encoded key accepted by a read range
// bound; one byte larger than MaxWriteKeyBytes to accommodate the
// 0x00/0xff suffix a range appends to its prefix.
const MaxReadKeyBytes = MaxWriteKeyBytes + 1

// Encode serializes a Key into its order-preserving byte representation.
func Encode(k Key) ([]byte, error) {
	var out []byte
	for i, part := range k {
		enc, err := encodePart(part)
		if err != nil {
			return nil, fmt.Errorf("key part %d: %w", i, err)
		}
		out = append(out, enc...)
	}
	return out, nil
}

func encodePart(p KeyPart) ([]byte, error) {
	switch p.kind {
	case KindBytes:
		return append([]byte{tagBytes}, escapeAndTerminate(p.bytes)...), nil
	case KindString:
		return append([]byte{tagString}, escapeAndTerminate([]byte(p.str))...), nil
	case KindInt:
		body, err := encodeInt(p.i)
		if err != nil {
			return nil, err
		}
		return append([]byte{tagInt}, body...), nil
	case KindFloat64:
		body, err := encodeFloat(p.f)
		if err != nil {
			return nil, err
		}
		return append([]byte{tagFloat}, body...), nil
	case KindFalse:
		return []byte{tagFalse}, nil
	case KindTrue:
		return []byte{tagTrue}, nil
	default:
		return nil, fmt.Errorf("unknown key part kind %d", p.kind)
	}
}

// escapeAndTerminate escapes internal 0x00 bytes as 0x00 0xff and appends a
// single 0x00 terminator. Because every internal zero byte is always
// followed by 0xff, a lone 0x00 can only be the terminator.
func escapeAndTerminate(b []byte) []byte {
	out := make([]byte, 0, len(b)+1)
	for _, c := range b {
		if c == 0x00 {
			out = append(out, 0x00, 0xff)
		} else {
			out = append(out, c)
		}
	}
	out = append(out, 0x00)
	return out
}

// readEscaped consumes an escaped-and-terminated byte string starting at
// buf[0], returning the unescaped content and the number of bytes consumed
// (including the terminator).
func readEscaped(buf []byte) ([]byte, int, error) {
	var out []byte
	i := 0
	for {
		if i >= len(buf) {
			return nil, 0, fmt.Errorf("unterminated key part")
		}
		c := buf[i]
		if c != 0x00 {
			out = append(out, c)
			i++
			continue
		}
		// c == 0x00: either an escaped zero (followed by 0xff) or the terminator.
		if i+1 < len(buf) && buf[i+1] == 0xff {
			out = append(out, 0x00)
			i += 2
			continue
		}
		// Terminator.
		return out, i + 1, nil
	}
}

const (
	intNegative byte = 0x00
	intZero     byte = 0x01
	intPositive byte = 0x02
)

// encodeInt implements an order-preserving, arbitrary-precision signed
// integer encoding: a one-byte sign indicator (negative < zero < positive),
// then for non-zero values a length byte and the magnitude bytes.
//
// Positive values: length ascending, then big-endian magnitude ascending.
// Negative values: length encoded as (0xff - length) so that numbers
// requiring more bytes (larger magnitude, i.e. more negative) sort first;
// magnitude is stored as its ones'-complement within that byte length so
// that a larger magnitude (more negative) sorts before a smaller one.
func encodeInt(v *big.Int) ([]byte, error) {
	switch v.Sign() {
	case 0:
		return []byte{intZero}, nil
	case 1:
		mag := v.Bytes()
		if len(mag) > 255 {
			return nil, fmt.Errorf("integer magnitude too large to encode")
		}
		out := make([]byte, 0, 2+len(mag))
		out = append(out, intPositive, byte(len(mag)))
		out = append(out, mag...)
		return out, nil
	default:
		abs := new(big.Int).Abs(v)
		mag := abs.Bytes()
		if len(mag) > 255 {
			return nil, fmt.Errorf("integer magnitude too large to encode")
		}
		l := len(mag)
		max := new(big.Int).Lsh(big.NewInt(1), uint(8*l))
		max.Sub(max, big.NewInt(1))
		complement := new(big.Int).Sub(max, abs)
		cbytes := complement.Bytes()
		padded := make([]byte, l)
		copy(padded[l-len(cbytes):], cbytes)
		out := make([]byte, 0, 2+l)
		out = append(out, intNegative, 0xff-byte(l))
		out = append(out, padded...)
		return out, nil
	}
}

func decodeInt(buf []byte) (*big.Int, int, error) {
	if len(buf) < 1 {
		return nil, 0, fmt.Errorf("truncated int part")
	}
	switch buf[0] {
	case intZero:
		return big.NewInt(0), 1, nil
	case intPositive:
		if len(buf) < 2 {
			return nil, 0, fmt.Errorf("truncated int part")
		}
		l := int(buf[1])
		if len(buf) < 2+l {
			return nil, 0, fmt.Errorf("truncated int part")
		}
		mag := new(big.Int).SetBytes(buf[2 : 2+l])
		return mag, 2 + l, nil
	case intNegative:
		if len(buf) < 2 {
			return nil, 0, fmt.Errorf("truncated int part")
		}
		l := int(0xff - buf[1])
		if len(buf) < 2+l {
			return nil, 0, fmt.Errorf("truncated int part")
		}
		complement := new(big.Int).SetBytes(buf[2 : 2+l])
		max := new(big.Int).Lsh(big.NewInt(1), uint(8*l))
		max.Sub(max, big.NewInt(1))
		abs := new(big.Int).Sub(max, complement)
		abs.Neg(abs)
		return abs, 2 + l, nil
	default:
		return nil, 0, fmt.Errorf("invalid int sign byte 0x%02x", buf[0])
	}
}

const float64Bytes = 8

// encodeFloat produces an order-preserving 8-byte big-endian transform of
// an IEEE-754 double: flip the sign bit for positives, flip all bits for
// negatives. NaN is rejected.
func encodeFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) {
		return nil, fmt.Errorf("NaN is not a valid key part")
	}
	bits := math.Float64bits(f)
	if f >= 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	out := make([]byte, float64Bytes)
	for i := 0; i < float64Bytes; i++ {
		out[float64Bytes-1-i] = byte(bits >> (8 * i))
	}
	return out, nil
}

func decodeFloat(buf []byte) (float64, int, error) {
	if len(buf) < float64Bytes {
		return 0, 0, fmt.Errorf("truncated float part")
	}
	var bits uint64
	for i := 0; i < float64Bytes; i++ {
		bits = bits<<8 | uint64(buf[i])
	}
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), float64Bytes, nil
}

// Decode parses a full encoded key back into its typed parts.
func Decode(buf []byte) (Key, error) {
	var k Key
	for len(buf) > 0 {
		tag := buf[0]
		rest := buf[1:]
		switch tag {
		case tagBytes:
			content, n, err := readEscaped(rest)
			if err != nil {
				return nil, err
			}
			k = append(k, Bytes(content))
			buf = rest[n:]
		case tagString:
			content, n, err := readEscaped(rest)
			if err != nil {
				return nil, err
			}
			k = append(k, String(string(content)))
			buf = rest[n:]
		case tagInt:
			v, n, err := decodeInt(rest)
			if err != nil {
				return nil, err
			}
			k = append(k, Int(v))
			buf = rest[n:]
		case tagFloat:
			f, n, err := decodeFloat(rest)
			if err != nil {
				return nil, err
			}
			k = append(k, Float64(f))
			buf = rest[n:]
		case tagFalse:
			k = append(k, False())
			buf = rest
		case tagTrue:
			k = append(k, True())
			buf = rest
		default:
			return nil, fmt.Errorf("invalid key part tag 0x%02x", tag)
		}
	}
	return k, nil
}

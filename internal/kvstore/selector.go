package kvstore

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// Selector is the declarative form of a read range: exactly one of the
// three shapes described in spec §4.2 must be satisfied by the combination
// of fields set.
//
//   - Prefixed:   Prefix set, at most one of Start/End also set (as an
//     override of the matching bound).
//   - Explicit:   Start and End both set, Prefix unset.
//   - Start-only: only Start set.
//
// A nil slice means "unset"; an empty-but-non-nil slice means "set to the
// empty byte string".
type Selector struct {
	Prefix []byte
	Start  []byte
	End    []byte
}

// Materialize resolves a Selector to its concrete half-open [start, end)
// byte range.
func (s Selector) Materialize() (start, end []byte, err error) {
	hasPrefix := s.Prefix != nil
	hasStart := s.Start != nil
	hasEnd := s.End != nil

	switch {
	case hasPrefix:
		if hasStart && hasEnd {
			return nil, nil, fmt.Errorf("%w: prefix cannot be combined with both start and end", ErrInvalidRange)
		}
		start = s.Start
		if start == nil {
			start = appendByte(s.Prefix, 0x00)
		}
		end = s.End
		if end == nil {
			end = appendByte(s.Prefix, 0xff)
		}
		return start, end, nil
	case hasStart && hasEnd:
		return s.Start, s.End, nil
	case hasStart:
		return s.Start, appendByte(s.Start, 0x00), nil
	default:
		return nil, nil, fmt.Errorf("%w: must set prefix, start+end, or start alone", ErrInvalidRange)
	}
}

// CommonPrefix returns the selector's declared prefix, or the longest
// shared byte prefix of its materialized start/end otherwise.
func (s Selector) CommonPrefix() ([]byte, error) {
	if s.Prefix != nil {
		return s.Prefix, nil
	}
	start, end, err := s.Materialize()
	if err != nil {
		return nil, err
	}
	return longestCommonPrefix(start, end), nil
}

func longestCommonPrefix(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

func appendByte(b []byte, c byte) []byte {
	out := make([]byte, len(b)+1)
	copy(out, b)
	out[len(b)] = c
	return out
}

// EncodeCursor produces the URL-safe base64 token for boundaryKey relative
// to sel's common prefix: the bytes of boundaryKey past that prefix.
func EncodeCursor(sel Selector, boundaryKey []byte) (string, error) {
	prefix, err := sel.CommonPrefix()
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(boundaryKey, prefix) {
		return "", fmt.Errorf("invalid boundary key: outside range's common prefix")
	}
	suffix := boundaryKey[len(prefix):]
	return base64.RawURLEncoding.EncodeToString(suffix), nil
}

// Resume resolves the [start, end) bound to scan given a previously issued
// cursor (or the empty string for a fresh scan), honoring direction.
// Forward reads resume just past the cursor's key; reverse reads stop at
// it. The resumed bound must remain within the selector's declared range.
func (s Selector) Resume(cursor string, reverse bool) (start, end []byte, err error) {
	start, end, err = s.Materialize()
	if err != nil {
		return nil, nil, err
	}
	if cursor == "" {
		return start, end, nil
	}

	prefix, err := s.CommonPrefix()
	if err != nil {
		return nil, nil, err
	}
	suffix, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	boundary := append(append([]byte{}, prefix...), suffix...)

	if reverse {
		newEnd := boundary
		if bytes.Compare(newEnd, start) < 0 || bytes.Compare(newEnd, end) > 0 {
			return nil, nil, ErrCursorOutOfBounds
		}
		return start, newEnd, nil
	}

	newStart := appendByte(boundary, 0x00)
	if bytes.Compare(newStart, start) < 0 || bytes.Compare(newStart, end) > 0 {
		return nil, nil, ErrCursorOutOfBounds
	}
	return newStart, end, nil
}

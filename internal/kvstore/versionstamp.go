package kvstore

import (
	"encoding/binary"
	"encoding/hex"
)

// Versionstamp is a 10-byte monotonically increasing identifier assigned at
// commit: an 8-byte big-endian version followed by two reserved zero
// bytes (intra-batch sequence, unused by this implementation since every
// atomic write commits at a single version).
type Versionstamp [10]byte

// EncodeVersionstamp builds the 10-byte versionstamp for a commit version.
func EncodeVersionstamp(version int64) Versionstamp {
	var vs Versionstamp
	binary.BigEndian.PutUint64(vs[:8], uint64(version))
	return vs
}

// String returns the lowercase hex string returned to external callers.
func (vs Versionstamp) String() string {
	return hex.EncodeToString(vs[:])
}

// DecodeVersionstamp parses a lowercase hex versionstamp string produced by
// String.
func DecodeVersionstamp(s string) (Versionstamp, error) {
	var vs Versionstamp
	b, err := hex.DecodeString(s)
	if err != nil {
		return vs, err
	}
	if len(b) != len(vs) {
		return vs, errVersionstampLength
	}
	copy(vs[:], b)
	return vs, nil
}

// VersionOf extracts the commit version encoded in a versionstamp.
func (vs Versionstamp) VersionOf() int64 {
	return int64(binary.BigEndian.Uint64(vs[:8]))
}

var errVersionstampLength = &versionstampLengthError{}

type versionstampLengthError struct{}

func (*versionstampLengthError) Error() string { return "versionstamp must be 10 bytes" }

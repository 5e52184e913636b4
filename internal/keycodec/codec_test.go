package keycodec

import (
	"bytes"
	"math"
	"math/big"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, k Key) []byte {
	t.Helper()
	b, err := Encode(k)
	require.NoError(t, err)
	return b
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Key{
		{},
		{String("a")},
		{Bytes([]byte{0x00, 0x01, 0xff})},
		{IntFromInt64(0)},
		{IntFromInt64(-1)},
		{IntFromInt64(1)},
		{IntFromInt64(-123456789012345)},
		{Int(new(big.Int).Lsh(big.NewInt(1), 512))},
		{Float64(3.14)},
		{Float64(-3.14)},
		{Float64(0)},
		{False()},
		{True()},
		{String("a"), IntFromInt64(1), True()},
	}

	for _, k := range cases {
		enc := mustEncode(t, k)
		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.True(t, k.Equal(dec), "round trip mismatch for %#v -> %#v", k, dec)
	}
}

func TestEncodeRejectsNaN(t *testing.T) {
	_, err := Encode(Key{Float64(math.NaN())})
	assert.Error(t, err)
}

func TestOrderPreserving(t *testing.T) {
	type pair struct {
		a, b Key
	}
	less := []pair{
		{Key{Bytes([]byte("a"))}, Key{String("a")}},
		{Key{String("a")}, Key{IntFromInt64(1)}},
		{Key{IntFromInt64(1)}, Key{Float64(1)}},
		{Key{Float64(1)}, Key{False()}},
		{Key{False()}, Key{True()}},
		{Key{IntFromInt64(-2)}, Key{IntFromInt64(-1)}},
		{Key{IntFromInt64(-1)}, Key{IntFromInt64(0)}},
		{Key{IntFromInt64(0)}, Key{IntFromInt64(1)}},
		{Key{IntFromInt64(1)}, Key{IntFromInt64(2)}},
		{Key{IntFromInt64(255)}, Key{IntFromInt64(256)}},
		{Key{Int(new(big.Int).Neg(big.NewInt(1 << 40)))}, Key{IntFromInt64(-1)}},
		{Key{Float64(-1)}, Key{Float64(0)}},
		{Key{Float64(0)}, Key{Float64(1)}},
		{Key{Float64(1)}, Key{Float64(2)}},
		{Key{String("a")}, Key{String("b")}},
		{Key{String("a")}, Key{String("aa")}},
		{Key{Bytes([]byte{1})}, Key{Bytes([]byte{1, 0})}},
		{Key{Bytes([]byte{0})}, Key{Bytes([]byte{1})}},
	}

	for _, p := range less {
		a := mustEncode(t, p.a)
		b := mustEncode(t, p.b)
		assert.True(t, bytes.Compare(a, b) < 0, "expected %v < %v", p.a, p.b)
	}
}

func TestOrderPreservingSortedInts(t *testing.T) {
	values := []int64{-1 << 40, -1000, -1, 0, 1, 1000, 1 << 40}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	var encs [][]byte
	for _, v := range values {
		encs = append(encs, mustEncode(t, Key{IntFromInt64(v)}))
	}
	for i := 1; i < len(encs); i++ {
		assert.True(t, bytes.Compare(encs[i-1], encs[i]) < 0, "index %d: %v should sort before %v", i, values[i-1], values[i])
	}
}

func TestWriteKeySizeBoundary(t *testing.T) {
	// A key whose encoded form is exactly MaxWriteKeyBytes succeeds to encode;
	// enforcement of the boundary itself is the atomic-write layer's job, but
	// the codec must produce exactly the expected length for callers to check.
	payload := bytes.Repeat([]byte{0x41}, MaxWriteKeyBytes-2) // tag + terminator = 2 bytes overhead
	enc := mustEncode(t, Key{Bytes(payload)})
	assert.Equal(t, MaxWriteKeyBytes, len(enc))
}

func TestDecodeRejectsUnterminated(t *testing.T) {
	_, err := Decode([]byte{tagString, 'a', 'b'})
	assert.Error(t, err)
}

func TestDecodeRejectsInvalidTag(t *testing.T) {
	_, err := Decode([]byte{0xEE})
	assert.Error(t, err)
}

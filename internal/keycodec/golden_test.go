package keycodec

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TestEncodeGoldenVectors locks the exact byte layout of the encoding so an
// accidental format change is caught immediately; these vectors also double
// as documentation of what the wire format actually looks like.
func TestEncodeGoldenVectors(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata"))

	keys := map[string]Key{
		"empty":        {},
		"string_a":     {String("a")},
		"bytes_nulls":  {Bytes([]byte{0x00, 0x01, 0x00})},
		"int_zero":     {IntFromInt64(0)},
		"int_negative": {IntFromInt64(-42)},
		"int_positive": {IntFromInt64(42)},
		"int_big":      {Int(new(big.Int).Lsh(big.NewInt(1), 200))},
		"float_pi":     {Float64(3.14159)},
		"composite":    {String("users"), IntFromInt64(7), True()},
	}

	var lines []string
	for name, k := range keys {
		enc, err := Encode(k)
		if err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
		lines = append(lines, name+" "+hex.EncodeToString(enc))
	}

	g.Assert(t, "key_encoding_vectors", []byte(strings.Join(sortedLines(lines), "\n")+"\n"))
}

func sortedLines(lines []string) []string {
	// Simple insertion sort keeps this test dependency-free and deterministic.
	for i := 1; i < len(lines); i++ {
		for j := i; j > 0 && lines[j-1] > lines[j]; j-- {
			lines[j-1], lines[j] = lines[j], lines[j-1]
		}
	}
	return lines
}

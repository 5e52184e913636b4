package kvvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []Value{
		V8Bytes{0x01, 0x02},
		RawBytes("hello"),
		U64(42),
		U64(0),
	}

	for _, v := range cases {
		data := Marshal(v)
		got, err := Unmarshal(v.Encoding(), data)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestUnmarshalRejectsShortU64(t *testing.T) {
	_, err := Unmarshal(EncodingU64, []byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestAsU64TypedError(t *testing.T) {
	_, err := AsU64(RawBytes("not numeric"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotU64)

	v, err := AsU64(U64(7))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)
}

package kvstore

import (
	"bytes"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticekv/lattice/internal/keycodec"
	"github.com/latticekv/lattice/internal/kvvalue"
)

func nullIntInvalid() sql.NullInt64           { return sql.NullInt64{} }
func nullIntValid(v int64) sql.NullInt64      { return sql.NullInt64{Int64: v, Valid: true} }

func TestValidateRejectsTooManyChecks(t *testing.T) {
	checks := make([]Check, MaxChecks+1)
	for i := range checks {
		checks[i] = Check{Key: keycodec.Key{keycodec.String("k")}}
	}
	err := AtomicWrite{Checks: checks}.validate()
	assert.True(t, errors.Is(err, ErrTooManyChecks))
}

func TestValidateRejectsTooManyMutations(t *testing.T) {
	muts := make([]Mutation, MaxMutations+1)
	for i := range muts {
		muts[i] = Mutation{Key: keycodec.Key{keycodec.String("k")}, Kind: MutationDelete}
	}
	err := AtomicWrite{Mutations: muts}.validate()
	assert.True(t, errors.Is(err, ErrTooManyMutations))
}

func TestValidateWriteKeyBoundary(t *testing.T) {
	// A string part's encoding is 1 tag byte + content + 1 terminator
	// byte; pick a content length so the encoded key lands exactly at
	// keycodec.MaxWriteKeyBytes, then one byte over.
	okContent := bytes.Repeat([]byte{'x'}, keycodec.MaxWriteKeyBytes-2)
	okKey := keycodec.Key{keycodec.String(string(okContent))}
	okErr := AtomicWrite{Mutations: []Mutation{{Key: okKey, Kind: MutationDelete}}}.validate()
	assert.NoError(t, okErr)

	tooLong := bytes.Repeat([]byte{'x'}, keycodec.MaxWriteKeyBytes-1)
	tooLongKey := keycodec.Key{keycodec.String(string(tooLong))}
	err := AtomicWrite{Mutations: []Mutation{{Key: tooLongKey, Kind: MutationDelete}}}.validate()
	assert.True(t, errors.Is(err, ErrKeyTooLarge))
}

func TestValidateValueSizeBoundary(t *testing.T) {
	key := keycodec.Key{keycodec.String("k")}

	okValue := kvvalue.RawBytes(bytes.Repeat([]byte{0}, MaxValueSize))
	err := AtomicWrite{Mutations: []Mutation{{Key: key, Kind: MutationSet, Value: okValue}}}.validate()
	assert.NoError(t, err)

	tooBig := kvvalue.RawBytes(bytes.Repeat([]byte{0}, MaxValueSize+1))
	err = AtomicWrite{Mutations: []Mutation{{Key: key, Kind: MutationSet, Value: tooBig}}}.validate()
	assert.True(t, errors.Is(err, ErrValueTooLarge))
}

func TestValidateRejectsOversizeEnqueuePayload(t *testing.T) {
	err := AtomicWrite{Enqueues: []Enqueue{{Payload: bytes.Repeat([]byte{0}, MaxEnqueuePayload+1)}}}.validate()
	assert.True(t, errors.Is(err, ErrValueTooLarge))
}

func TestValidateRejectsEmptyKey(t *testing.T) {
	err := AtomicWrite{Mutations: []Mutation{{Key: keycodec.Key{}, Kind: MutationDelete}}}.validate()
	assert.Error(t, err)
}

func TestValidateSetRequiresValue(t *testing.T) {
	key := keycodec.Key{keycodec.String("k")}
	err := AtomicWrite{Mutations: []Mutation{{Key: key, Kind: MutationSet}}}.validate()
	assert.True(t, errors.Is(err, ErrInvalidMutation))
}

func TestExpirationForRelativeOffset(t *testing.T) {
	in := int64(500)
	assert.Equal(t, int64(1500), expirationFor(&in, 1000))
	assert.Equal(t, int64(-1), expirationFor(nil, 1000))
}

func TestCheckSatisfied(t *testing.T) {
	vs := EncodeVersionstamp(7)

	ok, err := checkSatisfied(Check{Expected: nil}, nullIntInvalid())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checkSatisfied(Check{Expected: nil}, nullIntValid(7))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = checkSatisfied(Check{Expected: &vs}, nullIntInvalid())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = checkSatisfied(Check{Expected: &vs}, nullIntValid(7))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checkSatisfied(Check{Expected: &vs}, nullIntValid(8))
	require.NoError(t, err)
	assert.False(t, ok)
}

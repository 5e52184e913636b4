package kvstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorMaterializePrefixed(t *testing.T) {
	sel := Selector{Prefix: []byte("users")}
	start, end, err := sel.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []byte("users\x00"), start)
	assert.Equal(t, []byte("users\xff"), end)
}

func TestSelectorMaterializePrefixedWithStartOverride(t *testing.T) {
	sel := Selector{Prefix: []byte("users"), Start: []byte("users\x00bob")}
	start, end, err := sel.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []byte("users\x00bob"), start)
	assert.Equal(t, []byte("users\xff"), end)
}

func TestSelectorMaterializePrefixedWithBothOverridesInvalid(t *testing.T) {
	sel := Selector{Prefix: []byte("users"), Start: []byte("a"), End: []byte("b")}
	_, _, err := sel.Materialize()
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func TestSelectorMaterializeExplicit(t *testing.T) {
	sel := Selector{Start: []byte("a"), End: []byte("z")}
	start, end, err := sel.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), start)
	assert.Equal(t, []byte("z"), end)
}

func TestSelectorMaterializeStartOnly(t *testing.T) {
	sel := Selector{Start: []byte("k")}
	start, end, err := sel.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []byte("k"), start)
	assert.Equal(t, []byte("k\x00"), end)
}

func TestSelectorMaterializeEmptyInvalid(t *testing.T) {
	_, _, err := Selector{}.Materialize()
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func TestSelectorCommonPrefixDeclared(t *testing.T) {
	sel := Selector{Prefix: []byte("users")}
	p, err := sel.CommonPrefix()
	require.NoError(t, err)
	assert.Equal(t, []byte("users"), p)
}

func TestSelectorCommonPrefixDerivedFromStartOnly(t *testing.T) {
	sel := Selector{Start: []byte("users\x00bob")}
	p, err := sel.CommonPrefix()
	require.NoError(t, err)
	assert.Equal(t, []byte("users\x00bob"), p)
}

func TestCursorRoundTripForward(t *testing.T) {
	sel := Selector{Prefix: []byte("users")}
	boundary := []byte("users\x00bob")
	cursor, err := EncodeCursor(sel, boundary)
	require.NoError(t, err)

	start, end, err := sel.Resume(cursor, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("users\x00bob\x00"), start)
	assert.Equal(t, []byte("users\xff"), end)
}

func TestCursorRoundTripReverse(t *testing.T) {
	sel := Selector{Prefix: []byte("users")}
	boundary := []byte("users\x00bob")
	cursor, err := EncodeCursor(sel, boundary)
	require.NoError(t, err)

	start, end, err := sel.Resume(cursor, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("users\x00"), start)
	assert.Equal(t, []byte("users\x00bob"), end)
}

func TestCursorOutOfBoundsRejected(t *testing.T) {
	sel := Selector{Start: []byte("m"), End: []byte("p")}
	cursor, err := EncodeCursor(sel, []byte("zzz"))
	require.NoError(t, err)

	_, _, err = sel.Resume(cursor, false)
	assert.True(t, errors.Is(err, ErrCursorOutOfBounds))
}

func TestEncodeCursorRejectsKeyOutsidePrefix(t *testing.T) {
	sel := Selector{Prefix: []byte("users")}
	_, err := EncodeCursor(sel, []byte("orders\x00bob"))
	assert.Error(t, err)
}

func TestEmptyCursorIsFreshScan(t *testing.T) {
	sel := Selector{Prefix: []byte("users")}
	start, end, err := sel.Resume("", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("users\x00"), start)
	assert.Equal(t, []byte("users\xff"), end)
}

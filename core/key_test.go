package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	k, err := NewKey("test", "people", "ann")
	require.NoError(t, err)
	assert.Equal(t, "test", k.Namespace)
	assert.Equal(t, "people", k.Set)
	assert.Equal(t, NewStringValue("ann"), k.UserKey)
	assert.Equal(t, "test:people:ann", k.String())

	k, err = NewKey("test", "people", int64(42))
	require.NoError(t, err)
	assert.Equal(t, "test:people:42", k.String())

	_, err = NewKey("", "people", "ann")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = NewKey("test", "people", 3.14)
	require.Error(t, err)
	assert.True(t, IsUnsupportedError(err))
}

func TestKey_DigestDistinguishesKinds(t *testing.T) {
	// An integer key and a string key with identical payload bytes must not
	// collide: the particle byte separates them.
	intKey, err := NewKey("test", "s", int64(0x6162636465666768)) // "abcdefgh"
	require.NoError(t, err)
	strKey, err := NewKey("test", "s", "abcdefgh")
	require.NoError(t, err)

	assert.NotEqual(t, intKey.Digest(), strKey.Digest())
}

func TestKey_DigestDistinguishesSets(t *testing.T) {
	a, err := NewKey("test", "one", "k")
	require.NoError(t, err)
	b, err := NewKey("test", "two", "k")
	require.NoError(t, err)

	assert.NotEqual(t, a.Digest(), b.Digest())

	// Same coordinates digest identically.
	a2, err := NewKey("test", "one", "k")
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), a2.Digest())
}

func TestDigestRangeForSet(t *testing.T) {
	low, high := DigestRangeForSet("people")

	k, err := NewKey("test", "people", "ann")
	require.NoError(t, err)
	digest := k.Digest()

	assert.True(t, bytes.Compare(digest, low) >= 0)
	assert.True(t, bytes.Compare(digest, high) < 0)

	other, err := NewKey("test", "peoplf", "ann")
	require.NoError(t, err)
	assert.True(t, bytes.Compare(other.Digest(), high) >= 0)
}

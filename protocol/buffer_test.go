package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexuskv/core"
)

func TestOffsetThreading(t *testing.T) {
	buf := make([]byte, 1+4+8+5)

	offset, err := PutUint8(buf, 0, 0x7F)
	require.NoError(t, err)
	offset, err = PutUint32(buf, offset, 0xDEADBEEF)
	require.NoError(t, err)
	offset, err = PutInt64(buf, offset, -2)
	require.NoError(t, err)
	offset, err = PutString(buf, offset, "hello")
	require.NoError(t, err)
	require.Equal(t, len(buf), offset)

	b, offset, err := Uint8(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x7F), b)
	u, offset, err := Uint32(buf, offset)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u)
	i, offset, err := Int64(buf, offset)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), i)
	s, offset, err := Bytes(buf, offset, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), s)
	assert.Equal(t, len(buf), offset)
}

func TestBigEndianLayout(t *testing.T) {
	buf := make([]byte, 12)
	_, err := PutUint32(buf, 0, 0x01020304)
	require.NoError(t, err)
	_, err = PutInt64(buf, 4, 0x05060708090A0B0C)
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, buf)
}

func TestWriters_CapacityViolation(t *testing.T) {
	testCases := []struct {
		name string
		fn   func(buf []byte, offset int) (int, error)
		need int
	}{
		{"PutUint8", func(b []byte, o int) (int, error) { return PutUint8(b, o, 1) }, 1},
		{"PutUint32", func(b []byte, o int) (int, error) { return PutUint32(b, o, 1) }, 4},
		{"PutInt64", func(b []byte, o int) (int, error) { return PutInt64(b, o, 1) }, 8},
		{"PutBytes", func(b []byte, o int) (int, error) { return PutBytes(b, o, []byte("abc")) }, 3},
		{"PutString", func(b []byte, o int) (int, error) { return PutString(b, o, "abc") }, 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, tc.need-1)
			for i := range buf {
				buf[i] = 0xEE
			}
			offset, err := tc.fn(buf, 0)
			require.Error(t, err)
			assert.True(t, core.IsBufferOverflow(err))
			assert.Equal(t, 0, offset, "offset must not advance on failure")
			assert.Equal(t, bytes.Repeat([]byte{0xEE}, len(buf)), buf, "buffer must be untouched on failure")
		})
	}
}

func TestReaders_ShortBuffer(t *testing.T) {
	buf := make([]byte, 2)

	_, _, err := Uint32(buf, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data too short")

	_, _, err = Int64(buf, 0)
	require.Error(t, err)

	_, _, err = Uint8(buf, 2)
	require.Error(t, err)

	_, _, err = Bytes(buf, 1, 2)
	require.Error(t, err)

	_, _, err = Bytes(buf, 0, -1)
	require.Error(t, err)
}

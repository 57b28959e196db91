package core

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegerValue_Encode(t *testing.T) {
	testCases := []struct {
		name     string
		value    int64
		expected []byte
	}{
		{"zero", 0, []byte{0, 0, 0, 0, 0, 0, 0, 0}},
		{"small positive", 42, []byte{0, 0, 0, 0, 0, 0, 0, 0x2a}},
		{"negative", -1, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"max", math.MaxInt64, []byte{0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"min", math.MinInt64, []byte{0x80, 0, 0, 0, 0, 0, 0, 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewIntegerValue(tc.value)
			require.Equal(t, 8, v.EstimateSize())
			assert.Equal(t, ParticleInteger, v.ParticleType())

			buf := make([]byte, 8)
			n, err := v.Write(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, v.EstimateSize(), n)
			assert.Equal(t, tc.expected, buf)
		})
	}
}

func TestStringValue_Encode(t *testing.T) {
	testCases := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"ascii", "hello"},
		{"unicode", "สวัสดีชาวโลก"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewStringValue(tc.value)
			require.Equal(t, len(tc.value), v.EstimateSize())
			assert.Equal(t, ParticleString, v.ParticleType())

			buf := make([]byte, v.EstimateSize())
			n, err := v.Write(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, v.EstimateSize(), n)
			assert.Equal(t, []byte(tc.value), buf)
		})
	}
}

func TestValue_WriteAtOffset(t *testing.T) {
	v := NewIntegerValue(1)
	buf := make([]byte, 12)
	for i := range buf {
		buf[i] = 0xEE
	}

	n, err := v.Write(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []byte{0xEE, 0xEE, 0xEE, 0xEE}, buf[:4])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, buf[4:])
}

func TestValue_WriteCapacityViolation(t *testing.T) {
	testCases := []struct {
		name   string
		value  Value
		buf    []byte
		offset int
	}{
		{"integer short buffer", NewIntegerValue(7), make([]byte, 7), 0},
		{"integer offset past end", NewIntegerValue(7), make([]byte, 8), 1},
		{"string short buffer", NewStringValue("abc"), make([]byte, 2), 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for i := range tc.buf {
				tc.buf[i] = 0xEE
			}
			_, err := tc.value.Write(tc.buf, tc.offset)
			require.Error(t, err)
			assert.True(t, IsBufferOverflow(err))
			assert.Equal(t, bytes.Repeat([]byte{0xEE}, len(tc.buf)), tc.buf)
		})
	}
}

func TestNewValue(t *testing.T) {
	v, err := NewValue(7)
	require.NoError(t, err)
	assert.Equal(t, NewIntegerValue(7), v)

	v, err = NewValue(int32(-3))
	require.NoError(t, err)
	assert.Equal(t, NewIntegerValue(-3), v)

	v, err = NewValue(int64(42))
	require.NoError(t, err)
	assert.Equal(t, NewIntegerValue(42), v)

	v, err = NewValue("red")
	require.NoError(t, err)
	assert.Equal(t, NewStringValue("red"), v)

	_, err = NewValue(3.14)
	require.Error(t, err)
	assert.True(t, IsUnsupportedError(err))

	_, err = NewValue(nil)
	require.Error(t, err)
	assert.True(t, IsUnsupportedError(err))
}

func TestParticleTypeFromByte(t *testing.T) {
	for _, pt := range []ParticleType{
		ParticleNull, ParticleInteger, ParticleDouble, ParticleString,
		ParticleBlob, ParticleMap, ParticleList, ParticleGeoJSON,
	} {
		got, err := ParticleTypeFromByte(byte(pt))
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}

	for _, b := range []byte{5, 18, 21, 0xFF} {
		_, err := ParticleTypeFromByte(b)
		require.Error(t, err, "tag 0x%02x must be rejected", b)
	}
}

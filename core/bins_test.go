package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinMap_EncodeDecode(t *testing.T) {
	testCases := []struct {
		name string
		bins BinMap
	}{
		{
			name: "record with all scalar types",
			bins: BinMap{
				"age":     int64(42),
				"score":   123.45,
				"name":    "ann",
				"blob":    []byte{0x01, 0x02, 0x03},
				"missing": nil,
				"city":    "สวัสดีชาวโลก", // Unicode test
			},
		},
		{
			name: "record with a single bin",
			bins: BinMap{
				"n": int64(-1),
			},
		},
		{
			name: "record with no bins",
			bins: BinMap{},
		},
		{
			name: "record with empty string",
			bins: BinMap{
				"notes": "",
			},
		},
		{
			name: "record with nested list and map",
			bins: BinMap{
				"tags": []any{"red", "green", int64(7)},
				"attrs": map[string]any{
					"color":  "blue",
					"weight": int64(13),
					"inner":  []any{int64(1), int64(2)},
				},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := tc.bins.Encode()
			require.NoError(t, err, "Encode() should not produce an error")

			decoded, err := DecodeBinMapFromBytes(encoded)
			require.NoError(t, err, "DecodeBinMapFromBytes() should not produce an error")

			require.Equal(t, len(tc.bins), len(decoded), "Number of bins should match")
			for key, original := range tc.bins {
				got, ok := decoded[key]
				require.True(t, ok, "Bin '%s' should exist in the decoded map", key)
				assert.Equal(t, original, got, "Value for bin '%s' should match", key)
			}
		})
	}
}

func TestBinMap_IntWidthPromotion(t *testing.T) {
	bins := BinMap{"a": 7, "b": int32(-3)}
	encoded, err := bins.Encode()
	require.NoError(t, err)

	decoded, err := DecodeBinMapFromBytes(encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(7), decoded["a"])
	assert.Equal(t, int64(-3), decoded["b"])
}

func TestBinMap_RejectsUnsupportedValue(t *testing.T) {
	bins := BinMap{"bad": struct{}{}}
	_, err := bins.Encode()
	require.Error(t, err)
	assert.True(t, IsUnsupportedError(err))
}

func TestBinMap_DecodeTruncated(t *testing.T) {
	bins := BinMap{"age": int64(42), "city": "berlin"}
	encoded, err := bins.Encode()
	require.NoError(t, err)

	for n := 0; n < len(encoded); n++ {
		_, err := DecodeBinMapFromBytes(encoded[:n])
		require.Error(t, err, "prefix of %d bytes should not decode", n)
	}
}

func TestBinMap_DecodeUnknownParticle(t *testing.T) {
	bins := BinMap{"x": int64(1)}
	encoded, err := bins.Encode()
	require.NoError(t, err)

	// Layout: u16 count, u16 name len, name, particle byte, payload.
	particleOffset := 2 + 2 + 1
	encoded[particleOffset] = 0xFF

	_, err = DecodeBinMapFromBytes(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown particle type")
}

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexuskv/core"
)

func TestReadFilter_RoundTrip(t *testing.T) {
	mustFilter := func(f Filter, err error) Filter {
		require.NoError(t, err)
		return f
	}

	testCases := []struct {
		name   string
		filter Filter
	}{
		{"equal integer", mustFilter(NewEqualFilter("bin1", int64(42)))},
		{"equal string", mustFilter(NewEqualFilter("city", "berlin"))},
		{"equal empty string", mustFilter(NewEqualFilter("city", ""))},
		{"range", mustFilter(NewRangeFilter("age", -5, 9000))},
		{"empty name", mustFilter(NewEqualFilter("", int64(0)))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, tc.filter.EstimateSize())
			wrote, err := tc.filter.Write(buf, 0)
			require.NoError(t, err)

			decoded, read, err := ReadFilter(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, wrote, read, "decode must consume exactly the bytes written")

			assert.Equal(t, tc.filter.Name(), decoded.Name())
			assert.Equal(t, tc.filter.Begin().ParticleType(), decoded.Begin().ParticleType())
			assert.Equal(t, tc.filter.Begin(), decoded.Begin())
			assert.Equal(t, tc.filter.End(), decoded.End())
		})
	}
}

func TestReadFilter_AtOffset(t *testing.T) {
	f, err := NewEqualFilter("bin1", int64(42))
	require.NoError(t, err)

	buf := make([]byte, 5+f.EstimateSize())
	_, err = f.Write(buf, 5)
	require.NoError(t, err)

	decoded, next, err := ReadFilter(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, len(buf), next)
	assert.Equal(t, "bin1", decoded.Name())
}

func TestReadFilter_UnknownParticleTag(t *testing.T) {
	f, err := NewEqualFilter("bin1", int64(42))
	require.NoError(t, err)
	buf := make([]byte, f.EstimateSize())
	_, err = f.Write(buf, 0)
	require.NoError(t, err)

	buf[5] = 0xFF // particle byte follows the 4-byte name

	_, _, err = ReadFilter(buf, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown particle type")
}

func TestReadFilter_UnsupportedEndpointParticle(t *testing.T) {
	f, err := NewEqualFilter("bin1", int64(42))
	require.NoError(t, err)
	buf := make([]byte, f.EstimateSize())
	_, err = f.Write(buf, 0)
	require.NoError(t, err)

	buf[5] = byte(core.ParticleGeoJSON) // known tag, but not a filter endpoint

	_, _, err = ReadFilter(buf, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a supported filter endpoint")
}

func TestReadFilter_Truncated(t *testing.T) {
	f, err := NewEqualFilter("bin1", int64(42))
	require.NoError(t, err)
	full := make([]byte, f.EstimateSize())
	_, err = f.Write(full, 0)
	require.NoError(t, err)

	// Every strictly shorter prefix must fail, never panic.
	for n := 0; n < len(full); n++ {
		_, _, err := ReadFilter(full[:n], 0)
		require.Error(t, err, "prefix of %d bytes should not decode", n)
	}
}

func TestReadFilter_BadIntegerPayloadLength(t *testing.T) {
	// Hand-build a filter whose integer payload claims 4 bytes.
	buf := []byte{
		0x01, 'x',
		byte(core.ParticleInteger),
		0x00, 0x00, 0x00, 0x04, 1, 2, 3, 4,
		0x00, 0x00, 0x00, 0x04, 1, 2, 3, 4,
	}
	_, _, err := ReadFilter(buf, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 8 bytes")
}

package query

import (
	"fmt"

	"github.com/INLOpen/nexuskv/core"
	"github.com/INLOpen/nexuskv/protocol"
)

// ReadFilter parses the wire layout produced by Filter.Write back into a
// Filter, returning the offset immediately following the last byte consumed.
// The single particle byte on the wire types both endpoints. Unknown particle
// tags and truncated buffers fail with an error; the collection type is not
// part of this layout and comes back as CollectionDefault.
func ReadFilter(buf []byte, offset int) (Filter, int, error) {
	nameLen, offset, err := protocol.Uint8(buf, offset)
	if err != nil {
		return Filter{}, offset, fmt.Errorf("filter name length: %w", err)
	}
	nameBytes, offset, err := protocol.Bytes(buf, offset, int(nameLen))
	if err != nil {
		return Filter{}, offset, fmt.Errorf("filter name: %w", err)
	}
	name := string(nameBytes)

	tag, offset, err := protocol.Uint8(buf, offset)
	if err != nil {
		return Filter{}, offset, fmt.Errorf("filter particle type: %w", err)
	}
	pt, err := core.ParticleTypeFromByte(tag)
	if err != nil {
		return Filter{}, offset, fmt.Errorf("filter particle type: %w", err)
	}

	begin, offset, err := readEndpoint(buf, offset, pt)
	if err != nil {
		return Filter{}, offset, fmt.Errorf("filter begin value: %w", err)
	}
	end, offset, err := readEndpoint(buf, offset, pt)
	if err != nil {
		return Filter{}, offset, fmt.Errorf("filter end value: %w", err)
	}

	f, err := newFilter(name, CollectionDefault, begin, end)
	if err != nil {
		return Filter{}, offset, err
	}
	return f, offset, nil
}

func readEndpoint(buf []byte, offset int, pt core.ParticleType) (core.Value, int, error) {
	length, offset, err := protocol.Uint32(buf, offset)
	if err != nil {
		return nil, offset, err
	}
	payload, offset, err := protocol.Bytes(buf, offset, int(length))
	if err != nil {
		return nil, offset, err
	}

	switch pt {
	case core.ParticleInteger:
		if len(payload) != 8 {
			return nil, offset, fmt.Errorf("integer payload must be 8 bytes, got %d", len(payload))
		}
		v, _, err := protocol.Int64(payload, 0)
		if err != nil {
			return nil, offset, err
		}
		return core.NewIntegerValue(v), offset, nil
	case core.ParticleString:
		return core.NewStringValue(string(payload)), offset, nil
	default:
		return nil, offset, fmt.Errorf("particle type %v is not a supported filter endpoint", pt)
	}
}

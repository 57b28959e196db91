package core

import "fmt"

// ParticleType is the wire-level tag identifying the primitive type of an
// encoded value. The numeric values are fixed by the server's type system
// and must never be renumbered.
type ParticleType byte

const (
	ParticleNull    ParticleType = 0
	ParticleInteger ParticleType = 1
	ParticleDouble  ParticleType = 2
	ParticleString  ParticleType = 3
	ParticleBlob    ParticleType = 4
	ParticleMap     ParticleType = 19
	ParticleList    ParticleType = 20
	ParticleGeoJSON ParticleType = 23
)

// String returns the string representation of the ParticleType.
func (pt ParticleType) String() string {
	switch pt {
	case ParticleNull:
		return "null"
	case ParticleInteger:
		return "integer"
	case ParticleDouble:
		return "double"
	case ParticleString:
		return "string"
	case ParticleBlob:
		return "blob"
	case ParticleMap:
		return "map"
	case ParticleList:
		return "list"
	case ParticleGeoJSON:
		return "geojson"
	default:
		return "unknown"
	}
}

// ParticleTypeFromByte maps a wire tag back to its ParticleType, rejecting
// tags the type system does not define so an unknown tag can never survive
// a decode.
func ParticleTypeFromByte(b byte) (ParticleType, error) {
	switch pt := ParticleType(b); pt {
	case ParticleNull, ParticleInteger, ParticleDouble, ParticleString,
		ParticleBlob, ParticleMap, ParticleList, ParticleGeoJSON:
		return pt, nil
	default:
		return 0, fmt.Errorf("unknown particle type tag: 0x%02x", b)
	}
}

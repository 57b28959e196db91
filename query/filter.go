// Package query builds secondary-index query filters and encodes them into
// the command buffer sent to the server. A Filter pairs a bin name, an
// index-collection-type tag, and a begin/end pair of typed values; its
// EstimateSize and Write operations must agree byte for byte, because the
// command buffer is allocated exactly once from the summed estimates.
package query

import (
	"fmt"

	"github.com/INLOpen/nexuskv/core"
	"github.com/INLOpen/nexuskv/protocol"
)

// IndexCollectionType selects whether a filter targets a bin's scalar value
// or the elements/keys/values of a list- or map-typed bin.
type IndexCollectionType byte

const (
	// CollectionDefault targets the scalar value of the bin.
	CollectionDefault IndexCollectionType = 0
	// CollectionList targets the elements of a list-typed bin.
	CollectionList IndexCollectionType = 1
	// CollectionMapKeys targets the keys of a map-typed bin.
	CollectionMapKeys IndexCollectionType = 2
	// CollectionMapValues targets the values of a map-typed bin.
	CollectionMapValues IndexCollectionType = 3
)

// String returns the string representation of the IndexCollectionType.
func (ict IndexCollectionType) String() string {
	switch ict {
	case CollectionDefault:
		return "default"
	case CollectionList:
		return "list"
	case CollectionMapKeys:
		return "mapkeys"
	case CollectionMapValues:
		return "mapvalues"
	default:
		return "unknown"
	}
}

// filterOverhead is the fixed wire cost of a filter beyond its name and
// payload bytes: 1 name-length byte, 1 particle-type byte, and two 4-byte
// payload length prefixes.
const filterOverhead = 10

// Filter is one secondary-index predicate. It is immutable after
// construction and freely shareable across goroutines; the only mutable
// state its operations touch is the caller-supplied destination buffer.
type Filter struct {
	name           string
	collectionType IndexCollectionType
	begin          core.Value
	end            core.Value
}

func newFilter(name string, ict IndexCollectionType, begin, end core.Value) (Filter, error) {
	if err := core.ValidateBinName(name); err != nil {
		return Filter{}, err
	}
	return Filter{name: name, collectionType: ict, begin: begin, end: end}, nil
}

// NewEqualFilter creates a filter matching records whose bin equals the given
// integer or string scalar.
func NewEqualFilter(bin string, value any) (Filter, error) {
	return NewContainsFilter(bin, CollectionDefault, value)
}

// NewContainsFilter creates an equality filter scoped to a collection-typed
// index, matching records whose list elements, map keys, or map values
// contain the given scalar.
func NewContainsFilter(bin string, ict IndexCollectionType, value any) (Filter, error) {
	v, err := core.NewValue(value)
	if err != nil {
		return Filter{}, fmt.Errorf("filter on bin '%s': %w", bin, err)
	}
	return newFilter(bin, ict, v, v)
}

// NewRangeFilter creates a filter matching records whose integer bin value
// lies in [begin, end]. Only integer endpoints are supported: the server
// index defines no ordering for strings, so string ranges are meaningless
// and the signature makes them unrepresentable.
func NewRangeFilter(bin string, begin, end int64) (Filter, error) {
	return NewCollectionRangeFilter(bin, CollectionDefault, begin, end)
}

// NewCollectionRangeFilter is NewRangeFilter scoped to a collection-typed
// index.
func NewCollectionRangeFilter(bin string, ict IndexCollectionType, begin, end int64) (Filter, error) {
	return newFilter(bin, ict, core.NewIntegerValue(begin), core.NewIntegerValue(end))
}

// Name returns the bin name the filter applies to.
func (f Filter) Name() string {
	return f.name
}

// CollectionType is used by the surrounding command builder to decide
// additional wire flags.
func (f Filter) CollectionType() IndexCollectionType {
	return f.collectionType
}

// Begin returns the lower endpoint (equal to End for equality filters).
func (f Filter) Begin() core.Value {
	return f.begin
}

// End returns the upper endpoint.
func (f Filter) End() core.Value {
	return f.end
}

// EstimateSize returns the exact number of bytes Write will consume starting
// at its offset. Callers must validate buffer capacity against this value
// before calling Write; any disagreement between the two is a defect.
func (f Filter) EstimateSize() int {
	return len(f.name) + f.begin.EstimateSize() + f.end.EstimateSize() + filterOverhead
}

// Write encodes the filter at offset and returns the offset immediately
// following the last byte written, so the caller can chain further fields
// into the same buffer. The layout, all integers big-endian:
//
//	1 byte  name length (N)
//	N bytes name UTF-8
//	1 byte  particle type of the begin value
//	4 bytes begin payload length (B)
//	B bytes begin payload
//	4 bytes end payload length (E)
//	E bytes end payload
//
// The particle byte is taken from begin only; end is not cross-checked.
// Capacity is verified up front, so a too-small buffer fails before any
// byte is touched.
func (f Filter) Write(buf []byte, offset int) (int, error) {
	need := f.EstimateSize()
	if offset+need > len(buf) {
		return offset, &core.BufferOverflowError{Offset: offset, Need: need, Cap: len(buf)}
	}

	offset, err := protocol.PutUint8(buf, offset, byte(len(f.name)))
	if err != nil {
		return offset, err
	}
	if offset, err = protocol.PutString(buf, offset, f.name); err != nil {
		return offset, err
	}
	if offset, err = protocol.PutUint8(buf, offset, byte(f.begin.ParticleType())); err != nil {
		return offset, err
	}

	if offset, err = protocol.PutUint32(buf, offset, uint32(f.begin.EstimateSize())); err != nil {
		return offset, err
	}
	n, err := f.begin.Write(buf, offset)
	if err != nil {
		return offset, err
	}
	offset += n

	if offset, err = protocol.PutUint32(buf, offset, uint32(f.end.EstimateSize())); err != nil {
		return offset, err
	}
	if n, err = f.end.Write(buf, offset); err != nil {
		return offset, err
	}
	return offset + n, nil
}

package core

import (
	"encoding/binary"
	"fmt"
)

// Value is an indexable scalar together with its wire particle type.
// Implementations are immutable after construction; the central contract is
// that EstimateSize always equals the byte count Write emits, because command
// buffers are allocated exactly once from the estimate.
type Value interface {
	// EstimateSize returns the payload byte length only. Length prefixes and
	// type tags are owned by the caller.
	EstimateSize() int
	// ParticleType returns the wire tag identifying the value's kind.
	ParticleType() ParticleType
	// Write encodes the payload starting at offset and returns the number of
	// bytes written, which always equals EstimateSize. It fails only when the
	// destination buffer is too small, and it never touches the buffer in
	// that case.
	Write(buf []byte, offset int) (int, error)
}

// IntegerValue encodes a signed 64-bit integer as 8 big-endian bytes.
type IntegerValue struct {
	val int64
}

var _ Value = IntegerValue{}

// NewIntegerValue creates a Value from a signed integer.
func NewIntegerValue(v int64) IntegerValue {
	return IntegerValue{val: v}
}

func (v IntegerValue) EstimateSize() int {
	return 8
}

func (v IntegerValue) ParticleType() ParticleType {
	return ParticleInteger
}

func (v IntegerValue) Write(buf []byte, offset int) (int, error) {
	if offset+8 > len(buf) {
		return 0, &BufferOverflowError{Offset: offset, Need: 8, Cap: len(buf)}
	}
	binary.BigEndian.PutUint64(buf[offset:], uint64(v.val))
	return 8, nil
}

// Int64 returns the native value.
func (v IntegerValue) Int64() int64 {
	return v.val
}

// StringValue encodes a string as its raw UTF-8 bytes.
type StringValue struct {
	val string
}

var _ Value = StringValue{}

// NewStringValue creates a Value from a string.
func NewStringValue(v string) StringValue {
	return StringValue{val: v}
}

func (v StringValue) EstimateSize() int {
	return len(v.val)
}

func (v StringValue) ParticleType() ParticleType {
	return ParticleString
}

func (v StringValue) Write(buf []byte, offset int) (int, error) {
	if offset+len(v.val) > len(buf) {
		return 0, &BufferOverflowError{Offset: offset, Need: len(v.val), Cap: len(buf)}
	}
	return copy(buf[offset:], v.val), nil
}

// String returns the native value.
func (v StringValue) String() string {
	return v.val
}

// NewValue creates a Value from a native scalar. Integer widths are promoted
// to int64 before encoding.
func NewValue(data any) (Value, error) {
	switch v := data.(type) {
	case int:
		return NewIntegerValue(int64(v)), nil
	case int32:
		return NewIntegerValue(int64(v)), nil
	case int64:
		return NewIntegerValue(v), nil
	case string:
		return NewStringValue(v), nil
	default:
		return nil, &UnsupportedTypeError{Message: fmt.Sprintf("unsupported value type: %T", data)}
	}
}

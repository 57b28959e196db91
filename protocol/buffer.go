// Package protocol provides the offset-threaded big-endian buffer primitives
// shared by every command encoder. Writers check capacity before touching
// memory; readers return "data too short" errors instead of panicking, so a
// truncated buffer can never take down the caller.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/nexuskv/core"
)

// PutUint8 writes one byte at offset and returns the next offset.
func PutUint8(buf []byte, offset int, v byte) (int, error) {
	if offset+1 > len(buf) {
		return offset, &core.BufferOverflowError{Offset: offset, Need: 1, Cap: len(buf)}
	}
	buf[offset] = v
	return offset + 1, nil
}

// PutUint32 writes a big-endian uint32 at offset and returns the next offset.
func PutUint32(buf []byte, offset int, v uint32) (int, error) {
	if offset+4 > len(buf) {
		return offset, &core.BufferOverflowError{Offset: offset, Need: 4, Cap: len(buf)}
	}
	binary.BigEndian.PutUint32(buf[offset:], v)
	return offset + 4, nil
}

// PutInt64 writes a big-endian signed 64-bit integer at offset and returns
// the next offset.
func PutInt64(buf []byte, offset int, v int64) (int, error) {
	if offset+8 > len(buf) {
		return offset, &core.BufferOverflowError{Offset: offset, Need: 8, Cap: len(buf)}
	}
	binary.BigEndian.PutUint64(buf[offset:], uint64(v))
	return offset + 8, nil
}

// PutBytes copies raw bytes at offset and returns the next offset.
func PutBytes(buf []byte, offset int, src []byte) (int, error) {
	if offset+len(src) > len(buf) {
		return offset, &core.BufferOverflowError{Offset: offset, Need: len(src), Cap: len(buf)}
	}
	copy(buf[offset:], src)
	return offset + len(src), nil
}

// PutString copies a string's UTF-8 bytes at offset and returns the next
// offset. No length prefix is written; prefixes belong to the caller.
func PutString(buf []byte, offset int, s string) (int, error) {
	if offset+len(s) > len(buf) {
		return offset, &core.BufferOverflowError{Offset: offset, Need: len(s), Cap: len(buf)}
	}
	copy(buf[offset:], s)
	return offset + len(s), nil
}

// Uint8 reads one byte at offset.
func Uint8(buf []byte, offset int) (byte, int, error) {
	if offset+1 > len(buf) {
		return 0, offset, fmt.Errorf("data too short for byte at offset %d: got %d bytes", offset, len(buf))
	}
	return buf[offset], offset + 1, nil
}

// Uint32 reads a big-endian uint32 at offset.
func Uint32(buf []byte, offset int) (uint32, int, error) {
	if offset+4 > len(buf) {
		return 0, offset, fmt.Errorf("data too short for uint32 at offset %d: got %d bytes", offset, len(buf))
	}
	return binary.BigEndian.Uint32(buf[offset:]), offset + 4, nil
}

// Int64 reads a big-endian signed 64-bit integer at offset.
func Int64(buf []byte, offset int) (int64, int, error) {
	if offset+8 > len(buf) {
		return 0, offset, fmt.Errorf("data too short for int64 at offset %d: got %d bytes", offset, len(buf))
	}
	return int64(binary.BigEndian.Uint64(buf[offset:])), offset + 8, nil
}

// Bytes reads n raw bytes at offset. The returned slice aliases buf.
func Bytes(buf []byte, offset, n int) ([]byte, int, error) {
	if n < 0 || offset+n > len(buf) {
		return nil, offset, fmt.Errorf("data too short for %d bytes at offset %d: got %d bytes", n, offset, len(buf))
	}
	return buf[offset : offset+n], offset + n, nil
}

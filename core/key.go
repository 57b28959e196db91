package core

import (
	"bytes"
	"fmt"
)

const (
	// NULL_BYTE separates the set name from the user-key part of a canonical
	// record key, so keys from different sets never interleave.
	NULL_BYTE = 0x00
)

// Key identifies a single record: a namespace, an optional set, and a
// user-supplied key value (integer or string).
type Key struct {
	Namespace string
	Set       string
	UserKey   Value
}

// NewKey creates a Key from a native user key value.
func NewKey(namespace, set string, userKey any) (Key, error) {
	if namespace == "" {
		return Key{}, &ValidationError{Message: "cannot be empty", Field: "namespace", Value: namespace}
	}
	v, err := NewValue(userKey)
	if err != nil {
		return Key{}, fmt.Errorf("invalid user key: %w", err)
	}
	return Key{Namespace: namespace, Set: set, UserKey: v}, nil
}

// Digest returns the canonical byte key used for ordered storage within a
// namespace. The format is: <set><NULL_BYTE><particle byte><user-key payload>.
// The particle byte keeps an integer key and a string key with identical
// payload bytes from colliding.
func (k Key) Digest() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(k.Set)+2+k.UserKey.EstimateSize()))
	buf.WriteString(k.Set)
	buf.WriteByte(NULL_BYTE)
	buf.WriteByte(byte(k.UserKey.ParticleType()))

	payload := make([]byte, k.UserKey.EstimateSize())
	// UserKey was validated at construction; the buffer is exactly sized.
	n, _ := k.UserKey.Write(payload, 0)
	buf.Write(payload[:n])
	return buf.Bytes()
}

// String implements fmt.Stringer for logging.
func (k Key) String() string {
	switch uk := k.UserKey.(type) {
	case IntegerValue:
		return fmt.Sprintf("%s:%s:%d", k.Namespace, k.Set, uk.Int64())
	case StringValue:
		return fmt.Sprintf("%s:%s:%s", k.Namespace, k.Set, uk.String())
	default:
		return fmt.Sprintf("%s:%s:%v", k.Namespace, k.Set, k.UserKey)
	}
}

// DigestRangeForSet returns the half-open canonical key range [low, high)
// covering every record of the given set, for ordered scans.
func DigestRangeForSet(set string) (low, high []byte) {
	low = append([]byte(set), NULL_BYTE)
	high = append([]byte(set), NULL_BYTE+1)
	return low, high
}

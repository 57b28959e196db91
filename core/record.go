package core

const (
	// TTLNeverExpire marks a record that must survive the namespace default.
	TTLNeverExpire int32 = -1
	// TTLNamespaceDefault defers the record's lifetime to the namespace
	// default TTL.
	TTLNamespaceDefault int32 = 0
)

// WritePolicy carries the per-write options of a put operation.
// Expiration is a signed TTL in seconds: -1 never expires, 0 uses the
// namespace default, any positive value counts from the write.
type WritePolicy struct {
	Expiration int32
}

// Record is the materialized result of a read: the record's bins, its write
// generation, and the TTL seconds remaining at read time (TTLNeverExpire for
// records that never expire).
type Record struct {
	Bins       BinMap
	Generation uint32
	Expiration int32
}

// MaxBinNameLength is the longest bin name the wire format can carry, since
// bin names are prefixed by a single length byte.
const MaxBinNameLength = 255

// ValidateBinName rejects names the single-byte length prefix cannot encode.
func ValidateBinName(name string) error {
	if len(name) > MaxBinNameLength {
		return &ValidationError{Message: "exceeds 255 bytes", Field: "bin", Value: name}
	}
	return nil
}

package compressors

import (
	"fmt"

	"github.com/INLOpen/nexuskv/core"
)

// ForType returns the compressor implementing the given CompressionType.
// Snapshot restore uses this to honor the compression byte in the header.
func ForType(ct core.CompressionType) (core.Compressor, error) {
	switch ct {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", ct)
	}
}

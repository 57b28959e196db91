package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Bin is a named field on a record, analogous to a column.
type Bin struct {
	Name  string
	Value any
}

// NewBin creates a Bin. The value is validated lazily when the bin map is
// encoded or indexed.
func NewBin(name string, value any) Bin {
	return Bin{Name: name, Value: value}
}

// BinMap holds the bins of one record keyed by bin name. Supported value
// kinds are the scalars int/int32/int64, float64, string, []byte, plus
// []any lists and map[string]any maps nested from those kinds.
type BinMap map[string]any

// Encode serializes the BinMap into a byte slice.
func (bm BinMap) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(bm))); err != nil {
		return nil, fmt.Errorf("failed to write bin count: %w", err)
	}

	for k, v := range bm {
		keyBytes := []byte(k)
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(keyBytes))); err != nil {
			return nil, fmt.Errorf("failed to write name length for '%s': %w", k, err)
		}
		if _, err := buf.Write(keyBytes); err != nil {
			return nil, fmt.Errorf("failed to write name bytes for '%s': %w", k, err)
		}
		if err := encodeBinValue(&buf, v); err != nil {
			return nil, fmt.Errorf("failed to encode value for bin '%s': %w", k, err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeBinMap deserializes a byte stream from a reader into a BinMap.
func DecodeBinMap(r io.Reader) (BinMap, error) {
	var numBins uint16
	if err := binary.Read(r, binary.BigEndian, &numBins); err != nil {
		return nil, fmt.Errorf("failed to read bin count: %w", err)
	}

	bins := make(BinMap, numBins)

	for i := 0; i < int(numBins); i++ {
		var keyLen uint16
		if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
			return nil, fmt.Errorf("failed to read name length for bin %d: %w", i, err)
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(r, keyBytes); err != nil {
			return nil, fmt.Errorf("failed to read name bytes for bin %d: %w", i, err)
		}
		key := string(keyBytes)

		val, err := decodeBinValue(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode value for bin '%s': %w", key, err)
		}
		bins[key] = val
	}

	return bins, nil
}

// DecodeBinMapFromBytes is a helper function to decode from a byte slice.
func DecodeBinMapFromBytes(data []byte) (BinMap, error) {
	return DecodeBinMap(bytes.NewReader(data))
}

// encodeBinValue writes one particle-tagged value: the particle byte followed
// by the payload in the particle's own format. Lists and maps recurse.
func encodeBinValue(buf *bytes.Buffer, data any) error {
	switch v := data.(type) {
	case nil:
		buf.WriteByte(byte(ParticleNull))
	case int:
		return encodeBinValue(buf, int64(v))
	case int32:
		return encodeBinValue(buf, int64(v))
	case int64:
		buf.WriteByte(byte(ParticleInteger))
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		buf.Write(b[:])
	case float64:
		buf.WriteByte(byte(ParticleDouble))
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return err
		}
	case string:
		buf.WriteByte(byte(ParticleString))
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(v)))
		buf.Write(b[:])
		buf.WriteString(v)
	case []byte:
		buf.WriteByte(byte(ParticleBlob))
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(v)))
		buf.Write(b[:])
		buf.Write(v)
	case []any:
		buf.WriteByte(byte(ParticleList))
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(v)))
		buf.Write(b[:])
		for i, elem := range v {
			if err := encodeBinValue(buf, elem); err != nil {
				return fmt.Errorf("list element %d: %w", i, err)
			}
		}
	case map[string]any:
		buf.WriteByte(byte(ParticleMap))
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(v)))
		buf.Write(b[:])
		for mk, mv := range v {
			var kb [4]byte
			binary.BigEndian.PutUint32(kb[:], uint32(len(mk)))
			buf.Write(kb[:])
			buf.WriteString(mk)
			if err := encodeBinValue(buf, mv); err != nil {
				return fmt.Errorf("map value for key '%s': %w", mk, err)
			}
		}
	default:
		return &UnsupportedTypeError{Message: fmt.Sprintf("unsupported bin value type: %T", data)}
	}
	return nil
}

// decodeBinValue reads one particle-tagged value back into its Go type.
func decodeBinValue(r io.Reader) (any, error) {
	var tagByte [1]byte
	if _, err := io.ReadFull(r, tagByte[:]); err != nil {
		return nil, fmt.Errorf("failed to read particle tag: %w", err)
	}
	pt, err := ParticleTypeFromByte(tagByte[0])
	if err != nil {
		return nil, err
	}

	switch pt {
	case ParticleNull:
		return nil, nil
	case ParticleInteger:
		var i int64
		if err := binary.Read(r, binary.BigEndian, &i); err != nil {
			return nil, err
		}
		return i, nil
	case ParticleDouble:
		var f float64
		if err := binary.Read(r, binary.BigEndian, &f); err != nil {
			return nil, err
		}
		return f, nil
	case ParticleString:
		b, err := readLengthPrefixed(r)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case ParticleBlob:
		return readLengthPrefixed(r)
	case ParticleList:
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return nil, fmt.Errorf("failed to read list length: %w", err)
		}
		list := make([]any, count)
		for i := range list {
			elem, err := decodeBinValue(r)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			list[i] = elem
		}
		return list, nil
	case ParticleMap:
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return nil, fmt.Errorf("failed to read map length: %w", err)
		}
		m := make(map[string]any, count)
		for i := uint32(0); i < count; i++ {
			kb, err := readLengthPrefixed(r)
			if err != nil {
				return nil, fmt.Errorf("map key %d: %w", i, err)
			}
			mv, err := decodeBinValue(r)
			if err != nil {
				return nil, fmt.Errorf("map value for key '%s': %w", kb, err)
			}
			m[string(kb)] = mv
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported particle type for decoding: %v", pt)
	}
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read payload length: %w", err)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("failed to read payload data: %w", err)
	}
	return b, nil
}

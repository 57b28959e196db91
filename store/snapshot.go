package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/INLOpen/nexuskv/compressors"
	"github.com/INLOpen/nexuskv/core"
	"github.com/INLOpen/nexuskv/query"
)

const (
	snapshotMagic   uint32 = 0x4E4B5653 // "NKVS"
	snapshotVersion byte   = 1
)

// SaveSnapshot serializes every namespace's live records and index
// declarations to w: a plain header (magic, version, compression byte)
// followed by the compressed body. Expired records are skipped.
func (s *Store) SaveSnapshot(w io.Writer, compressor core.Compressor) error {
	body, err := s.encodeSnapshotBody()
	if err != nil {
		return err
	}

	compressed, err := compressor.Compress(body)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot body: %w", err)
	}

	header := make([]byte, 6)
	binary.BigEndian.PutUint32(header[0:4], snapshotMagic)
	header[4] = snapshotVersion
	header[5] = byte(compressor.Type())
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("failed to write snapshot body: %w", err)
	}

	s.logger.Info("Snapshot saved", "compression", compressor.Type().String(), "body_bytes", len(body), "compressed_bytes", len(compressed))
	return nil
}

// RestoreSnapshot replaces the records and index declarations of every
// namespace present in the snapshot. Every snapshot namespace must be
// declared on this store; namespaces absent from the snapshot are left
// untouched.
func (s *Store) RestoreSnapshot(r io.Reader) error {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if magic := binary.BigEndian.Uint32(header[0:4]); magic != snapshotMagic {
		return fmt.Errorf("bad snapshot magic: 0x%08x", magic)
	}
	if header[4] != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", header[4])
	}

	compressor, err := compressors.ForType(core.CompressionType(header[5]))
	if err != nil {
		return fmt.Errorf("snapshot header: %w", err)
	}
	compressed, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot body: %w", err)
	}
	bodyReader, err := compressor.Decompress(compressed)
	if err != nil {
		return fmt.Errorf("failed to decompress snapshot body: %w", err)
	}
	defer bodyReader.Close()

	if err := s.decodeSnapshotBody(bodyReader); err != nil {
		return err
	}
	s.logger.Info("Snapshot restored", "compression", core.CompressionType(header[5]).String())
	return nil
}

func (s *Store) encodeSnapshotBody() ([]byte, error) {
	var buf bytes.Buffer
	now := s.clock.Now()

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.namespaces))); err != nil {
		return nil, fmt.Errorf("failed to write namespace count: %w", err)
	}

	for _, ns := range s.namespaces {
		ns.mu.RLock()
		err := encodeNamespace(&buf, ns, now)
		ns.mu.RUnlock()
		if err != nil {
			return nil, fmt.Errorf("namespace '%s': %w", ns.name, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeNamespace(buf *bytes.Buffer, ns *namespace, now time.Time) error {
	writeShortBytes(buf, []byte(ns.name))

	if err := binary.Write(buf, binary.BigEndian, uint16(len(ns.indexes))); err != nil {
		return fmt.Errorf("failed to write index count: %w", err)
	}
	for ik, idx := range ns.indexes {
		writeShortBytes(buf, []byte(ik.bin))
		buf.WriteByte(byte(ik.collectionType))
		buf.WriteByte(byte(idx.dataType))
	}

	live := make([]*record, 0, len(ns.records))
	for _, rec := range ns.records {
		if !rec.expired(now) {
			live = append(live, rec)
		}
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(live))); err != nil {
		return fmt.Errorf("failed to write record count: %w", err)
	}

	for _, rec := range live {
		writeShortBytes(buf, []byte(rec.key.Set))

		buf.WriteByte(byte(rec.key.UserKey.ParticleType()))
		payload := make([]byte, rec.key.UserKey.EstimateSize())
		if _, err := rec.key.UserKey.Write(payload, 0); err != nil {
			return fmt.Errorf("failed to encode user key for %s: %w", rec.key, err)
		}
		var lenBytes [4]byte
		binary.BigEndian.PutUint32(lenBytes[:], uint32(len(payload)))
		buf.Write(lenBytes[:])
		buf.Write(payload)

		if err := binary.Write(buf, binary.BigEndian, rec.generation); err != nil {
			return fmt.Errorf("failed to write generation for %s: %w", rec.key, err)
		}
		var deadline int64
		if !rec.expiresAt.IsZero() {
			deadline = rec.expiresAt.UnixNano()
		}
		if err := binary.Write(buf, binary.BigEndian, deadline); err != nil {
			return fmt.Errorf("failed to write deadline for %s: %w", rec.key, err)
		}

		binsBytes, err := rec.bins.Encode()
		if err != nil {
			return fmt.Errorf("failed to encode bins for %s: %w", rec.key, err)
		}
		binary.BigEndian.PutUint32(lenBytes[:], uint32(len(binsBytes)))
		buf.Write(lenBytes[:])
		buf.Write(binsBytes)
	}
	return nil
}

func (s *Store) decodeSnapshotBody(r io.Reader) error {
	var nsCount uint16
	if err := binary.Read(r, binary.BigEndian, &nsCount); err != nil {
		return fmt.Errorf("failed to read namespace count: %w", err)
	}

	for i := 0; i < int(nsCount); i++ {
		nameBytes, err := readShortBytes(r)
		if err != nil {
			return fmt.Errorf("failed to read namespace name: %w", err)
		}
		name := string(nameBytes)
		ns, ok := s.namespaces[name]
		if !ok {
			return fmt.Errorf("snapshot contains undeclared namespace '%s'", name)
		}
		if err := s.decodeNamespace(r, ns); err != nil {
			return fmt.Errorf("namespace '%s': %w", name, err)
		}
	}
	return nil
}

func (s *Store) decodeNamespace(r io.Reader, ns *namespace) error {
	var indexCount uint16
	if err := binary.Read(r, binary.BigEndian, &indexCount); err != nil {
		return fmt.Errorf("failed to read index count: %w", err)
	}
	indexes := make(map[indexKey]*secondaryIndex, indexCount)
	for i := 0; i < int(indexCount); i++ {
		binBytes, err := readShortBytes(r)
		if err != nil {
			return fmt.Errorf("failed to read index bin name: %w", err)
		}
		var meta [2]byte
		if _, err := io.ReadFull(r, meta[:]); err != nil {
			return fmt.Errorf("failed to read index metadata: %w", err)
		}
		ik := indexKey{bin: string(binBytes), collectionType: query.IndexCollectionType(meta[0])}
		indexes[ik] = newSecondaryIndex(ik.bin, ik.collectionType, IndexDataType(meta[1]))
	}

	var recordCount uint32
	if err := binary.Read(r, binary.BigEndian, &recordCount); err != nil {
		return fmt.Errorf("failed to read record count: %w", err)
	}

	records := make(map[string]*record, recordCount)
	byID := make(map[uint64]*record, recordCount)

	for i := uint32(0); i < recordCount; i++ {
		setBytes, err := readShortBytes(r)
		if err != nil {
			return fmt.Errorf("failed to read set name for record %d: %w", i, err)
		}

		var tag [1]byte
		if _, err := io.ReadFull(r, tag[:]); err != nil {
			return fmt.Errorf("failed to read user key particle for record %d: %w", i, err)
		}
		pt, err := core.ParticleTypeFromByte(tag[0])
		if err != nil {
			return fmt.Errorf("record %d user key: %w", i, err)
		}
		payload, err := readLongBytes(r)
		if err != nil {
			return fmt.Errorf("failed to read user key payload for record %d: %w", i, err)
		}
		userKey, err := decodeUserKey(pt, payload)
		if err != nil {
			return fmt.Errorf("record %d user key: %w", i, err)
		}

		var generation uint32
		if err := binary.Read(r, binary.BigEndian, &generation); err != nil {
			return fmt.Errorf("failed to read generation for record %d: %w", i, err)
		}
		var deadline int64
		if err := binary.Read(r, binary.BigEndian, &deadline); err != nil {
			return fmt.Errorf("failed to read deadline for record %d: %w", i, err)
		}

		binsBytes, err := readLongBytes(r)
		if err != nil {
			return fmt.Errorf("failed to read bins for record %d: %w", i, err)
		}
		bins, err := core.DecodeBinMapFromBytes(binsBytes)
		if err != nil {
			return fmt.Errorf("failed to decode bins for record %d: %w", i, err)
		}

		rec := &record{
			id:         s.nextID.Add(1),
			key:        core.Key{Namespace: ns.name, Set: string(setBytes), UserKey: userKey},
			bins:       bins,
			generation: generation,
		}
		if deadline != 0 {
			rec.expiresAt = time.Unix(0, deadline)
		}
		records[string(rec.key.Digest())] = rec
		byID[rec.id] = rec

		for name, v := range bins {
			for ik, idx := range indexes {
				if ik.bin == name {
					idx.insert(rec.id, v)
				}
			}
		}
	}

	ns.mu.Lock()
	ns.records = records
	ns.byID = byID
	ns.indexes = indexes
	ns.mu.Unlock()
	return nil
}

func decodeUserKey(pt core.ParticleType, payload []byte) (core.Value, error) {
	switch pt {
	case core.ParticleInteger:
		if len(payload) != 8 {
			return nil, fmt.Errorf("integer user key payload must be 8 bytes, got %d", len(payload))
		}
		return core.NewIntegerValue(int64(binary.BigEndian.Uint64(payload))), nil
	case core.ParticleString:
		return core.NewStringValue(string(payload)), nil
	default:
		return nil, fmt.Errorf("particle type %v is not a supported user key", pt)
	}
}

func writeShortBytes(buf *bytes.Buffer, b []byte) {
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(b)))
	buf.Write(lenBytes[:])
	buf.Write(b)
}

func readShortBytes(r io.Reader) ([]byte, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readLongBytes(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

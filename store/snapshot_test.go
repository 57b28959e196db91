package store

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexuskv/compressors"
	"github.com/INLOpen/nexuskv/core"
	"github.com/INLOpen/nexuskv/query"
)

func TestStore_SnapshotRoundTrip(t *testing.T) {
	testCases := []struct {
		name       string
		compressor core.Compressor
	}{
		{"none", &compressors.NoCompressionCompressor{}},
		{"snappy", compressors.NewSnappyCompressor()},
		{"lz4", compressors.NewLz4Compressor()},
		{"zstd", compressors.NewZstdCompressor()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src, clock := newTestStore(t)
			loadPeople(t, src)
			ctx := context.Background()

			// Bump bob twice so generations survive the trip.
			bob := mustKey(t, "test", "people", "bob")
			require.NoError(t, src.Put(ctx, nil, bob, core.NewBin("age", int64(43))))

			// One record with a finite deadline, one that never expires.
			require.NoError(t, src.Put(ctx, &core.WritePolicy{Expiration: 60}, mustKey(t, "test", "people", "tmp"),
				core.NewBin("name", "tmp"), core.NewBin("city", "berlin")))
			require.NoError(t, src.Put(ctx, nil, mustKey(t, "perm", "people", "keep"),
				core.NewBin("name", "keep")))

			var buf bytes.Buffer
			require.NoError(t, src.SaveSnapshot(&buf, tc.compressor))

			dst, err := NewStore(Options{
				Namespaces: []NamespaceOptions{
					{Name: "test", DefaultTTL: 10 * time.Second},
					{Name: "perm"},
				},
				Clock: clock,
			})
			require.NoError(t, err)
			defer dst.Close()
			require.NoError(t, dst.RestoreSnapshot(&buf))

			rec, err := dst.Get(ctx, bob)
			require.NoError(t, err)
			assert.Equal(t, uint32(2), rec.Generation)
			assert.Equal(t, int64(43), rec.Bins["age"])
			assert.Equal(t, "paris", rec.Bins["city"])

			rec, err = dst.Get(ctx, mustKey(t, "test", "people", "tmp"))
			require.NoError(t, err)
			assert.Equal(t, int32(60), rec.Expiration)

			rec, err = dst.Get(ctx, mustKey(t, "perm", "people", "keep"))
			require.NoError(t, err)
			assert.Equal(t, int32(core.TTLNeverExpire), rec.Expiration)

			// Index declarations and postings are rebuilt.
			f, err := query.NewEqualFilter("city", "berlin")
			require.NoError(t, err)
			records, err := dst.Query(ctx, "test", "people", f)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"ann", "cid", "tmp"}, names(records))

			f, err = query.NewContainsFilter("tags", query.CollectionList, "red")
			require.NoError(t, err)
			records, err = dst.Query(ctx, "test", "people", f)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"ann", "bob"}, names(records))

			// Deadlines are absolute: advancing past the restored record's
			// TTL expires it on the destination store too.
			clock.Advance(61 * time.Second)
			_, err = dst.Get(ctx, mustKey(t, "test", "people", "tmp"))
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestStore_SnapshotSkipsExpired(t *testing.T) {
	src, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, src.Put(ctx, &core.WritePolicy{Expiration: 1}, mustKey(t, "test", "s", "gone"),
		core.NewBin("v", int64(1))))
	require.NoError(t, src.Put(ctx, &core.WritePolicy{Expiration: core.TTLNeverExpire}, mustKey(t, "test", "s", "kept"),
		core.NewBin("v", int64(2))))
	clock.Advance(2 * time.Second)

	var buf bytes.Buffer
	require.NoError(t, src.SaveSnapshot(&buf, &compressors.NoCompressionCompressor{}))

	dst, err := NewStore(Options{
		Namespaces: []NamespaceOptions{{Name: "test"}, {Name: "perm"}},
		Clock:      clock,
	})
	require.NoError(t, err)
	defer dst.Close()
	require.NoError(t, dst.RestoreSnapshot(&buf))

	_, err = dst.Get(ctx, mustKey(t, "test", "s", "gone"))
	assert.ErrorIs(t, err, core.ErrNotFound)
	rec, err := dst.Get(ctx, mustKey(t, "test", "s", "kept"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Bins["v"])
}

func TestStore_RestoreRejectsBadHeader(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("bad magic", func(t *testing.T) {
		err := s.RestoreSnapshot(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF, 1, 0}))
		assert.ErrorContains(t, err, "bad snapshot magic")
	})
	t.Run("bad version", func(t *testing.T) {
		err := s.RestoreSnapshot(bytes.NewReader([]byte{0x4E, 0x4B, 0x56, 0x53, 99, 0}))
		assert.ErrorContains(t, err, "unsupported snapshot version")
	})
	t.Run("bad compression", func(t *testing.T) {
		err := s.RestoreSnapshot(bytes.NewReader([]byte{0x4E, 0x4B, 0x56, 0x53, 1, 42}))
		assert.ErrorContains(t, err, "unknown compression type")
	})
	t.Run("truncated", func(t *testing.T) {
		err := s.RestoreSnapshot(bytes.NewReader([]byte{0x4E, 0x4B}))
		assert.ErrorContains(t, err, "failed to read snapshot header")
	})
}

func TestStore_RestoreRejectsUndeclaredNamespace(t *testing.T) {
	src, clock := newTestStore(t)
	require.NoError(t, src.Put(context.Background(), nil, mustKey(t, "perm", "s", "k"),
		core.NewBin("v", int64(1))))

	var buf bytes.Buffer
	require.NoError(t, src.SaveSnapshot(&buf, &compressors.NoCompressionCompressor{}))

	dst, err := NewStore(Options{
		Namespaces: []NamespaceOptions{{Name: "test"}},
		Clock:      clock,
	})
	require.NoError(t, err)
	defer dst.Close()

	err = dst.RestoreSnapshot(&buf)
	assert.ErrorContains(t, err, "undeclared namespace")
}

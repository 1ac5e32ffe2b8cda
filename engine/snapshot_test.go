package engine

import (
	"bytes"
	"testing"

	"github.com/hupe1980/oriondb/codec"
	"github.com/hupe1980/oriondb/metadata"
	"github.com/hupe1980/oriondb/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState(t *testing.T) (*RecordStore, *metadata.InvertedIndex) {
	t.Helper()
	store := NewRecordStore()
	ix := metadata.NewInvertedIndex()

	add := func(id uint64, vec []float32, meta metadata.Metadata) {
		store.Put(id, vec, meta)
		ix.Insert(id, meta)
	}
	add(1, []float32{0.1, 0.1}, metadata.Metadata{"type": metadata.String("animal"), "color": metadata.String("red")})
	add(2, []float32{0.2, 0.2}, metadata.Metadata{"type": metadata.String("plant"), "color": metadata.String("green")})
	add(3, []float32{0.9, 0.9}, metadata.Metadata{"type": metadata.String("animal"), "color": metadata.String("blue")})
	return store, ix
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, ix := sampleState(t)
	cfg := model.Config{VectorDim: 2, MaxElements: 16}
	annBlob := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, cfg, store, ix, annBlob))

	snap, err := ReadSnapshot(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, cfg, snap.Config)
	assert.Equal(t, 3, snap.Store.Count())
	assert.Equal(t, annBlob, snap.ANNBlob)

	rec, ok := snap.Store.Get(3)
	require.True(t, ok)
	assert.Equal(t, []float32{0.9, 0.9}, rec.Vector)
	assert.Equal(t, metadata.String("blue"), rec.Metadata["color"])

	ids, ok := snap.MetaIndex.Lookup("type", metadata.String("animal"))
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 3}, ids.ToArray())
}

func TestSnapshotDeterministicBytes(t *testing.T) {
	store, ix := sampleState(t)
	cfg := model.Config{VectorDim: 2, MaxElements: 16}

	var a, b bytes.Buffer
	require.NoError(t, WriteSnapshot(&a, cfg, store, ix, nil))
	require.NoError(t, WriteSnapshot(&b, cfg, store, ix, nil))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestSnapshotHeaderLayout(t *testing.T) {
	store, ix := sampleState(t)
	cfg := model.Config{VectorDim: 2, MaxElements: 16}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, cfg, store, ix, nil))

	raw := buf.Bytes()
	assert.Equal(t, []byte("ORIONDB2"), raw[:8])
	// format_version, vector_dim u32 LE; max_elements u64 LE
	assert.Equal(t, []byte{2, 0, 0, 0}, raw[8:12])
	assert.Equal(t, []byte{2, 0, 0, 0}, raw[12:16])
	assert.Equal(t, []byte{16, 0, 0, 0, 0, 0, 0, 0}, raw[16:24])
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewReader([]byte("NOTADB00rest")))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestReadRejectsBadVersion(t *testing.T) {
	store, ix := sampleState(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, model.Config{VectorDim: 2, MaxElements: 16}, store, ix, nil))

	raw := buf.Bytes()
	raw[8] = 9 // corrupt the format version
	_, err := ReadSnapshot(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestReadRejectsTruncated(t *testing.T) {
	store, ix := sampleState(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, model.Config{VectorDim: 2, MaxElements: 16}, store, ix, []byte{1, 2, 3}))

	raw := buf.Bytes()
	_, err := ReadSnapshot(bytes.NewReader(raw[:len(raw)-2]))
	assert.Error(t, err)
}

func TestReadLegacyContainer(t *testing.T) {
	// ORIONDB1: magic, u32 version=1, config, records, metadata-index
	// sub-blob — no ANN sub-blob.
	store, ix := sampleState(t)

	var buf bytes.Buffer
	cw := codec.NewWriter(&buf)
	buf.WriteString(MagicLegacy)
	require.NoError(t, cw.WriteUint32(1))
	require.NoError(t, cw.WriteUint32(2))
	require.NoError(t, cw.WriteUint64(16))
	require.NoError(t, cw.WriteUint64(uint64(store.Count())))
	for _, id := range store.OrderedIDs() {
		rec, _ := store.Get(id)
		require.NoError(t, cw.WriteUint64(id))
		require.NoError(t, cw.WriteUint64(uint64(len(rec.Vector))))
		require.NoError(t, cw.WriteFloat32Slice(rec.Vector))
		require.NoError(t, metadata.WriteMetadata(cw, rec.Metadata))
	}
	var metaBlob bytes.Buffer
	require.NoError(t, ix.WriteTo(&metaBlob))
	require.NoError(t, cw.WriteUint64(uint64(metaBlob.Len())))
	buf.Write(metaBlob.Bytes())

	snap, err := ReadSnapshot(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Store.Count())
	assert.Nil(t, snap.ANNBlob)
}

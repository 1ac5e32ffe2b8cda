package hnsw

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/hupe1980/oriondb/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T, dim int, capacity uint64) *Index {
	t.Helper()
	seed := int64(1)
	h, err := New(dim, capacity, func(o *Options) {
		o.RandomSeed = &seed
	})
	require.NoError(t, err)
	return h
}

// ascending reverses the max-heap extraction order of SearchKNN.
func ascending(results []index.SearchResult) []index.SearchResult {
	out := make([]index.SearchResult, len(results))
	for i, r := range results {
		out[len(results)-1-i] = r
	}
	return out
}

func TestAddAndSearch(t *testing.T) {
	h := seeded(t, 2, 16)

	require.NoError(t, h.AddPoint([]float32{0.1, 0.1}, 1))
	require.NoError(t, h.AddPoint([]float32{0.2, 0.2}, 2))
	require.NoError(t, h.AddPoint([]float32{0.9, 0.9}, 3))

	results, err := h.SearchKNN([]float32{0.8, 0.8}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(3), results[0].ID)
	assert.InDelta(t, 0.02, results[0].Distance, 1e-5)
}

func TestSearchOrderIsDescending(t *testing.T) {
	h := seeded(t, 2, 16)
	require.NoError(t, h.AddPoint([]float32{0, 0}, 1))
	require.NoError(t, h.AddPoint([]float32{1, 1}, 2))
	require.NoError(t, h.AddPoint([]float32{2, 2}, 3))

	results, err := h.SearchKNN([]float32{0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	assert.Equal(t, uint64(1), results[len(results)-1].ID)
}

func TestRecallOnRandomData(t *testing.T) {
	h := seeded(t, 8, 1024)
	rng := rand.New(rand.NewSource(42))

	for i := range 500 {
		vec := make([]float32, 8)
		for d := range vec {
			vec[d] = rng.Float32()
		}
		require.NoError(t, h.AddPoint(vec, uint64(i+1)))
	}

	// A probe sitting on top of a stored point must find it first.
	target := make([]float32, 8)
	for d := range target {
		target[d] = 2.0 // outside the unit cube
	}
	require.NoError(t, h.AddPoint(target, 9999))

	results, err := h.SearchKNN(target, 1, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, uint64(9999), results[0].ID)
	assert.Zero(t, results[0].Distance)
}

func TestCapacityExhausted(t *testing.T) {
	h := seeded(t, 2, 2)
	require.NoError(t, h.AddPoint([]float32{0, 0}, 1))
	require.NoError(t, h.AddPoint([]float32{1, 1}, 2))

	err := h.AddPoint([]float32{2, 2}, 3)
	require.ErrorIs(t, err, index.ErrCapacityExhausted)

	// no state change: 3 is absent, the others still searchable
	assert.Equal(t, 2, h.Stats().Live)
	results, err := h.SearchKNN([]float32{0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMarkDeleted(t *testing.T) {
	h := seeded(t, 2, 16)
	require.NoError(t, h.AddPoint([]float32{0, 0}, 1))
	require.NoError(t, h.AddPoint([]float32{1, 1}, 2))

	require.NoError(t, h.MarkDeleted(1))

	results, err := h.SearchKNN([]float32{0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].ID)

	var nf *index.ErrNodeNotFound
	assert.ErrorAs(t, h.MarkDeleted(1), &nf)
	assert.ErrorAs(t, h.MarkDeleted(77), &nf)
}

func TestDeletedSlotIsReused(t *testing.T) {
	h := seeded(t, 2, 2)
	require.NoError(t, h.AddPoint([]float32{0, 0}, 1))
	require.NoError(t, h.AddPoint([]float32{1, 1}, 2))

	require.NoError(t, h.MarkDeleted(1))
	require.NoError(t, h.AddPoint([]float32{0.5, 0.5}, 3))

	stats := h.Stats()
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, 2, stats.Live)

	results, err := h.SearchKNN([]float32{0.5, 0.5}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(3), results[0].ID)
}

func TestDuplicateLiveLabelIsNoOp(t *testing.T) {
	h := seeded(t, 2, 16)
	require.NoError(t, h.AddPoint([]float32{0, 0}, 1))
	require.NoError(t, h.AddPoint([]float32{9, 9}, 1))

	assert.Equal(t, 1, h.Stats().Live)

	results, err := h.SearchKNN([]float32{0, 0}, 1, nil)
	require.NoError(t, err)
	assert.Zero(t, results[0].Distance)
}

func TestAdmissionFilter(t *testing.T) {
	h := seeded(t, 2, 16)
	require.NoError(t, h.AddPoint([]float32{0, 0}, 1))
	require.NoError(t, h.AddPoint([]float32{0.1, 0.1}, 2))
	require.NoError(t, h.AddPoint([]float32{0.2, 0.2}, 3))

	results, err := h.SearchKNN([]float32{0, 0}, 3, func(label uint64) bool {
		return label == 3
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(3), results[0].ID)
}

func TestDimensionMismatch(t *testing.T) {
	h := seeded(t, 4, 16)

	var dm *index.ErrDimensionMismatch
	assert.ErrorAs(t, h.AddPoint([]float32{1, 2}, 1), &dm)

	_, err := h.SearchKNN([]float32{1, 2}, 1, nil)
	assert.ErrorAs(t, err, &dm)
}

func TestEmptyIndexSearch(t *testing.T) {
	h := seeded(t, 2, 16)

	results, err := h.SearchKNN([]float32{0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBinaryRoundTrip(t *testing.T) {
	h := seeded(t, 4, 64)
	rng := rand.New(rand.NewSource(7))
	for i := range 40 {
		vec := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
		require.NoError(t, h.AddPoint(vec, uint64(i+1)))
	}
	require.NoError(t, h.MarkDeleted(5))
	require.NoError(t, h.MarkDeleted(17))

	var buf bytes.Buffer
	require.NoError(t, h.WriteTo(&buf))

	decoded, err := Decode(bytes.NewReader(buf.Bytes()), 4, 64)
	require.NoError(t, err)

	assert.Equal(t, h.Stats(), decoded.Stats())

	q := []float32{0.3, 0.3, 0.3, 0.3}
	want, err := h.SearchKNN(q, 10, nil)
	require.NoError(t, err)
	got, err := decoded.SearchKNN(q, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, ascending(want), ascending(got))
}

func TestDecodeRejectsWrongDimension(t *testing.T) {
	h := seeded(t, 2, 16)
	require.NoError(t, h.AddPoint([]float32{0, 0}, 1))

	var buf bytes.Buffer
	require.NoError(t, h.WriteTo(&buf))

	var dm *index.ErrDimensionMismatch
	_, err := Decode(bytes.NewReader(buf.Bytes()), 3, 16)
	assert.ErrorAs(t, err, &dm)
}

func TestDecodeGrowsCapacity(t *testing.T) {
	h := seeded(t, 2, 4)
	require.NoError(t, h.AddPoint([]float32{0, 0}, 1))

	var buf bytes.Buffer
	require.NoError(t, h.WriteTo(&buf))

	decoded, err := Decode(bytes.NewReader(buf.Bytes()), 2, 128)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), decoded.Capacity())
}

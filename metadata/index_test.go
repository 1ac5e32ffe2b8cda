package metadata

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertLookup(t *testing.T) {
	ix := NewInvertedIndex()
	ix.Insert(1, Metadata{"type": String("animal"), "color": String("red")})
	ix.Insert(2, Metadata{"type": String("animal"), "color": String("blue")})
	ix.Insert(3, Metadata{"type": String("plant")})

	ids, ok := ix.Lookup("type", String("animal"))
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2}, ids.ToArray())

	_, ok = ix.Lookup("type", String("mineral"))
	assert.False(t, ok)

	_, ok = ix.Lookup("absent", String("x"))
	assert.False(t, ok)
}

func TestRemoveErasesEmptyEntries(t *testing.T) {
	ix := NewInvertedIndex()
	doc := Metadata{"type": String("animal"), "legs": Int(4)}
	ix.Insert(7, doc)

	ix.Remove(7, doc)

	assert.Zero(t, ix.Len())
	assert.True(t, ix.IDs().IsEmpty())
}

func TestRemoveKeepsOtherIDs(t *testing.T) {
	ix := NewInvertedIndex()
	ix.Insert(1, Metadata{"type": String("animal")})
	ix.Insert(2, Metadata{"type": String("animal")})

	ix.Remove(1, Metadata{"type": String("animal")})

	ids, ok := ix.Lookup("type", String("animal"))
	require.True(t, ok)
	assert.Equal(t, []uint64{2}, ids.ToArray())
}

func TestCandidatesIntersection(t *testing.T) {
	ix := NewInvertedIndex()
	ix.Insert(1, Metadata{"type": String("animal"), "color": String("red")})
	ix.Insert(2, Metadata{"type": String("animal"), "color": String("blue")})
	ix.Insert(3, Metadata{"type": String("plant"), "color": String("blue")})

	got, ok := ix.Candidates(Metadata{"type": String("animal"), "color": String("blue")})
	require.True(t, ok)
	assert.Equal(t, []uint64{2}, got.ToArray())

	// missing key short-circuits
	_, ok = ix.Candidates(Metadata{"absent": String("x")})
	assert.False(t, ok)

	// empty intersection short-circuits
	_, ok = ix.Candidates(Metadata{"type": String("plant"), "color": String("red")})
	assert.False(t, ok)
}

func TestNaNFilterNeverMatches(t *testing.T) {
	ix := NewInvertedIndex()
	ix.Insert(1, Metadata{"score": Float(math.NaN())})

	_, ok := ix.Lookup("score", Float(math.NaN()))
	assert.False(t, ok)

	// the stored NaN still removes cleanly against its own record
	ix.Remove(1, Metadata{"score": Float(math.NaN())})
	assert.Zero(t, ix.Len())
}

func TestSignedZeroSharesPostings(t *testing.T) {
	ix := NewInvertedIndex()
	ix.Insert(1, Metadata{"score": Float(0.0)})

	ids, ok := ix.Lookup("score", Float(math.Copysign(0, -1)))
	require.True(t, ok)
	assert.Equal(t, []uint64{1}, ids.ToArray())
}

func TestSerializationRoundTrip(t *testing.T) {
	ix := NewInvertedIndex()
	ix.Insert(1, Metadata{"type": String("animal"), "legs": Int(4), "score": Float(0.9)})
	ix.Insert(2, Metadata{"type": String("animal"), "legs": Int(2)})
	ix.Insert(3, Metadata{"type": String("plant")})

	var buf bytes.Buffer
	require.NoError(t, ix.WriteTo(&buf))

	got, err := ReadInvertedIndex(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	ids, ok := got.Lookup("type", String("animal"))
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2}, ids.ToArray())

	ids, ok = got.Lookup("legs", Int(4))
	require.True(t, ok)
	assert.Equal(t, []uint64{1}, ids.ToArray())

	// deterministic bytes
	var buf2 bytes.Buffer
	require.NoError(t, got.WriteTo(&buf2))
	assert.Equal(t, buf.Bytes(), buf2.Bytes())
}

func TestProjectionMatchesAfterChurn(t *testing.T) {
	ix := NewInvertedIndex()
	docs := map[uint64]Metadata{}

	for id := uint64(1); id <= 50; id++ {
		doc := Metadata{"bucket": Int(int64(id % 5)), "name": String("n")}
		docs[id] = doc
		ix.Insert(id, doc)
	}
	for id := uint64(1); id <= 50; id += 2 {
		ix.Remove(id, docs[id])
		delete(docs, id)
	}

	want := make([]uint64, 0, len(docs))
	for id := uint64(2); id <= 50; id += 2 {
		want = append(want, id)
	}
	assert.Equal(t, want, ix.IDs().ToArray())
}

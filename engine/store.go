// Package engine holds the authoritative record store and the snapshot
// container that persists the whole database as a single file.
package engine

import (
	"slices"

	"github.com/hupe1980/oriondb/metadata"
	"github.com/hupe1980/oriondb/model"
)

// RecordStore is the authoritative mapping from vector id to record.
// The auxiliary indexes are projections of it and hold only ids.
//
// The store does no internal locking; the owning database serializes
// access together with the metadata and ANN indexes.
type RecordStore struct {
	records map[model.VectorID]model.Record
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[model.VectorID]model.Record)}
}

// Contains reports whether id is stored.
func (s *RecordStore) Contains(id model.VectorID) bool {
	_, ok := s.records[id]
	return ok
}

// Get returns the record for id.
func (s *RecordStore) Get(id model.VectorID) (model.Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// Put stores a record, overwriting any previous one. It returns the
// displaced record so the caller can unwind the auxiliary indexes.
func (s *RecordStore) Put(id model.VectorID, vec []float32, meta metadata.Metadata) (model.Record, bool) {
	prev, existed := s.records[id]
	s.records[id] = model.Record{Vector: vec, Metadata: meta}
	return prev, existed
}

// Erase removes and returns the record for id.
func (s *RecordStore) Erase(id model.VectorID) (model.Record, bool) {
	rec, ok := s.records[id]
	if ok {
		delete(s.records, id)
	}
	return rec, ok
}

// Count returns the number of stored records.
func (s *RecordStore) Count() int { return len(s.records) }

// OrderedIDs returns every stored id in ascending order. Snapshots use
// it for deterministic serialization.
func (s *RecordStore) OrderedIDs() []model.VectorID {
	ids := make([]model.VectorID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

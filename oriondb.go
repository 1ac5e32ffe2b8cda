package oriondb

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hupe1980/oriondb/engine"
	"github.com/hupe1980/oriondb/index"
	"github.com/hupe1980/oriondb/internal/fs"
	"github.com/hupe1980/oriondb/internal/fsutil"
	"github.com/hupe1980/oriondb/metadata"
	"github.com/hupe1980/oriondb/model"
)

// Config holds the database shape; see model.Config.
type Config = model.Config

// QueryResult is one k-NN query hit; see model.QueryResult.
type QueryResult = model.QueryResult

// Database is an embeddable vector database. It owns the authoritative
// record store, the metadata inverted index and the ANN graph, and
// keeps the three coherent under a single reader-writer lock.
type Database struct {
	mu sync.RWMutex

	path     string
	cfg      model.Config
	store    *engine.RecordStore
	metaIdx  *metadata.InvertedIndex
	ann      index.Index
	provider index.Provider

	fsys    fs.FileSystem
	logger  *Logger
	metrics MetricsCollector
}

// Create builds an empty database for the given config and immediately
// writes an initial snapshot to path, so a subsequent Load of the same
// path is defined.
func Create(path string, cfg Config, optFns ...Option) (*Database, error) {
	opts := applyOptions(optFns)

	cfg = cfg.WithDefaults()
	if cfg.VectorDim == 0 {
		return nil, &ErrInvalidDimension{Dimension: cfg.VectorDim}
	}

	ann, err := opts.provider.New(int(cfg.VectorDim), cfg.MaxElements)
	if err != nil {
		return nil, err
	}

	db := &Database{
		path:     path,
		cfg:      cfg,
		store:    engine.NewRecordStore(),
		metaIdx:  metadata.NewInvertedIndex(),
		ann:      ann,
		provider: opts.provider,
		fsys:     opts.fsys,
		logger:   opts.logger,
		metrics:  opts.metrics,
	}

	if err := db.saveLocked(); err != nil {
		db.logger.LogSnapshot(path, err)
		return nil, fmt.Errorf("%w: %w", ErrSnapshotWrite, err)
	}
	return db, nil
}

// Load reads and validates the snapshot at path and rebuilds the
// in-memory state from it. A damaged or missing ANN sub-blob is
// tolerated: the index is repopulated from the record store instead.
func Load(path string, optFns ...Option) (*Database, error) {
	opts := applyOptions(optFns)

	f, err := opts.fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		opts.logger.LogLoad(path, 0, err)
		return nil, err
	}
	snap, err := engine.ReadSnapshot(bufio.NewReader(f))
	_ = f.Close()
	if err != nil {
		opts.logger.LogLoad(path, 0, err)
		return nil, err
	}

	return newFromSnapshot(snap, path, opts)
}

// newFromSnapshot rebuilds the in-memory state from a decoded
// container. path is where future Save calls will write.
func newFromSnapshot(snap *engine.Snapshot, path string, opts options) (*Database, error) {
	cfg := snap.Config.WithDefaults()
	if cfg.VectorDim == 0 {
		return nil, &ErrInvalidDimension{Dimension: cfg.VectorDim}
	}

	db := &Database{
		path:     path,
		cfg:      cfg,
		store:    snap.Store,
		metaIdx:  snap.MetaIndex,
		provider: opts.provider,
		fsys:     opts.fsys,
		logger:   opts.logger,
		metrics:  opts.metrics,
	}

	var err error
	if len(snap.ANNBlob) > 0 {
		db.ann, err = opts.provider.Decode(bytes.NewReader(snap.ANNBlob), int(cfg.VectorDim), cfg.MaxElements)
		if err != nil {
			opts.logger.Warn("failed to decode index blob, rebuilding from records", "path", path, "error", err)
			db.ann = nil
		}
	}
	if db.ann == nil {
		if db.ann, err = opts.provider.New(int(cfg.VectorDim), cfg.MaxElements); err != nil {
			return nil, err
		}
	}

	// Re-add every stored record. Labels the decoded index already
	// holds are no-ops; per-point failures (an out-of-date snapshot
	// whose capacity no longer fits) leave the index partially
	// populated and are tolerated.
	for _, id := range db.store.OrderedIDs() {
		rec, _ := db.store.Get(id)
		if err := db.ann.AddPoint(rec.Vector, id); err != nil {
			db.logger.Warn("skipping unindexable record", "id", id, "error", err)
		}
	}

	db.logger.LogLoad(path, db.store.Count(), nil)
	return db, nil
}

// Count returns the number of live records.
func (db *Database) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.Count()
}

// Stats returns statistics about the underlying ANN index.
func (db *Database) Stats() index.Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.ann.Stats()
}

// Get retrieves the vector and metadata stored under id. The returned
// values are copies; mutating them does not affect the database.
func (db *Database) Get(id uint64) ([]float32, metadata.Metadata, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rec, ok := db.store.Get(id)
	if !ok {
		return nil, nil, false
	}
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	return vec, rec.Metadata.Clone(), true
}

// Add stores (vec, meta) under id, replacing any previous record with
// the same id atomically. It returns false when the vector has the
// wrong dimension or the ANN index rejects the point even after a
// rebuild; in the latter case the record store retains the write, and a
// later add that triggers a rebuild, or a save/load cycle, adds it to the
// ANN index. Its metadata is not inserted into the metadata index.
func (db *Database) Add(id uint64, vec []float32, meta metadata.Metadata) bool {
	start := time.Now()
	ok := db.add(id, vec, meta)
	db.metrics.RecordAdd(time.Since(start), ok)
	db.logger.LogAdd(id, ok)
	return ok
}

func (db *Database) add(id uint64, vec []float32, meta metadata.Metadata) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(vec) != int(db.cfg.VectorDim) {
		return false
	}

	vecCopy := make([]float32, len(vec))
	copy(vecCopy, vec)
	metaCopy := meta.Clone()

	// Replacement is delete-then-insert: displace the old metadata and
	// soft-delete the old point before the store is overwritten.
	if prev, ok := db.store.Get(id); ok {
		db.metaIdx.Remove(id, prev.Metadata)
		_ = db.ann.MarkDeleted(id)
	}

	db.store.Put(id, vecCopy, metaCopy)

	if err := db.ann.AddPoint(vecCopy, id); err != nil {
		if !errors.Is(err, index.ErrCapacityExhausted) {
			db.logger.Error("index insert failed", "id", id, "error", err)
			return false
		}
		if err := db.rebuildLocked(); err != nil {
			return false
		}
		if err := db.ann.AddPoint(vecCopy, id); err != nil {
			db.logger.Error("index insert failed after rebuild", "id", id, "error", err)
			return false
		}
	}

	db.metaIdx.Insert(id, metaCopy)
	return true
}

// rebuildLocked replaces the ANN index with a larger one repopulated
// from the record store. The caller holds the exclusive lock. On
// failure the old index stays in place.
func (db *Database) rebuildLocked() error {
	oldCap := db.ann.Capacity()
	newCap := max(oldCap*2, uint64(db.store.Count())+10)

	fresh, err := db.provider.New(int(db.cfg.VectorDim), newCap)
	if err == nil {
		for _, id := range db.store.OrderedIDs() {
			rec, _ := db.store.Get(id)
			if err = fresh.AddPoint(rec.Vector, id); err != nil {
				break
			}
		}
	}

	db.metrics.RecordRebuild(newCap, err == nil)
	db.logger.LogRebuild(oldCap, newCap, err)
	if err != nil {
		return err
	}

	db.ann = fresh
	db.cfg.MaxElements = newCap
	return nil
}

// Remove deletes the record stored under id. It returns false when id
// is absent.
func (db *Database) Remove(id uint64) bool {
	start := time.Now()

	db.mu.Lock()
	rec, ok := db.store.Get(id)
	if ok {
		db.metaIdx.Remove(id, rec.Metadata)
		_ = db.ann.MarkDeleted(id)
		db.store.Erase(id)
	}
	db.mu.Unlock()

	db.metrics.RecordRemove(time.Since(start), ok)
	db.logger.LogRemove(id, ok)
	return ok
}

// Query returns the up to n nearest stored vectors to q in ascending
// distance order. A query of the wrong dimension or against an empty
// database yields an empty result.
func (db *Database) Query(q []float32, n int) []QueryResult {
	start := time.Now()

	db.mu.RLock()
	results := db.queryLocked(q, n, nil)
	db.mu.RUnlock()

	db.metrics.RecordSearch(n, time.Since(start))
	db.logger.LogSearch(n, len(results), false)
	return results
}

// QueryFiltered returns the up to n nearest stored vectors to q among
// the records matching every (key, value) pair of filter. An empty
// filter behaves like Query; a filter clause naming an absent key or
// value yields an empty result.
func (db *Database) QueryFiltered(q []float32, n int, filter metadata.Metadata) []QueryResult {
	if len(filter) == 0 {
		return db.Query(q, n)
	}

	start := time.Now()

	db.mu.RLock()
	var results []QueryResult
	if candidates, ok := db.metaIdx.Candidates(filter); ok {
		results = db.queryLocked(q, n, candidates.Contains)
	}
	db.mu.RUnlock()

	db.metrics.RecordSearch(n, time.Since(start))
	db.logger.LogSearch(n, len(results), true)
	return results
}

func (db *Database) queryLocked(q []float32, n int, filter index.FilterFunc) []QueryResult {
	if len(q) != int(db.cfg.VectorDim) || db.store.Count() == 0 || n <= 0 {
		return nil
	}

	hits, err := db.ann.SearchKNN(q, n, filter)
	if err != nil {
		db.logger.Error("search failed", "error", err)
		return nil
	}

	// The index returns max-heap extraction order; reverse for
	// ascending distance.
	results := make([]QueryResult, len(hits))
	for i, h := range hits {
		results[len(hits)-1-i] = QueryResult{ID: h.ID, Distance: h.Distance}
	}
	return results
}

// Save writes the snapshot to the database's path: temp file, durable
// flush, atomic rename. On failure the previous snapshot is untouched
// and Save returns false.
func (db *Database) Save() bool {
	start := time.Now()

	db.mu.Lock()
	err := db.saveLocked()
	db.mu.Unlock()

	db.metrics.RecordSave(time.Since(start), err == nil)
	db.logger.LogSnapshot(db.path, err)
	return err == nil
}

func (db *Database) saveLocked() error {
	return fsutil.WriteFileAtomic(db.fsys, db.path, func(f fs.File) error {
		bw := bufio.NewWriter(f)
		if err := db.writeSnapshotLocked(bw); err != nil {
			return err
		}
		return bw.Flush()
	})
}

// SaveToWriter streams the snapshot to w. The container is identical to
// the one Save writes.
func (db *Database) SaveToWriter(w io.Writer) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.writeSnapshotLocked(w)
}

func (db *Database) writeSnapshotLocked(w io.Writer) error {
	var annBlob bytes.Buffer
	if err := db.ann.WriteTo(&annBlob); err != nil {
		return err
	}
	return engine.WriteSnapshot(w, db.cfg, db.store, db.metaIdx, annBlob.Bytes())
}

// Package oriondb provides an embeddable single-process vector
// database.
//
// A Database stores fixed-dimensional float32 vectors under
// caller-chosen 64-bit ids, each carrying a small typed metadata
// record, and answers approximate k-nearest-neighbor queries under
// squared L2 distance, optionally restricted to records matching a
// conjunctive equality filter. There is no server and no query
// language; the database links into the host program and persists as a
// single crash-safe snapshot file.
//
// # Quick start
//
//	db, err := oriondb.Create("vectors.odb", oriondb.Config{VectorDim: 2, MaxElements: 1024})
//	if err != nil {
//	    panic(err)
//	}
//
//	db.Add(1, []float32{0.1, 0.1}, metadata.Metadata{
//	    "type":  metadata.String("animal"),
//	    "color": metadata.String("red"),
//	})
//
//	results := db.QueryFiltered([]float32{0.8, 0.8}, 1, metadata.Metadata{
//	    "type": metadata.String("animal"),
//	})
//
//	db.Save()
//
// A saved database is reopened with Load. Snapshots can also be shipped
// to and restored from blob stores (local directories, S3, MinIO); see
// SaveToStore and LoadFromStore.
//
// # Concurrency
//
// A Database is safe for concurrent use. Mutations (Add, Remove, Save)
// exclude all other operations; reads (Get, Query, QueryFiltered,
// Count) run concurrently with each other.
package oriondb

package model

import "github.com/hupe1980/oriondb/metadata"

// VectorID is the caller-chosen stable identifier of a vector, unique
// within a database.
type VectorID = uint64

// DefaultMaxElements is the ANN capacity used when a Config leaves
// MaxElements zero.
const DefaultMaxElements = 1_000_000

// Config holds the immutable shape of a database. MaxElements is the
// one exception: it grows when the ANN index is rebuilt after capacity
// exhaustion.
type Config struct {
	// VectorDim is the dimensionality every stored vector must have.
	VectorDim uint32

	// MaxElements is the ANN index capacity. Zero means
	// DefaultMaxElements.
	MaxElements uint64
}

// WithDefaults returns the config with zero fields replaced by their
// defaults.
func (c Config) WithDefaults() Config {
	if c.MaxElements == 0 {
		c.MaxElements = DefaultMaxElements
	}
	return c
}

// Record is one stored entry: the vector and its metadata.
type Record struct {
	Vector   []float32
	Metadata metadata.Metadata
}

// QueryResult is one k-NN query hit.
type QueryResult struct {
	// ID is the vector's identifier.
	ID VectorID

	// Distance is the squared L2 distance to the query vector.
	Distance float32
}

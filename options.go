package oriondb

import (
	"log/slog"

	"github.com/hupe1980/oriondb/index"
	"github.com/hupe1980/oriondb/index/hnsw"
	"github.com/hupe1980/oriondb/internal/fs"
)

type options struct {
	logger      *Logger
	metrics     MetricsCollector
	fsys        fs.FileSystem
	provider    index.Provider
	indexOptFns []func(o *hnsw.Options)
}

// Option configures Create and Load behavior.
type Option func(*options)

// WithLogger configures structured logging. Pass nil to keep the
// default no-op logger.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel installs a text logger at the given level. Convenience
// wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

// WithIndexProvider substitutes the ANN backend. Any implementation of
// the index capability contract works; tests use an in-memory
// brute-force provider.
func WithIndexProvider(p index.Provider) Option {
	return func(o *options) {
		if p != nil {
			o.provider = p
		}
	}
}

// WithRandomSeed pins the default HNSW backend's layer distribution for
// reproducible graphs. Ignored when WithIndexProvider is set.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.indexOptFns = append(o.indexOptFns, func(io *hnsw.Options) {
			s := seed
			io.RandomSeed = &s
		})
	}
}

// withFileSystem injects a FileSystem; tests use it for fault
// injection.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
		fsys:    fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.provider == nil {
		o.provider = hnsw.Provider{OptFns: o.indexOptFns}
	}
	return o
}

package oriondb

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with database-specific helpers so every
// operation logs with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler
// falls back to a text handler on stderr at Info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that writes human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that writes JSON logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // unreachable level
	}))
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(id uint64, ok bool) {
	if !ok {
		l.Error("add failed", "id", id)
		return
	}
	l.Debug("add completed", "id", id)
}

// LogRemove logs a remove operation.
func (l *Logger) LogRemove(id uint64, ok bool) {
	l.Debug("remove completed", "id", id, "found", ok)
}

// LogSearch logs a query.
func (l *Logger) LogSearch(k, found int, filtered bool) {
	l.Debug("query completed", "k", k, "results", found, "filtered", filtered)
}

// LogRebuild logs an index rebuild triggered by capacity exhaustion.
func (l *Logger) LogRebuild(oldCapacity, newCapacity uint64, err error) {
	if err != nil {
		l.Error("index rebuild failed", "old_capacity", oldCapacity, "new_capacity", newCapacity, "error", err)
		return
	}
	l.Info("index rebuilt", "old_capacity", oldCapacity, "new_capacity", newCapacity)
}

// LogSnapshot logs a snapshot save.
func (l *Logger) LogSnapshot(path string, err error) {
	if err != nil {
		l.Error("snapshot failed", "path", path, "error", err)
		return
	}
	l.Info("snapshot saved", "path", path)
}

// LogLoad logs a snapshot load.
func (l *Logger) LogLoad(path string, records int, err error) {
	if err != nil {
		l.Error("load failed", "path", path, "error", err)
		return
	}
	l.Info("load completed", "path", path, "records", records)
}

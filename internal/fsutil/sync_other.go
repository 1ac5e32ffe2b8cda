//go:build !linux

package fsutil

import "github.com/hupe1980/oriondb/internal/fs"

// syncFile flushes file buffers to stable storage.
func syncFile(f fs.File) error {
	return f.Sync()
}

//go:build linux

package fsutil

import (
	"os"

	"github.com/hupe1980/oriondb/internal/fs"
	"golang.org/x/sys/unix"
)

// syncFile flushes file buffers to stable storage. On Linux, plain
// *os.File handles take the cheaper Fdatasync path; wrapped files fall
// back to Sync.
func syncFile(f fs.File) error {
	if osf, ok := f.(*os.File); ok {
		return unix.Fdatasync(int(osf.Fd()))
	}
	return f.Sync()
}

// Package fsutil publishes snapshot files atomically: write to a
// sibling temp file, flush it durably to the OS, then rename over the
// final path. A failure before the rename leaves the final path
// untouched.
package fsutil

import (
	"os"

	"github.com/hupe1980/oriondb/internal/fs"
)

// WriteFileAtomic writes the output of write to path+".tmp", syncs it,
// and renames it over path. On any error the temp file is removed and
// path keeps its previous content.
func WriteFileAtomic(fsys fs.FileSystem, path string, write func(f fs.File) error) error {
	if fsys == nil {
		fsys = fs.Default
	}
	tmp := path + ".tmp"

	f, err := fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := write(f); err != nil {
		_ = f.Close()
		_ = fsys.Remove(tmp)
		return err
	}

	if err := syncFile(f); err != nil {
		_ = f.Close()
		_ = fsys.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}

	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return nil
}

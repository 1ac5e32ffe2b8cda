package fs

import (
	"errors"
	"os"
	"sync"
)

// ErrInjected is the error FaultyFS returns from failing operations.
var ErrInjected = errors.New("fs: injected fault")

// FaultyFS wraps a FileSystem and injects write failures for tests.
type FaultyFS struct {
	FS FileSystem

	mu           sync.Mutex
	written      int64
	limit        int64 // fail writes after this many bytes, -1 = never
	failOnSync   bool
	failOnRename bool
}

// NewFaultyFS creates a FaultyFS wrapping fs (or Default if nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys, limit: -1}
}

// SetWriteLimit makes writes fail once limit bytes have been written.
func (f *FaultyFS) SetWriteLimit(limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
}

// FailOnSync makes File.Sync fail.
func (f *FaultyFS) FailOnSync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnSync = true
}

// FailOnRename makes Rename fail.
func (f *FaultyFS) FailOnRename() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnRename = true
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f}, nil
}

func (f *FaultyFS) Remove(name string) error { return f.FS.Remove(name) }

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	fail := f.failOnRename
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.FS.Rename(oldpath, newpath)
}

type faultyFile struct {
	File
	fs *FaultyFS
}

func (f *faultyFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	limit := f.fs.limit
	exceeded := limit >= 0 && f.fs.written+int64(len(p)) > limit
	if !exceeded {
		f.fs.written += int64(len(p))
	}
	f.fs.mu.Unlock()

	if exceeded {
		return 0, ErrInjected
	}
	return f.File.Write(p)
}

func (f *faultyFile) Sync() error {
	f.fs.mu.Lock()
	fail := f.fs.failOnSync
	f.fs.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.File.Sync()
}

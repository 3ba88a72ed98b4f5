package filesystem

import (
	"fmt"
	"os"

	"github.com/vertextoedge/media-cache/internal/port"
)

// sparseFile backs one resource with a data file opened twice: a write handle
// owned by the worker and an independent read handle for concurrent readers.
type sparseFile struct {
	path string
	w    *os.File
	r    *os.File
}

// Ensure sparseFile implements port.SparseFile
var _ port.SparseFile = (*sparseFile)(nil)

func openSparseFile(path string) (*sparseFile, error) {
	w, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file for writing: %w", err)
	}
	r, err := os.Open(path)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to open data file for reading: %w", err)
	}
	return &sparseFile{path: path, w: w, r: r}, nil
}

func (f *sparseFile) ReadAt(p []byte, off int64) (int, error) {
	return f.r.ReadAt(p, off)
}

func (f *sparseFile) WriteAt(p []byte, off int64) (int, error) {
	return f.w.WriteAt(p, off)
}

func (f *sparseFile) Truncate(size int64) error {
	if err := f.w.Truncate(size); err != nil {
		return err
	}
	return f.w.Sync()
}

func (f *sparseFile) Size() (int64, error) {
	info, err := f.w.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *sparseFile) Sync() error {
	return f.w.Sync()
}

func (f *sparseFile) Close() error {
	werr := f.w.Close()
	rerr := f.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

package file_io

import "time"

// FileInfo is the subset of stat information the coordination layer needs.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FileIO is the narrow byte-level interface the file handle performs its
// actual I/O through once a grant has arrived. Everything above it can be
// tested with the in-memory implementation.
type FileIO interface {
	Read(path string) ([]byte, error)
	// Write replaces the file contents atomically.
	Write(path string, data []byte) error
	Append(path string, data []byte) error
	Stat(path string) (FileInfo, error)
	Unlink(path string) error
}

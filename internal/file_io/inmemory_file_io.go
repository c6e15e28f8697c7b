package file_io

import (
	"fmt"
	"sync"
	"time"
)

// InMemoryFileIO is a map-backed fake for tests.
type InMemoryFileIO struct {
	mu    sync.RWMutex
	files map[string][]byte
	mtime map[string]time.Time
}

func NewInMemoryFileIO() *InMemoryFileIO {
	return &InMemoryFileIO{
		files: make(map[string][]byte),
		mtime: make(map[string]time.Time),
	}
}

func (io *InMemoryFileIO) Read(path string) ([]byte, error) {
	io.mu.RLock()
	defer io.mu.RUnlock()

	data, ok := io.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (io *InMemoryFileIO) Write(path string, data []byte) error {
	io.mu.Lock()
	defer io.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	io.files[path] = stored
	io.mtime[path] = time.Now()
	return nil
}

func (io *InMemoryFileIO) Append(path string, data []byte) error {
	io.mu.Lock()
	defer io.mu.Unlock()

	io.files[path] = append(io.files[path], data...)
	io.mtime[path] = time.Now()
	return nil
}

func (io *InMemoryFileIO) Stat(path string) (FileInfo, error) {
	io.mu.RLock()
	defer io.mu.RUnlock()

	data, ok := io.files[path]
	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return FileInfo{
		Path:    path,
		Size:    int64(len(data)),
		ModTime: io.mtime[path],
	}, nil
}

func (io *InMemoryFileIO) Unlink(path string) error {
	io.mu.Lock()
	defer io.mu.Unlock()

	if _, ok := io.files[path]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	delete(io.files, path)
	delete(io.mtime, path)
	return nil
}

var _ FileIO = (*InMemoryFileIO)(nil)

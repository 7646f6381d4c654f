// Package mmap provides a minimal read-only memory mapping for device
// images. On platforms without mmap support, Open returns ErrUnsupported
// and callers fall back to plain file reads.
package mmap

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
)

// ErrUnsupported is returned by Open on platforms without mmap support.
var ErrUnsupported = errors.New("mmap: not supported on this platform")

// ErrClosed is returned when the mapping has been closed.
var ErrClosed = errors.New("mmap: closed")

// Mapping is a read-only memory-mapped file. It owns the mapped slice and
// is responsible for unmapping it.
type Mapping struct {
	data   []byte
	closed atomic.Bool
}

// Open maps the file at path into memory as read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{}, nil
	}

	data, err := osMap(f, int(size))
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data}, nil
}

// Bytes returns the mapped bytes. The slice is valid only until Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return osUnmap(data)
}

package blockdev

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/bcache/internal/mmap"
)

// FileDevice is a Device backed by a flat image file: block n lives at byte
// offset n*BlockSize. Read-only devices memory-map the image when the
// platform supports it and fall back to pread otherwise.
type FileDevice struct {
	mu        sync.RWMutex
	f         *os.File
	m         *mmap.Mapping // nil unless read-only and mmap succeeded
	blockSize int
	numBlocks uint64
	readOnly  bool
	closed    bool
}

// CreateFileDevice creates (or truncates) an image file sized for numBlocks
// blocks and opens it read-write.
func CreateFileDevice(path string, blockSize int, numBlocks uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(blockSize) * int64(numBlocks)); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, blockSize: blockSize, numBlocks: numBlocks}, nil
}

// OpenFileDevice opens an existing image file. The file size must be a
// multiple of blockSize; the block count is derived from it. With readOnly
// set, reads go through a shared memory mapping where available.
func OpenFileDevice(path string, blockSize int, readOnly bool) (*FileDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size()%int64(blockSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("image size %d is not a multiple of block size %d", fi.Size(), blockSize)
	}

	d := &FileDevice{
		f:         f,
		blockSize: blockSize,
		numBlocks: uint64(fi.Size()) / uint64(blockSize),
		readOnly:  readOnly,
	}

	if readOnly {
		m, merr := mmap.Open(path)
		if merr == nil {
			d.m = m
		} else if !errors.Is(merr, mmap.ErrUnsupported) {
			f.Close()
			return nil, merr
		}
	}
	return d, nil
}

// BlockSize returns the fixed transfer size in bytes.
func (d *FileDevice) BlockSize() int { return d.blockSize }

// NumBlocks returns the device capacity in blocks.
func (d *FileDevice) NumBlocks() uint64 { return d.numBlocks }

// ReadBlock fills p with the block's contents.
func (d *FileDevice) ReadBlock(ctx context.Context, blockno uint64, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLen(p, d.blockSize); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	if blockno >= d.numBlocks {
		return ErrBlockOutOfRange
	}

	off := int64(blockno) * int64(d.blockSize)
	if d.m != nil {
		_, err := d.m.ReadAt(p, off)
		return err
	}
	_, err := d.f.ReadAt(p, off)
	return err
}

// WriteBlock persists p as the block's contents. The write is handed to the
// OS before the call returns; durability beyond that (fsync) is the image
// owner's concern via Sync.
func (d *FileDevice) WriteBlock(ctx context.Context, blockno uint64, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLen(p, d.blockSize); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return ErrReadOnly
	}
	if blockno >= d.numBlocks {
		return ErrBlockOutOfRange
	}

	_, err := d.f.WriteAt(p, int64(blockno)*int64(d.blockSize))
	return err
}

// Sync flushes the image file to stable storage.
func (d *FileDevice) Sync() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return nil
	}
	return d.f.Sync()
}

// Close unmaps and closes the image file.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var err error
	if d.m != nil {
		err = d.m.Close()
		d.m = nil
	}
	if cerr := d.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

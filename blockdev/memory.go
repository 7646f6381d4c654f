package blockdev

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// MemoryDevice is a sparse in-memory Device. Blocks are materialized on
// first write; reads of never-written blocks return zeros. The set of
// written blocks is tracked in a roaring bitmap so snapshots only carry
// blocks that exist. Thread-safe.
type MemoryDevice struct {
	mu        sync.RWMutex
	blockSize int
	numBlocks uint64
	blocks    map[uint64][]byte
	written   *roaring64.Bitmap
	closed    bool
}

// NewMemoryDevice creates a sparse in-memory device with the given block
// size and capacity in blocks. numBlocks == 0 means unbounded.
func NewMemoryDevice(blockSize int, numBlocks uint64) *MemoryDevice {
	return &MemoryDevice{
		blockSize: blockSize,
		numBlocks: numBlocks,
		blocks:    make(map[uint64][]byte),
		written:   roaring64.New(),
	}
}

// BlockSize returns the fixed transfer size in bytes.
func (d *MemoryDevice) BlockSize() int { return d.blockSize }

// NumBlocks returns the device capacity in blocks (0 = unbounded).
func (d *MemoryDevice) NumBlocks() uint64 { return d.numBlocks }

// ReadBlock fills p with the block's contents, zeros if never written.
func (d *MemoryDevice) ReadBlock(ctx context.Context, blockno uint64, p []byte) error {
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
	if d.numBlocks > 0 && blockno >= d.numBlocks {
		return ErrBlockOutOfRange
	}

	if data, ok := d.blocks[blockno]; ok {
		copy(p, data)
		return nil
	}
	clear(p)
	return nil
}

// WriteBlock stores a copy of p as the block's contents.
func (d *MemoryDevice) WriteBlock(ctx context.Context, blockno uint64, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLen(p, d.blockSize); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.numBlocks > 0 && blockno >= d.numBlocks {
		return ErrBlockOutOfRange
	}

	data, ok := d.blocks[blockno]
	if !ok {
		data = make([]byte, d.blockSize)
		d.blocks[blockno] = data
		d.written.Add(blockno)
	}
	copy(data, p)
	return nil
}

// WrittenBlocks returns a copy of the set of blocks written so far.
func (d *MemoryDevice) WrittenBlocks() *roaring64.Bitmap {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.written.Clone()
}

// Close marks the device closed. Subsequent transfers fail with ErrClosed.
func (d *MemoryDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}

package blockdev

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBlockOutOfRange is returned when a block number lies beyond the
	// device's capacity.
	ErrBlockOutOfRange = errors.New("block out of range")

	// ErrReadOnly is returned by writes to a read-only device.
	ErrReadOnly = errors.New("device is read-only")

	// ErrClosed is returned when the device has been closed.
	ErrClosed = errors.New("device closed")
)

// Device is a synchronous block store: it reads or writes exactly one
// fixed-size block per call. Transfers may block the calling goroutine;
// implementations honor ctx cancellation where the underlying medium allows.
type Device interface {
	// BlockSize returns the fixed transfer size in bytes.
	BlockSize() int

	// ReadBlock fills p with the contents of the given block.
	// len(p) must equal BlockSize.
	ReadBlock(ctx context.Context, blockno uint64, p []byte) error

	// WriteBlock persists p as the contents of the given block.
	// len(p) must equal BlockSize.
	WriteBlock(ctx context.Context, blockno uint64, p []byte) error

	// Close releases any resources held by the device.
	Close() error
}

// checkLen validates the caller's payload length against the block size.
func checkLen(p []byte, blockSize int) error {
	if len(p) != blockSize {
		return fmt.Errorf("payload length %d, block size %d", len(p), blockSize)
	}
	return nil
}

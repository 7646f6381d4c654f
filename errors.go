package bcache

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotAttached is returned when an operation names a device id
	// that has not been registered with Attach.
	ErrDeviceNotAttached = errors.New("device not attached")

	// ErrDeviceAlreadyAttached is returned by Attach for a duplicate device id.
	ErrDeviceAlreadyAttached = errors.New("device already attached")

	// ErrClosed is returned when the cache has been closed.
	ErrClosed = errors.New("cache closed")
)

// ErrBlockSizeMismatch indicates a device whose block size differs from the
// cache's configured block size.
type ErrBlockSizeMismatch struct {
	Cache  int
	Device int
}

func (e *ErrBlockSizeMismatch) Error() string {
	return fmt.Sprintf("block size mismatch: cache %d, device %d", e.Cache, e.Device)
}

// TransferError wraps a failed device transfer with the identity of the block
// involved. A failed read leaves the slot invalid and eviction-eligible; it is
// not poisoned, so a later Get retries the transfer.
//
// The original underlying error can be accessed via errors.Unwrap.
type TransferError struct {
	DeviceID uint32
	BlockNo  uint64
	Write    bool
	cause    error
}

func (e *TransferError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	return fmt.Sprintf("block %s failed: dev %d block %d: %v", op, e.DeviceID, e.BlockNo, e.cause)
}

func (e *TransferError) Unwrap() error { return e.cause }

package blockdev

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrInjected is the default error injected by a FaultyDevice.
var ErrInjected = errors.New("injected fault")

// FaultyDevice wraps a Device with fault injection and transfer counting
// for tests. A zero fault configuration counts transfers without failing.
type FaultyDevice struct {
	inner Device

	reads  atomic.Int64
	writes atomic.Int64

	// FailReadAfter fails reads once this many have succeeded. <0 disables.
	failReadAfter atomic.Int64
	// FailWriteAfter fails writes once this many have succeeded. <0 disables.
	failWriteAfter atomic.Int64

	err error
}

// NewFaultyDevice wraps d. injected is the error returned by failing
// transfers; nil means ErrInjected.
func NewFaultyDevice(d Device, injected error) *FaultyDevice {
	if injected == nil {
		injected = ErrInjected
	}
	f := &FaultyDevice{inner: d, err: injected}
	f.failReadAfter.Store(-1)
	f.failWriteAfter.Store(-1)
	return f
}

// FailReadsAfter makes reads fail once n have succeeded. n < 0 disables.
func (d *FaultyDevice) FailReadsAfter(n int64) { d.failReadAfter.Store(n) }

// FailWritesAfter makes writes fail once n have succeeded. n < 0 disables.
func (d *FaultyDevice) FailWritesAfter(n int64) { d.failWriteAfter.Store(n) }

// Reads returns the number of successful reads.
func (d *FaultyDevice) Reads() int64 { return d.reads.Load() }

// Writes returns the number of successful writes.
func (d *FaultyDevice) Writes() int64 { return d.writes.Load() }

// BlockSize returns the inner device's block size.
func (d *FaultyDevice) BlockSize() int { return d.inner.BlockSize() }

// ReadBlock reads through to the inner device unless a fault fires.
func (d *FaultyDevice) ReadBlock(ctx context.Context, blockno uint64, p []byte) error {
	if limit := d.failReadAfter.Load(); limit >= 0 && d.reads.Load() >= limit {
		return d.err
	}
	if err := d.inner.ReadBlock(ctx, blockno, p); err != nil {
		return err
	}
	d.reads.Add(1)
	return nil
}

// WriteBlock writes through to the inner device unless a fault fires.
func (d *FaultyDevice) WriteBlock(ctx context.Context, blockno uint64, p []byte) error {
	if limit := d.failWriteAfter.Load(); limit >= 0 && d.writes.Load() >= limit {
		return d.err
	}
	if err := d.inner.WriteBlock(ctx, blockno, p); err != nil {
		return err
	}
	d.writes.Add(1)
	return nil
}

// Close closes the inner device.
func (d *FaultyDevice) Close() error { return d.inner.Close() }

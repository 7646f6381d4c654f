package blockdev

import (
	"context"

	"github.com/hupe1980/bcache/resource"
)

// ThrottledDevice wraps a Device with per-device transfer limits: a bound
// on in-flight transfers and a bytes-per-second throughput budget, both
// enforced by a resource.Controller. The same controller may be shared
// between several devices to give them a combined budget.
type ThrottledDevice struct {
	inner Device
	rc    *resource.Controller
}

// Throttle wraps d with the given controller.
func Throttle(d Device, rc *resource.Controller) *ThrottledDevice {
	return &ThrottledDevice{inner: d, rc: rc}
}

// BlockSize returns the inner device's block size.
func (d *ThrottledDevice) BlockSize() int { return d.inner.BlockSize() }

// ReadBlock reads through to the inner device once the controller admits
// the transfer.
func (d *ThrottledDevice) ReadBlock(ctx context.Context, blockno uint64, p []byte) error {
	if err := d.rc.AcquireTransfer(ctx); err != nil {
		return err
	}
	defer d.rc.ReleaseTransfer()

	if err := d.rc.AcquireIO(ctx, len(p)); err != nil {
		return err
	}
	return d.inner.ReadBlock(ctx, blockno, p)
}

// WriteBlock writes through to the inner device once the controller admits
// the transfer.
func (d *ThrottledDevice) WriteBlock(ctx context.Context, blockno uint64, p []byte) error {
	if err := d.rc.AcquireTransfer(ctx); err != nil {
		return err
	}
	defer d.rc.ReleaseTransfer()

	if err := d.rc.AcquireIO(ctx, len(p)); err != nil {
		return err
	}
	return d.inner.WriteBlock(ctx, blockno, p)
}

// Close closes the inner device.
func (d *ThrottledDevice) Close() error { return d.inner.Close() }

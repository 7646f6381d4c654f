package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds transfer resource limits.
type Config struct {
	// MaxConcurrentTransfers is the maximum number of device transfers in
	// flight at once. If 0, defaults to 1.
	MaxConcurrentTransfers int64

	// IOLimitBytesPerSec is the maximum transfer throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages transfer resources (concurrency, throughput). A single
// controller may be shared between a cache and several devices.
type Controller struct {
	cfg Config

	transferSem *semaphore.Weighted
	inFlight    atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentTransfers <= 0 {
		cfg.MaxConcurrentTransfers = 1
	}

	c := &Controller{
		cfg:         cfg,
		transferSem: semaphore.NewWeighted(cfg.MaxConcurrentTransfers),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireTransfer reserves an in-flight transfer slot.
// Blocks if all slots are busy until ctx is canceled.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.transferSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inFlight.Add(1)
	return nil
}

// TryAcquireTransfer reserves a transfer slot without blocking.
func (c *Controller) TryAcquireTransfer() bool {
	if c == nil {
		return true
	}
	if !c.transferSem.TryAcquire(1) {
		return false
	}
	c.inFlight.Add(1)
	return true
}

// ReleaseTransfer releases an in-flight transfer slot.
func (c *Controller) ReleaseTransfer() {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	c.transferSem.Release(1)
}

// InFlight returns the number of transfers currently in flight.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// AcquireIO waits until the throughput limit allows the specified number of
// bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

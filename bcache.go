package bcache

import (
	"context"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/bcache/blockdev"
)

// Cache is a fixed-capacity, sharded buffer cache for disk blocks. It gives
// every caller a single in-memory copy per (device, block) pair, serializes
// conflicting misses per shard, and recycles the globally least recently
// released unclaimed slot when the pool is full.
//
// Interface:
//   - To get a locked buffer for a block, call Get.
//   - After changing buffer data, call Write to push it to the device.
//   - When done with the buffer, call Release. Do not use it afterwards.
//   - To keep a slot resident beyond your own lock, call Pin/Unpin.
//
// Only one goroutine at a time can use a buffer, so do not keep buffers
// locked longer than necessary.
type Cache struct {
	opts options

	seed   maphash.Seed
	shards []*shard
	pool   []*Buffer

	// evictMu serializes victim selection and removal process-wide. Held
	// only across the scan and the removal, never across a transfer.
	evictMu sync.Mutex

	// clock is the release-order counter used for recency stamps.
	clock atomic.Uint64

	devmu   sync.RWMutex
	devices map[uint32]blockdev.Device
	closed  bool

	hits            atomic.Int64
	misses          atomic.Int64
	evictions       atomic.Int64
	evictionRetries atomic.Int64
}

// New creates a cache with an empty pool. Slots are allocated once, seeded
// with placeholder identities, and distributed across the shards; they are
// recycled in place for the lifetime of the cache.
func New(opts ...Option) *Cache {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	c := &Cache{
		opts:    o,
		seed:    maphash.MakeSeed(),
		shards:  make([]*shard, o.numShards),
		pool:    make([]*Buffer, o.numSlots),
		devices: make(map[uint32]blockdev.Device),
	}
	for i := range c.shards {
		c.shards[i] = &shard{buffers: make(map[blockKey]*Buffer)}
	}
	for i := range c.pool {
		b := &Buffer{
			idx:     i,
			blockno: uint64(i),
			data:    make([]byte, o.blockSize),
		}
		c.pool[i] = b
		sh := c.shardFor(b.dev, b.blockno)
		sh.buffers[blockKey{dev: b.dev, blockno: b.blockno}] = b
	}
	return c
}

// BlockSize returns the configured slot payload size in bytes.
func (c *Cache) BlockSize() int { return c.opts.blockSize }

// NumSlots returns the fixed pool capacity in slots.
func (c *Cache) NumSlots() int { return len(c.pool) }

// Attach registers a device under the given id. The device's block size
// must match the cache's.
func (c *Cache) Attach(dev uint32, d blockdev.Device) error {
	if d.BlockSize() != c.opts.blockSize {
		err := &ErrBlockSizeMismatch{Cache: c.opts.blockSize, Device: d.BlockSize()}
		c.opts.logger.LogAttach(context.Background(), dev, false, err)
		return err
	}

	c.devmu.Lock()
	defer c.devmu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, ok := c.devices[dev]; ok {
		return ErrDeviceAlreadyAttached
	}
	c.devices[dev] = d

	c.opts.logger.LogAttach(context.Background(), dev, false, nil)
	return nil
}

// Detach removes a device from the registry. Buffers cached for the device
// stay in the pool until they age out; the device itself is not closed, the
// caller owns it.
func (c *Cache) Detach(dev uint32) error {
	c.devmu.Lock()
	defer c.devmu.Unlock()

	if _, ok := c.devices[dev]; !ok {
		return ErrDeviceNotAttached
	}
	delete(c.devices, dev)

	c.opts.logger.LogAttach(context.Background(), dev, true, nil)
	return nil
}

// Close marks the cache closed and empties the device registry. Attached
// devices are not closed; the caller owns them.
func (c *Cache) Close() error {
	c.devmu.Lock()
	defer c.devmu.Unlock()

	c.closed = true
	clear(c.devices)
	return nil
}

func (c *Cache) device(dev uint32) (blockdev.Device, error) {
	c.devmu.RLock()
	defer c.devmu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	d, ok := c.devices[dev]
	if !ok {
		return nil, ErrDeviceNotAttached
	}
	return d, nil
}

// Get returns a locked buffer with the contents of the indicated block,
// reading it from the device on a cold slot. The buffer's content lock is
// held on return; the caller must pair every successful Get with exactly
// one Release.
//
// A failed read gives the claim back: the slot stays invalid and
// eviction-eligible, and the error (wrapped in *TransferError) is returned.
func (c *Cache) Get(ctx context.Context, dev uint32, blockno uint64) (*Buffer, error) {
	start := time.Now()

	d, err := c.device(dev)
	if err != nil {
		c.opts.metricsCollector.RecordGet(false, time.Since(start), err)
		return nil, err
	}

	b, hit := c.claim(dev, blockno)
	if !b.valid {
		if terr := c.transfer(ctx, d, b, false); terr != nil {
			err := &TransferError{DeviceID: dev, BlockNo: blockno, cause: terr}
			c.opts.logger.LogTransfer(ctx, dev, blockno, false, terr)

			b.unlock()
			c.put(b)

			c.opts.metricsCollector.RecordGet(hit, time.Since(start), err)
			return nil, err
		}
		b.valid = true
		c.opts.logger.LogTransfer(ctx, dev, blockno, false, nil)
	}

	c.opts.metricsCollector.RecordGet(hit, time.Since(start), nil)
	return b, nil
}

// Write pushes the buffer's payload to the device synchronously. The content
// lock must be held; calling Write on a released buffer is a caller bug and
// panics. Refcount and lock are left untouched.
func (c *Cache) Write(ctx context.Context, b *Buffer) error {
	if !b.held {
		panic("bcache: Write on unlocked buffer")
	}

	start := time.Now()

	d, err := c.device(b.dev)
	if err != nil {
		c.opts.metricsCollector.RecordWrite(time.Since(start), err)
		return err
	}

	if terr := c.transfer(ctx, d, b, true); terr != nil {
		err := &TransferError{DeviceID: b.dev, BlockNo: b.blockno, Write: true, cause: terr}
		c.opts.logger.LogTransfer(ctx, b.dev, b.blockno, true, terr)
		c.opts.metricsCollector.RecordWrite(time.Since(start), err)
		return err
	}

	c.opts.logger.LogTransfer(ctx, b.dev, b.blockno, true, nil)
	c.opts.metricsCollector.RecordWrite(time.Since(start), nil)
	return nil
}

// Release unlocks the buffer and drops the caller's claim. When the
// refcount reaches zero the slot is stamped with the current release clock
// and becomes an eviction candidate. Calling Release without holding the
// content lock is a caller bug and panics.
func (c *Cache) Release(b *Buffer) {
	if !b.held {
		panic("bcache: Release on unlocked buffer")
	}
	b.unlock()
	c.put(b)
}

// put drops one reference, stamping recency on the last one.
func (c *Cache) put(b *Buffer) {
	sh := c.shardFor(b.dev, b.blockno)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if b.refcnt <= 0 {
		panic("bcache: release without matching claim")
	}
	b.refcnt--
	if b.refcnt == 0 {
		b.recency = c.clock.Add(1)
	}
}

// Pin keeps the slot resident independent of content-lock ownership, e.g.
// across a multi-step operation after the holder released its own lock.
func (c *Cache) Pin(b *Buffer) {
	sh := c.shardFor(b.dev, b.blockno)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	b.refcnt++
}

// Unpin drops a pin. The slot becomes eviction-eligible once the refcount
// returns to zero. Unpinning past zero is a caller bug and panics.
func (c *Cache) Unpin(b *Buffer) {
	sh := c.shardFor(b.dev, b.blockno)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if b.refcnt <= 0 {
		panic("bcache: Unpin without matching Pin")
	}
	b.refcnt--
	if b.refcnt == 0 {
		b.recency = c.clock.Add(1)
	}
}

// Prefetch warms the cache by materializing the given blocks in parallel
// and releasing them immediately. Parallelism is bounded by the configured
// prefetch limit so a large prefetch cannot claim the whole pool.
func (c *Cache) Prefetch(ctx context.Context, dev uint32, blocks ...uint64) error {
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.prefetchLimit)

	for _, blockno := range blocks {
		blockno := blockno
		g.Go(func() error {
			b, err := c.Get(ctx, dev, blockno)
			if err != nil {
				return err
			}
			c.Release(b)
			return nil
		})
	}

	err := g.Wait()
	c.opts.metricsCollector.RecordPrefetch(len(blocks), time.Since(start), err)
	return err
}

// transfer runs one synchronous device transfer, honoring the global
// resource controller when one is configured. No cache-internal lock is
// held here; only the buffer's content lock protects the payload.
func (c *Cache) transfer(ctx context.Context, d blockdev.Device, b *Buffer, write bool) error {
	if rc := c.opts.rc; rc != nil {
		if err := rc.AcquireTransfer(ctx); err != nil {
			return err
		}
		defer rc.ReleaseTransfer()

		if err := rc.AcquireIO(ctx, len(b.data)); err != nil {
			return err
		}
	}

	if write {
		return d.WriteBlock(ctx, b.blockno, b.data)
	}
	return d.ReadBlock(ctx, b.blockno, b.data)
}

// Stats holds cache-wide counters.
type Stats struct {
	Hits            int64
	Misses          int64
	Evictions       int64
	EvictionRetries int64
}

// Stats returns cache-wide hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		EvictionRetries: c.evictionRetries.Load(),
	}
}

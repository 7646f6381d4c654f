// Package bcache provides a fixed-capacity, sharded buffer cache for disk
// blocks.
//
// The cache sits between a block device and higher-level consumers and
// guarantees a single in-memory copy per (device, block) pair. Lookups are
// O(1) lock traffic on a hit; misses are serialized per shard so concurrent
// misses on the same key issue exactly one device read, while misses in
// different shards proceed fully in parallel. When the pool is full, the
// globally least recently released unclaimed slot is recycled.
//
// # Quick Start
//
//	ctx := context.Background()
//	cache := bcache.New(bcache.WithNumSlots(256))
//	defer cache.Close()
//
//	dev := blockdev.NewMemoryDevice(cache.BlockSize(), 1<<20)
//	_ = cache.Attach(1, dev)
//
//	b, err := cache.Get(ctx, 1, 42)
//	if err != nil { ... }
//	copy(b.Data(), payload)
//	_ = cache.Write(ctx, b)
//	cache.Release(b)
//
// # Locking Model
//
// Get returns the buffer with its content lock held; only one goroutine at a
// time can use a buffer, and Release hands it to the next waiter with no
// fairness guarantee. Pin/Unpin keep a slot resident without holding the
// content lock. Writes issued through Write are synchronous: the call does
// not return before the device transfer completes.
//
// # Devices
//
// The blockdev package supplies Device implementations: sparse in-memory
// devices, file-backed devices (optionally memory-mapped), S3 and MinIO
// backed devices, plus throttling and fault-injection wrappers and
// compressed image snapshots.
package bcache

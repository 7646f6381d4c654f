package bcache

import (
	"encoding/binary"
	"hash/maphash"
	"sync"
)

// blockKey identifies a cached block. Both fields take part in shard
// selection so multi-device workloads spread evenly.
type blockKey struct {
	dev     uint32
	blockno uint64
}

// shard is an independently locked partition of the slot population.
// Every slot in the pool belongs to exactly one shard's lookup table at any
// quiescent point, including unclaimed slots under their stale identity.
type shard struct {
	// admission serializes miss resolution for keys hashing to this shard.
	// It is held across victim selection, removal and re-insertion so two
	// callers can never both conclude "not cached" for the same key and
	// fetch duplicate copies. Never held across a device transfer.
	admission sync.Mutex

	// mu guards buffers as well as the refcnt/recency fields of every
	// slot currently owned by this shard. Short-held only.
	mu      sync.Mutex
	buffers map[blockKey]*Buffer
}

// shardFor hashes the full (device, block) key using a fast seeded hash.
func (c *Cache) shardFor(dev uint32, blockno uint64) *shard {
	var h maphash.Hash
	h.SetSeed(c.seed)

	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], dev)
	binary.LittleEndian.PutUint64(buf[4:12], blockno)
	_, _ = h.Write(buf[:])

	return c.shards[h.Sum64()%uint64(len(c.shards))]
}

// claim looks up or reserves a slot for the given block and returns it with
// the content lock held and refcnt >= 1. hit reports whether the block was
// already present.
//
// Lock order: shard admission lock, shard lookup lock, then (miss only) the
// eviction coordinator's locks. Both shard locks are dropped before the
// content lock is acquired, so a lookup never blocks behind a slow holder.
func (c *Cache) claim(dev uint32, blockno uint64) (b *Buffer, hit bool) {
	key := blockKey{dev: dev, blockno: blockno}
	sh := c.shardFor(dev, blockno)

	sh.admission.Lock()
	sh.mu.Lock()
	if b, ok := sh.buffers[key]; ok {
		b.refcnt++
		sh.mu.Unlock()
		sh.admission.Unlock()

		c.hits.Add(1)
		b.lock()
		return b, true
	}
	sh.mu.Unlock()

	// Not cached. Recycle the least recently used unclaimed slot.
	b = c.recycle(sh, key)
	sh.admission.Unlock()

	c.misses.Add(1)
	b.lock()
	return b, false
}

// ShardStat describes one shard's slot population.
type ShardStat struct {
	ShardID int
	Buffers int
	Claimed int
}

// ShardStats returns per-shard statistics for debugging.
func (c *Cache) ShardStats() []ShardStat {
	stats := make([]ShardStat, len(c.shards))
	for i, sh := range c.shards {
		sh.mu.Lock()
		stats[i] = ShardStat{ShardID: i, Buffers: len(sh.buffers)}
		for _, b := range sh.buffers {
			if b.refcnt > 0 {
				stats[i].Claimed++
			}
		}
		sh.mu.Unlock()
	}
	return stats
}

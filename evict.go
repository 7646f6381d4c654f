package bcache

import "context"

// EvictionStrategy selects how a victim slot is located on a miss.
type EvictionStrategy uint8

const (
	// EvictGlobalLRU scans every shard and recycles the unclaimed slot
	// with the smallest recency stamp across the whole pool.
	EvictGlobalLRU EvictionStrategy = iota

	// EvictShardLocal prefers an unclaimed slot already owned by the
	// destination shard, avoiding the cross-shard scan when possible, and
	// falls back to the global scan when the shard has none. Trades exact
	// global LRU order for eviction locality.
	EvictShardLocal
)

// maxRecycleAttempts bounds the optimistic retry when a scanned victim is
// claimed concurrently before it can be validated. Losing the race is a
// normal, expected event at modest contention, not an error.
const maxRecycleAttempts = 64

// recycle selects an unclaimed slot, removes it from its current shard and
// re-inserts it into dst under the new key with refcnt 1 and valid false.
// The caller must hold dst's admission lock. The subsequent device transfer
// runs with no cache-internal lock held.
//
// An exhausted pool is a capacity-planning violation, not a recoverable
// condition: blocking here could deadlock against the very callers expected
// to release buffers, so recycle panics instead.
func (c *Cache) recycle(dst *shard, key blockKey) *Buffer {
	c.evictMu.Lock()

	for attempt := 0; attempt < maxRecycleAttempts; attempt++ {
		victim, vshard, stamp := c.selectVictim(dst)
		if victim == nil {
			c.evictMu.Unlock()
			panic("bcache: out of buffer slots")
		}

		// Revalidate under the victim's shard lock; the scan snapshot may
		// be stale. A concurrent acquirer shows up as a nonzero refcnt or
		// a moved recency stamp.
		vshard.mu.Lock()
		if victim.refcnt != 0 || victim.recency != stamp {
			vshard.mu.Unlock()
			continue
		}
		delete(vshard.buffers, blockKey{dev: victim.dev, blockno: victim.blockno})
		vshard.mu.Unlock()

		// Selection and removal are done; identity reassignment and
		// insertion need no cross-shard coordination because the slot is
		// unreachable until it reappears in dst.
		c.evictMu.Unlock()

		oldDev, oldBlock := victim.dev, victim.blockno
		victim.dev = key.dev
		victim.blockno = key.blockno
		victim.valid = false
		victim.refcnt = 1

		dst.mu.Lock()
		dst.buffers[key] = victim
		dst.mu.Unlock()

		c.evictions.Add(1)
		c.evictionRetries.Add(int64(attempt))
		c.opts.metricsCollector.RecordEviction(attempt)
		c.opts.logger.LogEviction(context.Background(), oldDev, oldBlock, key.dev, key.blockno, attempt)
		return victim
	}

	c.evictMu.Unlock()
	panic("bcache: recycle retry budget exhausted")
}

// selectVictim scans for the unclaimed slot with the smallest recency
// stamp. Shard lookup locks are taken and released one at a time, so the
// result is a consistent-but-possibly-stale snapshot that recycle must
// revalidate. Ties resolve to the lowest pool index.
func (c *Cache) selectVictim(dst *shard) (*Buffer, *shard, uint64) {
	if c.opts.strategy == EvictShardLocal {
		if b, stamp := scanShard(dst); b != nil {
			return b, dst, stamp
		}
	}

	var (
		best      *Buffer
		bestShard *shard
		bestStamp uint64
	)
	for _, sh := range c.shards {
		b, stamp := scanShard(sh)
		if b == nil {
			continue
		}
		if best == nil || stamp < bestStamp || (stamp == bestStamp && b.idx < best.idx) {
			best, bestShard, bestStamp = b, sh, stamp
		}
	}
	return best, bestShard, bestStamp
}

// scanShard returns the shard's best eviction candidate, or nil.
func scanShard(sh *shard) (*Buffer, uint64) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var (
		best  *Buffer
		stamp uint64
	)
	for _, b := range sh.buffers {
		if b.refcnt != 0 {
			continue
		}
		if best == nil || b.recency < stamp || (b.recency == stamp && b.idx < best.idx) {
			best, stamp = b, b.recency
		}
	}
	return best, stamp
}

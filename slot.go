package bcache

import "sync"

// Buffer is one slot of the pool: the in-memory holder for a single disk
// block's payload plus bookkeeping. Slots are allocated once in New and
// recycled for the lifetime of the cache; identity and payload are
// reassigned on eviction, never freed.
type Buffer struct {
	// idx is the slot's fixed position in the pool, used as the
	// deterministic tie-break when recency stamps are equal.
	idx int

	// dev and blockno identify the cached block. They change only while
	// the slot is claimed by the eviction coordinator.
	dev     uint32
	blockno uint64

	// valid reports whether data reflects the device contents.
	valid bool

	// refcnt and recency are guarded by the owning shard's lookup lock.
	// recency is stamped from the cache-wide release clock whenever
	// refcnt returns to zero.
	refcnt  int
	recency uint64

	// mu is the content lock, held from Get until Release. It is
	// independent of every shard lock and may block the caller; there is
	// no fairness guarantee among waiters. held mirrors ownership so that
	// Write and Release can detect misuse.
	mu   sync.Mutex
	held bool

	data []byte
}

// DeviceID returns the device the buffer belongs to.
func (b *Buffer) DeviceID() uint32 { return b.dev }

// BlockNo returns the block number the buffer holds.
func (b *Buffer) BlockNo() uint64 { return b.blockno }

// Data returns the block payload. The caller must hold the content lock,
// i.e. the buffer must have been obtained from Get and not yet released.
func (b *Buffer) Data() []byte { return b.data }

func (b *Buffer) lock() {
	b.mu.Lock()
	b.held = true
}

func (b *Buffer) unlock() {
	b.held = false
	b.mu.Unlock()
}

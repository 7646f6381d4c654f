package bcache

import (
	"github.com/hupe1980/bcache/resource"
)

const (
	// DefaultBlockSize is the payload size of one buffer slot in bytes.
	DefaultBlockSize = 4096

	// DefaultNumSlots is the total number of buffer slots in the pool.
	DefaultNumSlots = 64

	// DefaultNumShards is the number of independently locked shards.
	// Prime, so that regular block strides spread evenly.
	DefaultNumShards = 19

	// DefaultPrefetchLimit bounds the number of concurrent Prefetch reads.
	DefaultPrefetchLimit = 4
)

type options struct {
	blockSize        int
	numSlots         int
	numShards        int
	strategy         EvictionStrategy
	prefetchLimit    int
	logger           *Logger
	metricsCollector MetricsCollector
	rc               *resource.Controller
}

func defaultOptions() options {
	return options{
		blockSize:        DefaultBlockSize,
		numSlots:         DefaultNumSlots,
		numShards:        DefaultNumShards,
		strategy:         EvictGlobalLRU,
		prefetchLimit:    DefaultPrefetchLimit,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}

// Option configures cache constructor behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. strategy-specific constructor variants).
type Option func(*options)

// WithBlockSize configures the slot payload size in bytes.
// Every attached device must report the same block size.
func WithBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.blockSize = n
		}
	}
}

// WithNumSlots configures the total pool capacity in slots.
// The pool is allocated once and never resized; when every slot is claimed,
// a further miss is a fatal capacity violation.
func WithNumSlots(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.numSlots = n
		}
	}
}

// WithNumShards configures the number of lookup shards.
//
// Each shard has its own lock, so more shards means less contention on the
// hit path, at the cost of a longer eviction scan. Prefer a prime count.
func WithNumShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.numShards = n
		}
	}
}

// WithEvictionStrategy configures how an eviction victim is located.
// See EvictGlobalLRU and EvictShardLocal.
func WithEvictionStrategy(s EvictionStrategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithPrefetchLimit bounds the number of parallel reads issued by Prefetch.
// The limit must stay below the pool capacity or a large prefetch could
// claim every slot at once.
func WithPrefetchLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.prefetchLimit = n
		}
	}
}

// WithLogger configures structured logging. Pass nil to disable.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController configures a global resource controller applied to
// every device transfer issued through the cache (throughput budget and
// in-flight transfer limit). Per-device limits can instead be set by
// wrapping the device with blockdev.Throttle.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

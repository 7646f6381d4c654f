package bcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordGet is called after each Get operation.
	// hit reports whether the block was already cached, duration is the total
	// time taken including any device read, err is nil if successful.
	RecordGet(hit bool, duration time.Duration, err error)

	// RecordWrite is called after each Write operation.
	RecordWrite(duration time.Duration, err error)

	// RecordEviction is called each time a slot is recycled.
	// retries is the number of discarded victim scans before one validated.
	RecordEviction(retries int)

	// RecordPrefetch is called after each Prefetch operation.
	// count is the number of blocks requested.
	RecordPrefetch(count int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(bool, time.Duration, error)     {}
func (NoopMetricsCollector) RecordWrite(time.Duration, error)         {}
func (NoopMetricsCollector) RecordEviction(int)                       {}
func (NoopMetricsCollector) RecordPrefetch(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount        atomic.Int64
	GetHits         atomic.Int64
	GetErrors       atomic.Int64
	GetTotalNanos   atomic.Int64
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteTotalNanos atomic.Int64
	EvictionCount   atomic.Int64
	EvictionRetries atomic.Int64
	PrefetchCount   atomic.Int64
	PrefetchBlocks  atomic.Int64
	PrefetchErrors  atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(hit bool, duration time.Duration, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.GetHits.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(retries int) {
	b.EvictionCount.Add(1)
	b.EvictionRetries.Add(int64(retries))
}

// RecordPrefetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrefetch(count int, duration time.Duration, err error) {
	b.PrefetchCount.Add(1)
	b.PrefetchBlocks.Add(int64(count))
	if err != nil {
		b.PrefetchErrors.Add(1)
	}
}

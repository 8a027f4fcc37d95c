package metrics

import (
	"math"
	"math/bits"
	"sync/atomic"
)

const histogramBuckets = 32

// LatencyTracker maintains count, sum, min and max of a stream of
// nanosecond samples plus a logarithmic histogram, with lock-free
// updates suitable for the hot path.
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64
	min   atomic.Uint64
	max   atomic.Uint64

	buckets [histogramBuckets]atomic.Uint64
}

// NewLatencyTracker returns an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	t := &LatencyTracker{}
	t.min.Store(math.MaxUint64)

	return t
}

// Record folds one nanosecond sample into the tracker.
func (t *LatencyTracker) Record(ns uint64) {
	t.count.Add(1)
	t.sum.Add(ns)

	casMin(&t.min, ns)
	casMax(&t.max, ns)

	t.buckets[bucketFor(ns)].Add(1)
}

func casMin(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if v >= cur {
			return
		}

		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func casMax(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if v <= cur {
			return
		}

		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

// bucketFor maps a nanosecond sample to one of histogramBuckets buckets,
// keyed by floor(log2(ns))/2 so each bucket spans roughly a factor of 4.
func bucketFor(ns uint64) int {
	if ns == 0 {
		return 0
	}

	bit := 63 - bits.LeadingZeros64(ns)
	idx := bit / 2

	if idx >= histogramBuckets {
		return histogramBuckets - 1
	}

	return idx
}

// LatencyStats is a derived, point-in-time view of a LatencyTracker.
type LatencyStats struct {
	Count      uint64
	Sum        uint64
	Min        uint64
	Max        uint64
	AverageNs  float64
	Histogram  [histogramBuckets]uint64
}

// Stats derives summary statistics from the current tracker state.
func (t *LatencyTracker) Stats() LatencyStats {
	count := t.count.Load()
	sum := t.sum.Load()

	stats := LatencyStats{
		Count: count,
		Sum:   sum,
		Min:   t.min.Load(),
		Max:   t.max.Load(),
	}

	if count > 0 {
		stats.AverageNs = float64(sum) / float64(count)
	}

	if stats.Min == math.MaxUint64 {
		stats.Min = 0
	}

	for i := range t.buckets {
		stats.Histogram[i] = t.buckets[i].Load()
	}

	return stats
}

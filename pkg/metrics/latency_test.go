package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatencyTrackerBasicStats(t *testing.T) {
	lt := NewLatencyTracker()

	lt.Record(100)
	lt.Record(200)
	lt.Record(50)

	stats := lt.Stats()
	assert.Equal(t, uint64(3), stats.Count)
	assert.Equal(t, uint64(350), stats.Sum)
	assert.Equal(t, uint64(50), stats.Min)
	assert.Equal(t, uint64(200), stats.Max)
	assert.InDelta(t, 116.67, stats.AverageNs, 0.01)
}

func TestLatencyTrackerEmptyStats(t *testing.T) {
	lt := NewLatencyTracker()

	stats := lt.Stats()
	assert.Equal(t, uint64(0), stats.Count)
	assert.Equal(t, uint64(0), stats.Min)
	assert.Equal(t, uint64(0), stats.Max)
}

func TestLatencyTrackerHistogramBucketsNonEmpty(t *testing.T) {
	lt := NewLatencyTracker()

	for i := 0; i < 10; i++ {
		lt.Record(120)
	}

	stats := lt.Stats()

	var total uint64
	for _, b := range stats.Histogram {
		total += b
	}

	assert.Equal(t, uint64(10), total)
}

func TestLatencyTrackerConcurrentRecord(t *testing.T) {
	lt := NewLatencyTracker()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lt.Record(uint64(i + 1))
		}(i)
	}
	wg.Wait()

	stats := lt.Stats()
	assert.Equal(t, uint64(200), stats.Count)
	assert.Equal(t, uint64(1), stats.Min)
	assert.Equal(t, uint64(200), stats.Max)
}

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThroughputTrackerRecordsCurrentSecond(t *testing.T) {
	tt := NewThroughputTracker()

	tt.Record(100, 1000)
	tt.Record(50, 1000)

	stats := tt.Stats(1, 1000)
	assert.Equal(t, uint64(2), stats.Packets)
	assert.Equal(t, uint64(150), stats.Bytes)
}

func TestThroughputTrackerWindowExcludesOldSlots(t *testing.T) {
	tt := NewThroughputTracker()

	tt.Record(100, 1000)
	tt.Record(100, 1005)

	stats := tt.Stats(2, 1005)
	assert.Equal(t, uint64(1), stats.Packets)
}

func TestThroughputTrackerSumsWindow(t *testing.T) {
	tt := NewThroughputTracker()

	for s := int64(1000); s < 1005; s++ {
		tt.Record(10, s)
	}

	stats := tt.Stats(5, 1004)
	assert.Equal(t, uint64(5), stats.Packets)
	assert.Equal(t, uint64(50), stats.Bytes)
}

func TestThroughputTrackerClampsWindowToCapacity(t *testing.T) {
	tt := NewThroughputTracker()
	tt.Record(1, 1000)

	stats := tt.Stats(throughputSlots+10, 1000)
	assert.GreaterOrEqual(t, stats.Packets, uint64(1))
}

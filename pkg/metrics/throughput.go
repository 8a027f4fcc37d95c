package metrics

import "sync/atomic"

const throughputSlots = 60

type throughputSlot struct {
	second  atomic.Int64
	packets atomic.Uint64
	bytes   atomic.Uint64
}

// ThroughputTracker keeps a ring of one-second slots of packet/byte
// counts, letting callers query the sum over any trailing window up to
// throughputSlots seconds.
type ThroughputTracker struct {
	slots [throughputSlots]throughputSlot
}

// NewThroughputTracker returns an empty tracker.
func NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{}
}

// Record folds one packet of size bytes into the slot for nowUnixSec.
func (t *ThroughputTracker) Record(bytes uint64, nowUnixSec int64) {
	slot := &t.slots[nowUnixSec%throughputSlots]

	if slot.second.Swap(nowUnixSec) != nowUnixSec {
		slot.packets.Store(0)
		slot.bytes.Store(0)
		slot.second.Store(nowUnixSec)
	}

	slot.packets.Add(1)
	slot.bytes.Add(bytes)
}

// ThroughputStats is the packet/byte sum over a queried window.
type ThroughputStats struct {
	Packets uint64
	Bytes   uint64
}

// Stats sums every slot whose timestamp falls within the trailing
// windowSec seconds of nowUnixSec.
func (t *ThroughputTracker) Stats(windowSec int, nowUnixSec int64) ThroughputStats {
	if windowSec > throughputSlots {
		windowSec = throughputSlots
	}

	var stats ThroughputStats

	for i := 0; i < windowSec; i++ {
		slot := &t.slots[(nowUnixSec-int64(i))%throughputSlots]
		if slot.second.Load() != nowUnixSec-int64(i) {
			continue
		}

		stats.Packets += slot.packets.Load()
		stats.Bytes += slot.bytes.Load()
	}

	return stats
}

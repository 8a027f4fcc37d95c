package telemetry

import "sync/atomic"

type logCell struct {
	sequence atomic.Uint64
	record   Record
}

// Ring is a bounded multi-producer/single-consumer queue of Records.
// Producers never block: TryPush reports false on a full ring instead of
// waiting. Capacity must be a power of two.
type Ring struct {
	mask  uint64
	cells []logCell

	enqueuePos atomic.Uint64
	dequeuePos atomic.Uint64
}

// NewRing builds a Ring with the given power-of-two capacity.
func NewRing(capacity uint32) *Ring {
	r := &Ring{
		mask:  uint64(capacity - 1),
		cells: make([]logCell, capacity),
	}

	for i := range r.cells {
		r.cells[i].sequence.Store(uint64(i))
	}

	return r
}

// TryPush publishes a record without blocking. Returns false if full.
func (r *Ring) TryPush(rec Record) bool {
	pos := r.enqueuePos.Load()

	for {
		c := &r.cells[pos&r.mask]
		seq := c.sequence.Load()

		diff := int64(seq) - int64(pos)

		switch {
		case diff == 0:
			if r.enqueuePos.CompareAndSwap(pos, pos+1) {
				c.record = rec
				c.sequence.Store(pos + 1)
				return true
			}

			pos = r.enqueuePos.Load()
		case diff < 0:
			return false
		default:
			pos = r.enqueuePos.Load()
		}
	}
}

// TryPop drains the oldest published record. The sole consumer goroutine
// calls this; it never races with another dequeuer, so it makes a single
// pass rather than a CAS retry loop.
func (r *Ring) TryPop() (Record, bool) {
	pos := r.dequeuePos.Load()
	c := &r.cells[pos&r.mask]
	seq := c.sequence.Load()

	if seq != pos+1 {
		return Record{}, false
	}

	rec := c.record
	c.sequence.Store(pos + r.mask + 1)
	r.dequeuePos.Store(pos + 1)

	return rec, true
}

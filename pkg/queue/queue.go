// Package queue implements a bounded, lock-free multi-producer/
// multi-consumer ring buffer (the Vyukov MPMC queue) of PacketJob values,
// plus the worker pool that drains it into the decision engine.
package queue

import (
	"sync/atomic"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

// PacketJob is one unit of ingestion work.
type PacketJob struct {
	Buffer  []byte
	Src     ids.Addr
	Dst     ids.Addr
	SrcPort uint16
	DstPort uint16
	Arrival int64 // UnixNano
}

type cell struct {
	sequence atomic.Uint64
	job      PacketJob
}

// Ring is a bounded MPMC ring buffer. Capacity must be a power of two.
type Ring struct {
	mask  uint64
	cells []cell

	enqueuePos atomic.Uint64
	dequeuePos atomic.Uint64
}

// NewRing builds a Ring with the given power-of-two capacity.
func NewRing(capacity uint32) *Ring {
	r := &Ring{
		mask:  uint64(capacity - 1),
		cells: make([]cell, capacity),
	}

	for i := range r.cells {
		r.cells[i].sequence.Store(uint64(i))
	}

	return r
}

// TryEnqueue attempts to publish job without blocking. Returns false if
// the ring is full.
func (r *Ring) TryEnqueue(job PacketJob) bool {
	pos := r.enqueuePos.Load()

	for {
		c := &r.cells[pos&r.mask]
		seq := c.sequence.Load()

		diff := int64(seq) - int64(pos)

		switch {
		case diff == 0:
			if r.enqueuePos.CompareAndSwap(pos, pos+1) {
				c.job = job
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

// TryDequeue attempts to pop the oldest published job. Returns false if
// the ring is empty.
func (r *Ring) TryDequeue() (PacketJob, bool) {
	pos := r.dequeuePos.Load()

	for {
		c := &r.cells[pos&r.mask]
		seq := c.sequence.Load()

		diff := int64(seq) - int64(pos+1)

		switch {
		case diff == 0:
			if r.dequeuePos.CompareAndSwap(pos, pos+1) {
				job := c.job
				c.sequence.Store(pos + r.mask + 1)

				return job, true
			}

			pos = r.dequeuePos.Load()
		case diff < 0:
			return PacketJob{}, false
		default:
			pos = r.dequeuePos.Load()
		}
	}
}

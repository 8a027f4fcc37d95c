// Package metrics holds the engine's hot-path counters, latency tracker
// and throughput tracker, plus an OpenTelemetry bridge that periodically
// snapshots them into exported instruments. Nothing here ever runs on
// the packet-processing path except the relaxed atomic increments
// themselves.
package metrics

import "sync/atomic"

// cacheLinePad keeps adjacent counters on separate cache lines so one
// goroutine's increments don't invalidate another's cache line under
// contention.
type cacheLinePad [56]byte // 64 bytes minus the 8-byte atomic.Uint64

type paddedCounter struct {
	v atomic.Uint64
	_ cacheLinePad
}

// Add increments the counter by delta.
func (c *paddedCounter) Add(delta uint64) { c.v.Add(delta) }

// Load reads the counter's current value.
func (c *paddedCounter) Load() uint64 { return c.v.Load() }

// Counters is the full set of cache-line padded, relaxed-ordering
// counters maintained by the decision engine.
type Counters struct {
	PacketsProcessed paddedCounter
	PacketsAllowed   paddedCounter
	PacketsDropped   paddedCounter
	BytesProcessed   paddedCounter
	ThreatsDetected  paddedCounter
	ThreatsMitigated paddedCounter
	TotalBlocks      paddedCounter
	ActiveBlocks     paddedCounter
	LogsWritten      paddedCounter
	LogsDropped      paddedCounter
	LogsStopped      paddedCounter
	QueueFullDrops   paddedCounter

	attackKinds [11]paddedCounter // indexed by ids.AttackKind
}

// IncrAttackKind bumps the per-kind counter for an attack classification.
func (c *Counters) IncrAttackKind(kind int) {
	if kind < 0 || kind >= len(c.attackKinds) {
		return
	}

	c.attackKinds[kind].Add(1)
}

// AttackKindCount reads the per-kind counter.
func (c *Counters) AttackKindCount(kind int) uint64 {
	if kind < 0 || kind >= len(c.attackKinds) {
		return 0
	}

	return c.attackKinds[kind].Load()
}

// Snapshot is a point-in-time, not-mutually-consistent read of every
// counter — callers must not assume, e.g., Allowed+Dropped == Processed.
type Snapshot struct {
	PacketsProcessed uint64
	PacketsAllowed   uint64
	PacketsDropped   uint64
	BytesProcessed   uint64
	ThreatsDetected  uint64
	ThreatsMitigated uint64
	TotalBlocks      uint64
	ActiveBlocks     uint64
	LogsWritten      uint64
	LogsDropped      uint64
	LogsStopped      uint64
	QueueFullDrops   uint64
}

// Snapshot reads every counter independently.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		PacketsProcessed: c.PacketsProcessed.Load(),
		PacketsAllowed:   c.PacketsAllowed.Load(),
		PacketsDropped:   c.PacketsDropped.Load(),
		BytesProcessed:   c.BytesProcessed.Load(),
		ThreatsDetected:  c.ThreatsDetected.Load(),
		ThreatsMitigated: c.ThreatsMitigated.Load(),
		TotalBlocks:      c.TotalBlocks.Load(),
		ActiveBlocks:     c.ActiveBlocks.Load(),
		LogsWritten:      c.LogsWritten.Load(),
		LogsDropped:      c.LogsDropped.Load(),
		LogsStopped:      c.LogsStopped.Load(),
		QueueFullDrops:   c.QueueFullDrops.Load(),
	}
}

package engine

import (
	"github.com/zuudevs/grid-watcher/pkg/hoststats"
	"github.com/zuudevs/grid-watcher/pkg/ids"
	"github.com/zuudevs/grid-watcher/pkg/metrics"
)

// Block installs or extends a block on addr for the configured auto-block
// duration, bypassing the behavioral analyzer entirely (admin call).
func (e *Engine) Block(addr ids.Addr, reason ids.AttackKind) {
	e.mitigationTable.Block(addr, reason, e.cfg.AutoBlockDuration, e.now())
	e.blockedCache.Add(addr)
	e.counters.TotalBlocks.Add(1)
}

// Unblock removes any block on addr, returning whether one existed.
func (e *Engine) Unblock(addr ids.Addr) bool {
	return e.mitigationTable.Unblock(addr)
}

// AddWhitelist marks addr as always-allowed.
func (e *Engine) AddWhitelist(addr ids.Addr) {
	e.mitigationTable.AddWhitelist(addr)
	e.whitelistCache.Add(addr)
}

// RemoveWhitelist un-marks addr. The whitelist bloom cache is append-only
// by design, so a removed address still short-circuits into the
// authoritative check, which now correctly reports it as not whitelisted.
func (e *Engine) RemoveWhitelist(addr ids.Addr) {
	e.mitigationTable.RemoveWhitelist(addr)
}

// BlockedList returns every currently active block record.
func (e *Engine) BlockedList() []ids.BlockRecord {
	return e.mitigationTable.Snapshot(e.now())
}

// Counters exposes the raw counter set so a metrics bridge can register
// observable instruments against it without the engine depending on any
// particular exporter.
func (e *Engine) Counters() *metrics.Counters { return e.counters }

// Latency exposes the raw latency tracker, see Counters.
func (e *Engine) Latency() *metrics.LatencyTracker { return e.latency }

// Throughput exposes the raw throughput tracker, see Counters.
func (e *Engine) Throughput() *metrics.ThroughputTracker { return e.throughput }

// State reports the engine's current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Err returns the error that forced the engine to Stopped on its own, such
// as an unsupervised worker panic. Returns nil for a clean Stop() or while
// still Running.
func (e *Engine) Err() error {
	p := e.fatalErr.Load()
	if p == nil {
		return nil
	}

	return *p
}

// Stats is the telemetry surface's statistics_snapshot(): every counter
// plus derived rates and uptime.
type Stats struct {
	Counters         metrics.Snapshot
	UptimeSeconds    float64
	PacketsPerSecond float64
}

// StatisticsSnapshot returns every counter plus uptime and a derived
// packets/second rate.
func (e *Engine) StatisticsSnapshot() Stats {
	snap := e.counters.Snapshot()
	uptime := e.now().Sub(e.startedAt).Seconds()

	var pps float64
	if uptime > 0 {
		pps = float64(snap.PacketsProcessed) / uptime
	}

	return Stats{
		Counters:         snap,
		UptimeSeconds:    uptime,
		PacketsPerSecond: pps,
	}
}

// Metrics is the telemetry surface's metrics_snapshot(): latency and
// throughput statistics plus a host memory estimate.
type Metrics struct {
	Latency         metrics.LatencyStats
	ThroughputOneS  metrics.ThroughputStats
	MemoryBytes     uint64
	MemoryEstimated bool
}

// MetricsSnapshot returns latency/throughput stats and a best-effort host
// memory estimate; MemoryEstimated is false if the estimate failed.
func (e *Engine) MetricsSnapshot() Metrics {
	rss, err := hoststats.MemoryEstimate()

	return Metrics{
		Latency:         e.latency.Stats(),
		ThroughputOneS:  e.throughput.Stats(1, e.now().Unix()),
		MemoryBytes:     rss,
		MemoryEstimated: err == nil,
	}
}

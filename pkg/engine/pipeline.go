package engine

import (
	"time"

	"github.com/zuudevs/grid-watcher/pkg/behavior"
	"github.com/zuudevs/grid-watcher/pkg/ids"
	"github.com/zuudevs/grid-watcher/pkg/modbus"
	"github.com/zuudevs/grid-watcher/pkg/telemetry"
)

// processInternal is the hot-path short-circuit pipeline. Order is
// load-bearing: whitelist check, block check, parse, state update, rate
// pre-check, analysis, mitigation policy, counters. The rate pre-check
// reads the snapshot returned by the state update, so the packet being
// decided is already counted in the rate it is checked against.
func (e *Engine) processInternal(input ids.PacketInput) ids.Decision {
	start := time.Now()
	e.counters.PacketsProcessed.Add(1)
	e.counters.BytesProcessed.Add(uint64(len(input.Buffer)))

	now := e.now()

	if e.whitelistCache.MayContain(input.Src) && e.mitigationTable.IsWhitelisted(input.Src) {
		return e.conclude(ids.Allow, start, now, len(input.Buffer))
	}

	if e.blockedCache.MayContain(input.Src) && e.mitigationTable.IsBlocked(input.Src, now) {
		return e.conclude(ids.Drop, start, now, len(input.Buffer))
	}

	var md ids.Metadata
	if modbus.Qualifies(input.SrcPort, input.DstPort, e.cfg.MonitoredPorts) {
		md = modbus.Parse(input.Buffer)
	} else {
		md = ids.Metadata{Protocol: ids.ProtocolUnknown, Size: len(input.Buffer)}
	}

	state := e.sourceStates.Get(input.Src, now)
	if state == nil {
		return e.conclude(ids.Allow, start, now, len(input.Buffer))
	}

	snap := state.Update(md, input.DstPort, now)

	if e.shouldDropOnRate(snap) {
		return e.conclude(ids.Drop, start, now, len(input.Buffer))
	}

	alerts := e.analyzer.Evaluate(input.Src, input.Dst, md, input.DstPort, snap, now)

	decision := ids.Allow

	for i := range alerts {
		alert := &alerts[i]
		e.logAlert(alert, input.Src)

		e.counters.ThreatsDetected.Add(1)
		e.counters.IncrAttackKind(int(alert.Kind))

		switch {
		case alert.Severity >= ids.SeverityHigh:
			if e.cfg.AutoBlockEnabled {
				e.mitigationTable.Block(input.Src, alert.Kind, e.cfg.AutoBlockDuration, now)
				e.blockedCache.Add(input.Src)
				e.counters.TotalBlocks.Add(1)
				e.counters.ThreatsMitigated.Add(1)
				alert.AutoMitigated = true
			}

			decision = ids.Drop
		case alert.Severity == ids.SeverityMedium:
			decision = ids.Drop
		}
	}

	return e.conclude(decision, start, now, len(input.Buffer))
}

// shouldDropOnRate is the cheap pre-check that drops a source already
// over its flood threshold with auto-block enabled, skipping the full
// analyzer pass.
func (e *Engine) shouldDropOnRate(snap behavior.Snapshot) bool {
	if !e.cfg.AutoBlockEnabled {
		return false
	}

	if e.cfg.DosPacketThreshold > 0 && snap.PacketRate > float64(e.cfg.DosPacketThreshold) {
		return true
	}

	return e.cfg.DosByteThreshold > 0 && snap.ByteRate > float64(e.cfg.DosByteThreshold)
}

// conclude records the final allow/drop counter, throughput and latency
// for one packet and returns its decision.
func (e *Engine) conclude(decision ids.Decision, start, now time.Time, size int) ids.Decision {
	if decision == ids.Allow {
		e.counters.PacketsAllowed.Add(1)
	} else {
		e.counters.PacketsDropped.Add(1)
	}

	e.throughput.Record(uint64(size), now.Unix())
	e.recordLatency(start)

	return decision
}

func (e *Engine) recordLatency(start time.Time) {
	e.latency.Record(uint64(time.Since(start).Nanoseconds()))
}

func (e *Engine) logAlert(alert *ids.ThreatAlert, src ids.Addr) {
	if e.writer == nil {
		return
	}

	rec := telemetry.Record{
		Timestamp: alert.DetectedAt,
		Level:     telemetry.LevelCritical,
		Source:    src.String(),
		Message:   alert.Description,
		Alert:     alert,
	}

	// LogsWritten/LogsStopped are driven by the writer's OnDelivered
	// callback (registered in New), not by ring acceptance here: a record
	// can be queued successfully and still never reach a sink that has
	// since been disabled after persistent failures.
	if !e.writer.TryLog(rec) {
		e.counters.LogsDropped.Add(1)
	}
}

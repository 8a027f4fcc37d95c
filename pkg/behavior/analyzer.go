package behavior

import (
	"time"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

// monitoredFunctionPorts lists the destination ports considered RTU/PLC
// response ports; a diagnostic function code seen on any other port is
// suspicious rather than routine polling.
var monitoredFunctionPorts = map[uint16]struct{}{502: {}}

// Analyzer evaluates the fixed-order rule set over one packet's metadata
// and the per-source state snapshot taken during its Update. Every rule
// is evaluated regardless of earlier matches, so a multi-signal attack
// produces every alert it triggers.
type Analyzer struct {
	dosPacketThreshold     uint64
	dosByteThreshold       uint64
	portScanThreshold      uint32
	writeReadRatio         float64
	exceptionRateThreshold uint32
}

// NewAnalyzer builds an Analyzer from engine thresholds.
func NewAnalyzer(dosPacketThreshold, dosByteThreshold uint64, portScanThreshold uint32,
	writeReadRatio float64, exceptionRateThreshold uint32,
) *Analyzer {
	return &Analyzer{
		dosPacketThreshold:     dosPacketThreshold,
		dosByteThreshold:       dosByteThreshold,
		portScanThreshold:      portScanThreshold,
		writeReadRatio:         writeReadRatio,
		exceptionRateThreshold: exceptionRateThreshold,
	}
}

// Evaluate runs every rule in fixed order and returns every alert that fires.
func (a *Analyzer) Evaluate(src, dst ids.Addr, md ids.Metadata, dstPort uint16, snap Snapshot, now time.Time) []ids.ThreatAlert {
	var alerts []ids.ThreatAlert

	emit := func(kind ids.AttackKind, sev ids.Severity, confidence float64, desc string) {
		alerts = append(alerts, ids.NewThreatAlert(src, dst, kind, sev, desc, confidence, now))
	}

	// 1. malformed-packet
	if md.IsMalformed {
		emit(ids.AttackMalformedPacket, ids.SeverityHigh, 1.0, "frame failed protocol validation")
	}

	// 2. dos-flood
	packetRatio := safeDiv(snap.PacketRate, float64(a.dosPacketThreshold))
	byteRatio := safeDiv(snap.ByteRate, float64(a.dosByteThreshold))

	packetOver := a.dosPacketThreshold > 0 && snap.PacketRate >= float64(a.dosPacketThreshold)
	byteOver := a.dosByteThreshold > 0 && snap.ByteRate >= float64(a.dosByteThreshold)

	if packetOver || byteOver {
		confidence := min1(packetRatio)
		if byteRatio > packetRatio {
			confidence = min1(byteRatio)
		}

		emit(ids.AttackDoSFlood, ids.SeverityHigh, confidence, "packet or byte rate exceeded flood threshold")
	}

	// 3. port-scan
	if snap.DistinctPorts >= a.portScanThreshold {
		denom := float64(a.portScanThreshold) * 2
		confidence := 1.0
		if denom > 0 {
			confidence = min1(float64(snap.DistinctPorts) / denom)
		}

		emit(ids.AttackPortScan, ids.SeverityMedium, confidence, "distinct destination ports exceeded scan threshold")
	}

	// 4. unauthorized-write
	if snap.Writes >= 5 {
		ratio := float64(snap.Writes)
		if snap.Reads > 0 {
			ratio = float64(snap.Writes) / float64(snap.Reads)
		}

		if ratio >= a.writeReadRatio {
			emit(ids.AttackUnauthorizedWrite, ids.SeverityCritical, 0.85, "write/read ratio exceeded threshold")
		}
	}

	// 5. abnormal-traffic
	if uint32(snap.Exceptions) >= a.exceptionRateThreshold {
		emit(ids.AttackAbnormalTraffic, ids.SeverityMedium, 0.7, "exception response count exceeded threshold")
	}

	// 6. suspicious-function
	if md.FunctionClass == ids.FunctionDiagnostic {
		_, isResponsePort := monitoredFunctionPorts[dstPort]
		if !(md.IsResponse && isResponsePort) {
			emit(ids.AttackSuspiciousFunction, ids.SeverityLow, 0.5, "diagnostic function code outside RTU/PLC response traffic")
		}
	}

	return alerts
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}

	return v
}

func safeDiv(numerator, denominator float64) float64 {
	if denominator <= 0 {
		return 0
	}

	return numerator / denominator
}

// Package ids holds the shared data model for the SCADA intrusion detection
// and prevention engine: addresses, packet metadata, threat alerts and
// block records. It has no behavior of its own — every other package in
// this module imports it.
package ids

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Addr is an IPv4 address packed into a uint32, host byte order.
type Addr uint32

// NewAddr builds an Addr from four octets, most significant first.
func NewAddr(a, b, c, d byte) Addr {
	return Addr(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

// String renders the address as a dotted quad for logs.
func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}

// Protocol tags the application-layer protocol a packet was classified as.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolModbusTCP
	ProtocolDNP3
	ProtocolIEC104
	ProtocolOPCUA
)

func (p Protocol) String() string {
	switch p {
	case ProtocolModbusTCP:
		return "modbus-tcp"
	case ProtocolDNP3:
		return "dnp3"
	case ProtocolIEC104:
		return "iec-104"
	case ProtocolOPCUA:
		return "opc-ua"
	default:
		return "unknown"
	}
}

// FunctionClass classifies a Modbus function code.
type FunctionClass int

const (
	FunctionUnknown FunctionClass = iota
	FunctionRead
	FunctionWrite
	FunctionDiagnostic
	FunctionException
)

// PacketInput is a raw packet handed to the engine by a producer.
type PacketInput struct {
	Buffer  []byte
	Src     Addr
	Dst     Addr
	SrcPort uint16
	DstPort uint16
	Arrival time.Time
}

// Metadata is derived from a PacketInput: protocol classification plus,
// when the packet is Modbus/TCP, the decoded MBAP/PDU fields.
type Metadata struct {
	Protocol      Protocol
	Size          int
	IsMalformed   bool
	TransactionID uint16
	UnitID        byte
	FunctionCode  byte
	FunctionClass FunctionClass
	RegAddress    uint16
	RegCount      uint16
	IsResponse    bool
	HasException  bool
}

// AttackKind enumerates the threat categories the behavioral analyzer can raise.
type AttackKind int

const (
	AttackNone AttackKind = iota
	AttackPortScan
	AttackDoSFlood
	AttackCommandInjection
	AttackUnauthorizedWrite
	AttackAbnormalTraffic
	AttackSuspiciousFunction
	AttackMalformedPacket
	AttackReplay
	AttackMITM
	AttackBruteForce
)

func (k AttackKind) String() string {
	switch k {
	case AttackPortScan:
		return "port-scan"
	case AttackDoSFlood:
		return "dos-flood"
	case AttackCommandInjection:
		return "command-injection"
	case AttackUnauthorizedWrite:
		return "unauthorized-write"
	case AttackAbnormalTraffic:
		return "abnormal-traffic"
	case AttackSuspiciousFunction:
		return "suspicious-function"
	case AttackMalformedPacket:
		return "malformed-packet"
	case AttackReplay:
		return "replay"
	case AttackMITM:
		return "mitm"
	case AttackBruteForce:
		return "brute-force"
	default:
		return "none"
	}
}

// Severity is the urgency of a threat alert.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// ThreatAlert describes one detected anomaly for one packet.
type ThreatAlert struct {
	ID            uuid.UUID
	Src           Addr
	Dst           Addr
	Kind          AttackKind
	Severity      Severity
	Description   string
	Confidence    float64
	AutoMitigated bool
	DetectedAt    time.Time
}

// NewThreatAlert builds a ThreatAlert with a fresh identifier, the way the
// teacher's own audit records are stamped on creation rather than at
// storage time.
func NewThreatAlert(src, dst Addr, kind AttackKind, severity Severity, description string,
	confidence float64, detectedAt time.Time,
) ThreatAlert {
	return ThreatAlert{
		ID:          uuid.New(),
		Src:         src,
		Dst:         dst,
		Kind:        kind,
		Severity:    severity,
		Description: description,
		Confidence:  confidence,
		DetectedAt:  detectedAt,
	}
}

// Decision is the outcome of processing one packet.
type Decision int

const (
	Drop Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}

	return "drop"
}

// SubmitResult is returned by the asynchronous ingestion entry point.
type SubmitResult int

const (
	Submitted SubmitResult = iota
	QueueFull
)

// BlockRecord is the authoritative record of a blocked source address.
type BlockRecord struct {
	Addr           Addr
	Reason         AttackKind
	BlockedAt      time.Time
	ExpiresAt      time.Time
	Permanent      bool
	ViolationCount uint32
}

// Expired reports whether the record is logically absent at instant now.
func (b BlockRecord) Expired(now time.Time) bool {
	if b.Permanent {
		return false
	}

	return now.After(b.ExpiresAt)
}

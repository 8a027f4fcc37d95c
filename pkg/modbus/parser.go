// Package modbus parses Modbus/TCP frames (a 7-byte MBAP header followed
// by a PDU) into an ids.Metadata. The parser is pure: same bytes in, same
// metadata out, no allocation beyond the returned value, no shared state.
package modbus

import (
	"encoding/binary"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

const (
	minFrameLength = 12 // 7-byte MBAP + 5-byte PDU header
	modbusPort     = 502
)

var (
	readCodes       = map[byte]struct{}{1: {}, 2: {}, 3: {}, 4: {}}
	writeCodes      = map[byte]struct{}{5: {}, 6: {}, 15: {}, 16: {}, 22: {}, 23: {}}
	diagnosticCodes = map[byte]struct{}{7: {}, 8: {}, 11: {}, 12: {}, 17: {}}
)

// Qualifies reports whether a packet should be routed to Parse at all: one
// of its ports must be the Modbus port 502 or one of monitoredPorts.
func Qualifies(srcPort, dstPort uint16, monitoredPorts []uint16) bool {
	isMonitored := func(p uint16) bool {
		if p == modbusPort {
			return true
		}

		for _, m := range monitoredPorts {
			if p == m {
				return true
			}
		}

		return false
	}

	return isMonitored(srcPort) || isMonitored(dstPort)
}

// Parse decodes buf as a Modbus/TCP frame. It never panics and never
// returns an error: a buffer that fails a constraint comes back with
// IsMalformed set and whatever fields were extractable filled in.
func Parse(buf []byte) ids.Metadata {
	md := ids.Metadata{
		Protocol: ids.ProtocolModbusTCP,
		Size:     len(buf),
	}

	if len(buf) < minFrameLength {
		md.IsMalformed = true
		return md
	}

	md.TransactionID = binary.BigEndian.Uint16(buf[0:2])

	protocolID := binary.BigEndian.Uint16(buf[2:4])
	if protocolID != 0 {
		md.IsMalformed = true
	}

	length := binary.BigEndian.Uint16(buf[4:6])
	if int(length) != len(buf)-6 {
		md.IsMalformed = true
	}

	md.UnitID = buf[6]
	md.FunctionCode = buf[7]
	md.RegAddress = binary.BigEndian.Uint16(buf[8:10])
	md.RegCount = binary.BigEndian.Uint16(buf[10:12])

	md.HasException = md.FunctionCode&0x80 != 0
	md.IsResponse = md.HasException

	md.FunctionClass = classify(md.FunctionCode, md.HasException)
	if md.FunctionClass == ids.FunctionUnknown {
		md.IsMalformed = true
	}

	return md
}

func classify(code byte, hasException bool) ids.FunctionClass {
	if hasException {
		return ids.FunctionException
	}

	base := code &^ 0x80

	if _, ok := readCodes[base]; ok {
		return ids.FunctionRead
	}

	if _, ok := writeCodes[base]; ok {
		return ids.FunctionWrite
	}

	if _, ok := diagnosticCodes[base]; ok {
		return ids.FunctionDiagnostic
	}

	return ids.FunctionUnknown
}

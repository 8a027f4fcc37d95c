package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

func wellFormedRead() []byte {
	buf := make([]byte, 12)
	buf[0], buf[1] = 0x00, 0x01 // transaction id
	buf[2], buf[3] = 0x00, 0x00 // protocol id
	buf[4], buf[5] = 0x00, 0x06 // length = len(buf)-6
	buf[6] = 0x01               // unit id
	buf[7] = 0x03                // function code: read holding registers
	buf[8], buf[9] = 0x00, 0x64  // register address 100
	buf[10], buf[11] = 0x00, 0x0a // register count 10

	return buf
}

func TestParseWellFormedRead(t *testing.T) {
	md := Parse(wellFormedRead())

	assert.False(t, md.IsMalformed)
	assert.Equal(t, ids.ProtocolModbusTCP, md.Protocol)
	assert.Equal(t, ids.FunctionRead, md.FunctionClass)
	assert.Equal(t, uint16(100), md.RegAddress)
	assert.Equal(t, uint16(10), md.RegCount)
	assert.False(t, md.IsResponse)
	assert.False(t, md.HasException)
}

func TestParseShortBufferIsMalformed(t *testing.T) {
	md := Parse(make([]byte, 11))
	assert.True(t, md.IsMalformed)
}

func TestParseWrongProtocolIDIsMalformed(t *testing.T) {
	buf := wellFormedRead()
	buf[3] = 0x01

	md := Parse(buf)
	assert.True(t, md.IsMalformed)
}

func TestParseWrongLengthIsMalformed(t *testing.T) {
	buf := wellFormedRead()
	buf[5] = 0xFF

	md := Parse(buf)
	assert.True(t, md.IsMalformed)
}

func TestParseWriteFunctionCode(t *testing.T) {
	buf := wellFormedRead()
	buf[7] = 16

	md := Parse(buf)
	assert.Equal(t, ids.FunctionWrite, md.FunctionClass)
	assert.False(t, md.IsMalformed)
}

func TestParseDiagnosticFunctionCode(t *testing.T) {
	buf := wellFormedRead()
	buf[7] = 8

	md := Parse(buf)
	assert.Equal(t, ids.FunctionDiagnostic, md.FunctionClass)
}

func TestParseExceptionResponse(t *testing.T) {
	buf := wellFormedRead()
	buf[7] = 0x83 // read (3) with top bit set

	md := Parse(buf)
	assert.True(t, md.HasException)
	assert.True(t, md.IsResponse)
	assert.Equal(t, ids.FunctionException, md.FunctionClass)
}

func TestParseUnknownFunctionCodeIsMalformed(t *testing.T) {
	buf := wellFormedRead()
	buf[7] = 99

	md := Parse(buf)
	assert.Equal(t, ids.FunctionUnknown, md.FunctionClass)
	assert.True(t, md.IsMalformed)
}

func TestParseIsPure(t *testing.T) {
	buf := wellFormedRead()

	first := Parse(buf)
	second := Parse(buf)

	assert.Equal(t, first, second)
}

func TestQualifies(t *testing.T) {
	assert.True(t, Qualifies(1234, 502, nil))
	assert.True(t, Qualifies(502, 1234, nil))
	assert.True(t, Qualifies(1234, 9999, []uint16{9999}))
	assert.False(t, Qualifies(1234, 5678, []uint16{9999}))
}

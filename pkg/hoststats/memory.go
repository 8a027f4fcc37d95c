// Package hoststats reports a process-level resident memory estimate for
// the metrics snapshot surface. It is read on demand, never on the
// packet-processing path.
package hoststats

import (
	"github.com/shirou/gopsutil/v3/process"
)

// MemoryEstimate is the process's resident set size, in bytes, at the
// moment of the call.
func MemoryEstimate() (uint64, error) {
	proc, err := process.NewProcess(int32(currentPID()))
	if err != nil {
		return 0, err
	}

	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}

	return info.RSS, nil
}

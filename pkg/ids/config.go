package ids

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

// EngineConfig is the full set of tunables recognized at engine
// construction. It is frozen once the engine is built; runtime changes go
// through the admin surface (Block/Unblock/Whitelist), not through
// mutating this struct.
type EngineConfig struct {
	DosPacketThreshold      uint64        `json:"dos_packet_threshold"`
	DosByteThreshold        uint64        `json:"dos_byte_threshold"`
	DosWindow               time.Duration `json:"dos_window"`
	PortScanThreshold       uint32        `json:"port_scan_threshold"`
	PortScanWindow          time.Duration `json:"port_scan_window"`
	WriteReadRatioThreshold float64       `json:"write_read_ratio_threshold"`
	ExceptionRateThreshold  uint32        `json:"exception_rate_threshold"`
	WhitelistedAddresses    []Addr        `json:"whitelisted_addresses"`
	MonitoredPorts          []uint16      `json:"monitored_ports"`
	AutoBlockEnabled        bool          `json:"auto_block_enabled"`
	AutoBlockDuration       time.Duration `json:"auto_block_duration"`
	MaxConcurrentBlocks     uint32        `json:"max_concurrent_blocks"`
	PacketQueueCapacity     uint32        `json:"packet_queue_capacity"`
	LogQueueCapacity        uint32        `json:"log_queue_capacity"`
	WorkerCount             uint32        `json:"worker_count"`

	// DrainOnStop, when false, discards queued-but-unprocessed packets on
	// Stop instead of draining them.
	DrainOnStop bool `json:"drain_on_stop"`

	// WorkerSupervision restarts a worker goroutine that panics instead of
	// transitioning the whole engine to Stopped.
	WorkerSupervision bool `json:"worker_supervision"`
}

// DefaultEngineConfig returns the reference thresholds used throughout the
// end-to-end test scenarios.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DosPacketThreshold:      1000,
		DosByteThreshold:        10 * 1024 * 1024,
		DosWindow:               5 * time.Second,
		PortScanThreshold:       10,
		PortScanWindow:          10 * time.Second,
		WriteReadRatioThreshold: 3.0,
		ExceptionRateThreshold:  20,
		MonitoredPorts:          []uint16{502},
		AutoBlockEnabled:        true,
		AutoBlockDuration:       60 * time.Minute,
		MaxConcurrentBlocks:     10000,
		PacketQueueCapacity:     4096,
		LogQueueCapacity:        2048,
		WorkerCount:             4,
		DrainOnStop:             true,
		WorkerSupervision:       true,
	}
}

// Validate checks every field's invariants; an invalid configuration fails
// engine construction.
func (c *EngineConfig) Validate() error {
	if c.DosWindow <= 0 {
		return fmt.Errorf("%w: dos_window must be positive", ErrInvalidConfig)
	}

	if c.PortScanWindow <= 0 {
		return fmt.Errorf("%w: port_scan_window must be positive", ErrInvalidConfig)
	}

	if c.WriteReadRatioThreshold <= 0 {
		return fmt.Errorf("%w: write_read_ratio_threshold must be positive", ErrInvalidConfig)
	}

	if c.WorkerCount == 0 {
		return fmt.Errorf("%w: worker_count must be >= 1", ErrInvalidConfig)
	}

	if !isPowerOfTwo(c.PacketQueueCapacity) {
		return fmt.Errorf("%w: packet_queue_capacity must be a power of two", ErrInvalidConfig)
	}

	if !isPowerOfTwo(c.LogQueueCapacity) {
		return fmt.Errorf("%w: log_queue_capacity must be a power of two", ErrInvalidConfig)
	}

	if c.MaxConcurrentBlocks == 0 {
		return fmt.Errorf("%w: max_concurrent_blocks must be >= 1", ErrInvalidConfig)
	}

	if c.AutoBlockEnabled && c.AutoBlockDuration <= 0 {
		return fmt.Errorf("%w: auto_block_duration must be positive when auto_block_enabled", ErrInvalidConfig)
	}

	if c.AutoBlockEnabled && len(c.MonitoredPorts) == 0 {
		return fmt.Errorf("%w: monitored_ports must be non-empty when auto_block_enabled "+
			"(a config that can never observe monitored traffic can never auto-block)", ErrInvalidConfig)
	}

	return nil
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// MaxSources bounds the per-source state map to 100x the block table
// capacity, so an attacker flooding from distinct forged sources cannot
// grow memory without bound.
func (c *EngineConfig) MaxSources() int {
	return 100 * int(c.MaxConcurrentBlocks)
}

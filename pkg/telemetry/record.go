// Package telemetry implements the engine's async logging pipeline: a
// lock-free multi-producer/single-consumer ring buffer of log records, a
// Sink interface for where they ultimately land, and a writer goroutine
// that drains the ring without ever blocking a producer.
package telemetry

import (
	"fmt"
	"time"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

// Level is a log record's severity.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// Record is one log entry. Alert is nil for routine records; when
// present, Format appends the trailing threat block.
type Record struct {
	Timestamp time.Time
	Level     Level
	Source    string
	Message   string
	Alert     *ids.ThreatAlert
}

// Format renders a Record as "YYYY-MM-DD HH:MM:SS [LEVEL] [SOURCE]
// message", with a trailing "| Attack: ... | Severity: ... | Source: ...
// | Confidence: ...%" block when Alert is set.
func (r Record) Format() string {
	base := fmt.Sprintf("%s [%s] [%s] %s",
		r.Timestamp.Format("2006-01-02 15:04:05"), r.Level, r.Source, r.Message)

	if r.Alert == nil {
		return base
	}

	return fmt.Sprintf("%s | Attack: %s | Severity: %s | Source: %s | Confidence: %.0f%%",
		base, r.Alert.Kind, r.Alert.Severity, r.Alert.Src, r.Alert.Confidence*100)
}

package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

func TestFormatWithoutAlert(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := Record{Timestamp: ts, Level: LevelInfo, Source: "192.168.1.10", Message: "packet allowed"}

	assert.Equal(t, "2026-01-02 03:04:05 [INFO] [192.168.1.10] packet allowed", rec.Format())
}

func TestFormatWithAlert(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	alert := &ids.ThreatAlert{
		Src:        ids.NewAddr(203, 0, 113, 45),
		Kind:       ids.AttackUnauthorizedWrite,
		Severity:   ids.SeverityCritical,
		Confidence: 0.85,
	}
	rec := Record{Timestamp: ts, Level: LevelCritical, Source: "203.0.113.45", Message: "write flood", Alert: alert}

	assert.Equal(t,
		"2026-01-02 03:04:05 [CRITICAL] [203.0.113.45] write flood | Attack: unauthorized-write | Severity: CRITICAL | Source: 203.0.113.45 | Confidence: 85%",
		rec.Format())
}

package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesAndFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.log")

	sink, err := NewFileSink(path)
	require.NoError(t, err)

	rec := Record{Timestamp: time.Now(), Level: LevelInfo, Source: "10.0.0.1", Message: "allowed"}
	require.NoError(t, sink.Write(rec))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "allowed")
	assert.Contains(t, string(data), "[INFO]")
}

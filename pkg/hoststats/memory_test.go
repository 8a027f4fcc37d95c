package hoststats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEstimateReturnsPositiveRSS(t *testing.T) {
	rss, err := MemoryEstimate()
	require.NoError(t, err)
	assert.Greater(t, rss, uint64(0))
}

package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersSnapshot(t *testing.T) {
	c := &Counters{}
	c.PacketsProcessed.Add(10)
	c.PacketsAllowed.Add(7)
	c.PacketsDropped.Add(3)

	snap := c.Snapshot()
	assert.Equal(t, uint64(10), snap.PacketsProcessed)
	assert.Equal(t, uint64(7), snap.PacketsAllowed)
	assert.Equal(t, uint64(3), snap.PacketsDropped)
}

func TestCountersAttackKind(t *testing.T) {
	c := &Counters{}
	c.IncrAttackKind(2)
	c.IncrAttackKind(2)
	c.IncrAttackKind(3)

	assert.Equal(t, uint64(2), c.AttackKindCount(2))
	assert.Equal(t, uint64(1), c.AttackKindCount(3))
	assert.Equal(t, uint64(0), c.AttackKindCount(99))
}

func TestCountersConcurrentIncrement(t *testing.T) {
	c := &Counters{}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.PacketsProcessed.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(100), c.PacketsProcessed.Load())
}

package mitigation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

func TestBlockThenIsBlocked(t *testing.T) {
	tbl := New(100)
	now := time.Now()
	addr := ids.NewAddr(10, 0, 0, 1)

	assert.False(t, tbl.IsBlocked(addr, now))

	tbl.Block(addr, ids.AttackDoSFlood, time.Minute, now)
	assert.True(t, tbl.IsBlocked(addr, now))
}

func TestBlockExpires(t *testing.T) {
	tbl := New(100)
	now := time.Now()
	addr := ids.NewAddr(10, 0, 0, 2)

	tbl.Block(addr, ids.AttackPortScan, time.Minute, now)
	assert.False(t, tbl.IsBlocked(addr, now.Add(2*time.Minute)))
}

func TestBlockExtendsExistingRecord(t *testing.T) {
	tbl := New(100)
	now := time.Now()
	addr := ids.NewAddr(10, 0, 0, 3)

	tbl.Block(addr, ids.AttackPortScan, time.Minute, now)
	tbl.Block(addr, ids.AttackDoSFlood, 5*time.Minute, now)

	rec, ok := tbl.Lookup(addr, now)
	require.True(t, ok)
	assert.Equal(t, ids.AttackDoSFlood, rec.Reason)
	assert.Equal(t, uint32(2), rec.ViolationCount)
	assert.WithinDuration(t, now.Add(5*time.Minute), rec.ExpiresAt, time.Second)
}

func TestBlockExtensionNeverShortensExpiry(t *testing.T) {
	tbl := New(100)
	now := time.Now()
	addr := ids.NewAddr(10, 0, 0, 4)

	tbl.Block(addr, ids.AttackPortScan, 10*time.Minute, now)
	tbl.Block(addr, ids.AttackDoSFlood, time.Minute, now)

	rec, ok := tbl.Lookup(addr, now)
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(10*time.Minute), rec.ExpiresAt, time.Second)
}

func TestUnblockRemovesRecord(t *testing.T) {
	tbl := New(100)
	now := time.Now()
	addr := ids.NewAddr(10, 0, 0, 5)

	tbl.Block(addr, ids.AttackPortScan, time.Minute, now)
	assert.True(t, tbl.Unblock(addr))
	assert.False(t, tbl.IsBlocked(addr, now))
	assert.False(t, tbl.Unblock(addr))
}

func TestPermanentBlockNeverExpires(t *testing.T) {
	tbl := New(100)
	now := time.Now()
	addr := ids.NewAddr(10, 0, 0, 6)

	tbl.BlockPermanent(addr, ids.AttackBruteForce, now)
	assert.True(t, tbl.IsBlocked(addr, now.Add(365*24*time.Hour)))
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	tbl := New(100)
	now := time.Now()
	expired := ids.NewAddr(10, 0, 0, 7)
	active := ids.NewAddr(10, 0, 0, 8)

	tbl.Block(expired, ids.AttackPortScan, time.Second, now)
	tbl.Block(active, ids.AttackPortScan, time.Hour, now)

	tbl.Cleanup(now.Add(2 * time.Second))

	assert.False(t, tbl.IsBlocked(expired, now.Add(2*time.Second)))
	assert.True(t, tbl.IsBlocked(active, now.Add(2*time.Second)))
}

func TestEvictionAtCapacityPrefersEarliestExpiry(t *testing.T) {
	tbl := New(2)
	now := time.Now()

	a := ids.NewAddr(10, 0, 1, 1)
	b := ids.NewAddr(10, 0, 1, 2)
	c := ids.NewAddr(10, 0, 1, 3)

	tbl.Block(a, ids.AttackPortScan, time.Minute, now)
	tbl.Block(b, ids.AttackPortScan, time.Hour, now)
	tbl.Block(c, ids.AttackPortScan, time.Hour, now)

	assert.False(t, tbl.IsBlocked(a, now), "earliest-expiring record should have been evicted")
	assert.True(t, tbl.IsBlocked(b, now))
	assert.True(t, tbl.IsBlocked(c, now))
}

func TestEvictionPressureWhenAllPermanent(t *testing.T) {
	tbl := New(1)
	now := time.Now()

	tbl.BlockPermanent(ids.NewAddr(10, 0, 2, 1), ids.AttackBruteForce, now)
	tbl.Block(ids.NewAddr(10, 0, 2, 2), ids.AttackPortScan, time.Minute, now)

	assert.Equal(t, uint64(1), tbl.EvictionPressure())
	assert.False(t, tbl.IsBlocked(ids.NewAddr(10, 0, 2, 2), now))
}

func TestWhitelistRoundTrip(t *testing.T) {
	tbl := New(100)
	addr := ids.NewAddr(10, 0, 3, 1)

	assert.False(t, tbl.IsWhitelisted(addr))

	tbl.AddWhitelist(addr)
	assert.True(t, tbl.IsWhitelisted(addr))

	tbl.RemoveWhitelist(addr)
	assert.False(t, tbl.IsWhitelisted(addr))
}

func TestConcurrentBlockUnblockIsSafe(t *testing.T) {
	tbl := New(1000)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := ids.NewAddr(172, 16, byte(i/256), byte(i%256))
			tbl.Block(addr, ids.AttackDoSFlood, time.Minute, now)
			tbl.IsBlocked(addr, now)
			tbl.Unblock(addr)
		}(i)
	}
	wg.Wait()
}

func TestSnapshotExcludesExpired(t *testing.T) {
	tbl := New(100)
	now := time.Now()

	tbl.Block(ids.NewAddr(10, 0, 4, 1), ids.AttackPortScan, time.Hour, now)
	tbl.Block(ids.NewAddr(10, 0, 4, 2), ids.AttackPortScan, time.Millisecond, now)

	snap := tbl.Snapshot(now.Add(time.Second))
	require.Len(t, snap, 1)
	assert.Equal(t, ids.NewAddr(10, 0, 4, 1), snap[0].Addr)
}

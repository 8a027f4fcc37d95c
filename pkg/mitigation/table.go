// Package mitigation implements the authoritative block table and
// whitelist set. Readers on the hot path never take an exclusive lock:
// the table is sharded so that a block/unblock on one source only
// contends with readers and writers of the same shard, generalizing the
// sharded-map discipline of a sync.Map-backed LRU manager (the pattern
// behind a services inventory's metrics.Manager) into per-shard RWMutex
// maps, since blocks need atomic extend-or-insert semantics per address.
package mitigation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	records map[ids.Addr]*ids.BlockRecord
}

// Table is the authoritative source→BlockRecord mapping plus the
// whitelist set.
type Table struct {
	shards    [shardCount]*shard
	whitelist sync.Map // ids.Addr -> struct{}

	maxBlocks uint32
	size      atomic.Int64

	evictionPressure atomic.Uint64 // metric: failed inserts at capacity
}

// New builds a Table that refuses new blocks once maxBlocks active records
// exist and eviction can't make room.
func New(maxBlocks uint32) *Table {
	t := &Table{maxBlocks: maxBlocks}
	for i := range t.shards {
		t.shards[i] = &shard{records: make(map[ids.Addr]*ids.BlockRecord)}
	}

	return t
}

func (t *Table) shardFor(addr ids.Addr) *shard {
	return t.shards[uint32(addr)%shardCount]
}

// IsBlocked returns true iff a non-expired record exists for addr.
func (t *Table) IsBlocked(addr ids.Addr, now time.Time) bool {
	s := t.shardFor(addr)

	s.mu.RLock()
	rec, ok := s.records[addr]
	s.mu.RUnlock()

	if !ok {
		return false
	}

	return !rec.Expired(now)
}

// Lookup returns a copy of the block record for addr, if any and unexpired.
func (t *Table) Lookup(addr ids.Addr, now time.Time) (ids.BlockRecord, bool) {
	s := t.shardFor(addr)

	s.mu.RLock()
	rec, ok := s.records[addr]
	s.mu.RUnlock()

	if !ok || rec.Expired(now) {
		return ids.BlockRecord{}, false
	}

	return *rec, true
}

// Block inserts or extends a block for addr. Extension rule: new expiry is
// max(existing expiry, now+duration); violation count always increments.
// Block never fails visibly — if the table is at capacity and no record is
// evictable, the insert is silently refused and counted.
func (t *Table) Block(addr ids.Addr, reason ids.AttackKind, duration time.Duration, now time.Time) {
	s := t.shardFor(addr)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[addr]; ok {
		newExpiry := now.Add(duration)
		if !existing.Permanent && existing.ExpiresAt.After(newExpiry) {
			newExpiry = existing.ExpiresAt
		}

		existing.Reason = reason
		existing.ExpiresAt = newExpiry
		existing.ViolationCount++

		return
	}

	if t.size.Load() >= int64(t.maxBlocks) {
		if !t.evictOldestLocked(s) {
			t.evictionPressure.Add(1)
			return
		}
	}

	s.records[addr] = &ids.BlockRecord{
		Addr:           addr,
		Reason:         reason,
		BlockedAt:      now,
		ExpiresAt:      now.Add(duration),
		ViolationCount: 1,
	}
	t.size.Add(1)
}

// BlockPermanent installs a block record that never expires (admin surface).
func (t *Table) BlockPermanent(addr ids.Addr, reason ids.AttackKind, now time.Time) {
	s := t.shardFor(addr)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[addr]; ok {
		existing.Permanent = true
		existing.Reason = reason
		existing.ViolationCount++

		return
	}

	if t.size.Load() >= int64(t.maxBlocks) {
		if !t.evictOldestLocked(s) {
			t.evictionPressure.Add(1)
			return
		}
	}

	s.records[addr] = &ids.BlockRecord{
		Addr:           addr,
		Reason:         reason,
		BlockedAt:      now,
		Permanent:      true,
		ViolationCount: 1,
	}
	t.size.Add(1)
}

// evictOldestLocked evicts the non-permanent record with the earliest
// ExpiresAt across all shards. The caller must hold held's write lock
// already (it is about to insert into held); held is scanned directly,
// without re-locking it, since sync.RWMutex is not reentrant. Every other
// shard takes its own RLock only for the duration of the scan, and its own
// write lock only if it turns out to hold the victim.
func (t *Table) evictOldestLocked(held *shard) bool {
	var (
		victimShard *shard
		victimAddr  ids.Addr
		earliest    time.Time
		found       bool
	)

	scan := func(s *shard) {
		for addr, rec := range s.records {
			if rec.Permanent {
				continue
			}

			if !found || rec.ExpiresAt.Before(earliest) {
				victimShard, victimAddr, earliest, found = s, addr, rec.ExpiresAt, true
			}
		}
	}

	for _, s := range t.shards {
		if s == held {
			scan(s)
			continue
		}

		s.mu.RLock()
		scan(s)
		s.mu.RUnlock()
	}

	if !found {
		return false
	}

	if victimShard == held {
		delete(victimShard.records, victimAddr)
	} else {
		victimShard.mu.Lock()
		delete(victimShard.records, victimAddr)
		victimShard.mu.Unlock()
	}

	t.size.Add(-1)

	return true
}

// Unblock removes any block record for addr, returning whether one existed.
func (t *Table) Unblock(addr ids.Addr) bool {
	s := t.shardFor(addr)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[addr]; !ok {
		return false
	}

	delete(s.records, addr)
	t.size.Add(-1)

	return true
}

// Cleanup removes expired records across all shards; called from the
// periodic cleanup tick (every 60s).
func (t *Table) Cleanup(now time.Time) {
	for _, s := range t.shards {
		s.mu.Lock()
		for addr, rec := range s.records {
			if rec.Expired(now) {
				delete(s.records, addr)
				t.size.Add(-1)
			}
		}
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of every active (non-expired) block record.
func (t *Table) Snapshot(now time.Time) []ids.BlockRecord {
	out := make([]ids.BlockRecord, 0, t.size.Load())

	for _, s := range t.shards {
		s.mu.RLock()
		for _, rec := range s.records {
			if !rec.Expired(now) {
				out = append(out, *rec)
			}
		}
		s.mu.RUnlock()
	}

	return out
}

// EvictionPressure is a counter of blocks refused because the table was at
// capacity and nothing was evictable.
func (t *Table) EvictionPressure() uint64 {
	return t.evictionPressure.Load()
}

// AddWhitelist marks addr as always-allowed.
func (t *Table) AddWhitelist(addr ids.Addr) {
	t.whitelist.Store(addr, struct{}{})
}

// RemoveWhitelist un-marks addr.
func (t *Table) RemoveWhitelist(addr ids.Addr) {
	t.whitelist.Delete(addr)
}

// IsWhitelisted is the authoritative whitelist check, used after the bloom
// filter's "maybe whitelisted" short-circuit.
func (t *Table) IsWhitelisted(addr ids.Addr) bool {
	_, ok := t.whitelist.Load(addr)

	return ok
}

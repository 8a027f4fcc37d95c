// Package behavior tracks per-source traffic state (sliding-window packet
// and byte rates, distinct destination ports, read/write/exception
// counts) and evaluates the fixed-order threat rules over it. The state
// map generalizes the sharded-shard discipline used elsewhere in this
// module (pkg/mitigation.Table): each source gets its own mutex so one
// busy source never stalls another's readers or writer.
package behavior

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

// bucket holds counts for one window-duration slice of time.
type bucket struct {
	start       time.Time
	packets     uint64
	bytes       uint64
	writes      uint64
	reads       uint64
	exceptions  uint64
}

// portSet is a bounded, LRU-evicted set of destination ports seen from a
// source, used to detect port scans.
type portSet struct {
	order []uint16 // oldest first
	seen  map[uint16]struct{}
	cap   int
}

func newPortSet(capacity int) *portSet {
	return &portSet{seen: make(map[uint16]struct{}), cap: capacity}
}

func (p *portSet) add(port uint16) {
	if _, ok := p.seen[port]; ok {
		return
	}

	if len(p.order) >= p.cap {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.seen, oldest)
	}

	p.seen[port] = struct{}{}
	p.order = append(p.order, port)
}

func (p *portSet) size() int {
	return len(p.seen)
}

// State is one source address's behavioral window. All fields are
// guarded by mu; updates and queries take the same short critical
// section, per-entry, so sources never contend with each other.
type State struct {
	mu sync.Mutex

	// lastSeen is read by Table.Cleanup without taking mu, so it is kept
	// separately as an atomic instead of a plain time.Time field.
	lastSeen atomic.Int64 // UnixNano

	dosWindow      time.Duration
	portScanWindow time.Duration
	portScanThresh uint32

	dosCurrent, dosPrevious   bucket
	scanCurrent, scanPrevious bucket
	ports                     *portSet
}

// NewState builds per-source state sized from the given windows and
// port-scan threshold, stamped as seen at now
// so it survives at least one cleanup cycle before its first Update.
func NewState(dosWindow, portScanWindow time.Duration, portScanThreshold uint32, now time.Time) *State {
	zero := time.Time{}

	st := &State{
		dosWindow:      dosWindow,
		portScanWindow: portScanWindow,
		portScanThresh: portScanThreshold,
		dosCurrent:     bucket{start: zero},
		scanCurrent:    bucket{start: zero},
		ports:          newPortSet(int(portScanThreshold) * 2),
	}
	st.lastSeen.Store(now.UnixNano())

	return st
}

// LastSeen reports the time of the most recent Update, without taking the
// per-entry mutex.
func (s *State) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func rotate(cur, prev *bucket, window time.Duration, now time.Time) {
	if cur.start.IsZero() {
		cur.start = now
		return
	}

	if now.Sub(cur.start) > window {
		*prev = *cur
		*cur = bucket{start: now}
	}
}

// interpolated returns current + previous*(remaining_fraction), the
// linear-interpolated rate described for sliding-window approximation.
func interpolated(cur, prev bucket, window time.Duration, now time.Time, pick func(bucket) uint64) float64 {
	elapsed := now.Sub(cur.start)
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := 1.0
	if window > 0 {
		remaining = 1.0 - float64(elapsed)/float64(window)
	}

	if remaining < 0 {
		remaining = 0
	}

	return float64(pick(cur)) + float64(pick(prev))*remaining
}

// Update folds one packet's metadata into the source's state and returns
// a snapshot of the derived rates used by the analyzer, all under one
// critical section.
func (s *State) Update(md ids.Metadata, dstPort uint16, now time.Time) Snapshot {
	s.lastSeen.Store(now.UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()

	rotate(&s.dosCurrent, &s.dosPrevious, s.dosWindow, now)
	rotate(&s.scanCurrent, &s.scanPrevious, s.portScanWindow, now)

	s.dosCurrent.packets++
	s.dosCurrent.bytes += uint64(md.Size)

	switch md.FunctionClass {
	case ids.FunctionWrite:
		s.dosCurrent.writes++
	case ids.FunctionRead:
		s.dosCurrent.reads++
	}

	if md.HasException {
		s.dosCurrent.exceptions++
	}

	if dstPort != 0 {
		s.ports.add(dstPort)
	}

	return Snapshot{
		PacketRate:    interpolated(s.dosCurrent, s.dosPrevious, s.dosWindow, now, func(b bucket) uint64 { return b.packets }),
		ByteRate:      interpolated(s.dosCurrent, s.dosPrevious, s.dosWindow, now, func(b bucket) uint64 { return b.bytes }),
		Writes:        s.dosCurrent.writes + s.dosPrevious.writes,
		Reads:         s.dosCurrent.reads + s.dosPrevious.reads,
		Exceptions:    s.dosCurrent.exceptions + s.dosPrevious.exceptions,
		DistinctPorts: uint32(s.ports.size()),
	}
}

// Snapshot is the derived view handed to the analyzer after an Update.
type Snapshot struct {
	PacketRate    float64
	ByteRate      float64
	Writes        uint64
	Reads         uint64
	Exceptions    uint64
	DistinctPorts uint32
}

// Table is the concurrent map of source address to State, bounded to
// maxSources entries to prevent unbounded growth from forged addresses.
type Table struct {
	mu         sync.RWMutex
	entries    map[ids.Addr]*State
	maxSources int

	dosWindow         time.Duration
	portScanWindow    time.Duration
	portScanThreshold uint32
}

// NewTable builds an empty per-source state table.
func NewTable(dosWindow, portScanWindow time.Duration, portScanThreshold uint32, maxSources int) *Table {
	return &Table{
		entries:           make(map[ids.Addr]*State),
		maxSources:        maxSources,
		dosWindow:         dosWindow,
		portScanWindow:    portScanWindow,
		portScanThreshold: portScanThreshold,
	}
}

// Get returns the State for addr, creating it if absent. At capacity, the
// least-recently-seen entry is evicted to make room rather than refusing
// the new source: a flood of spoofed addresses would otherwise occupy
// every slot and leave genuine new attacker traffic untracked until the
// next Cleanup tick.
func (t *Table) Get(addr ids.Addr, now time.Time) *State {
	t.mu.RLock()
	st, ok := t.entries[addr]
	t.mu.RUnlock()

	if ok {
		return st
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.entries[addr]; ok {
		return st
	}

	if len(t.entries) >= t.maxSources {
		t.evictOldestLocked()
	}

	st = NewState(t.dosWindow, t.portScanWindow, t.portScanThreshold, now)
	t.entries[addr] = st

	return st
}

// evictOldestLocked removes the entry with the smallest LastSeen. Callers
// must hold t.mu for writing.
func (t *Table) evictOldestLocked() {
	var (
		oldestAddr ids.Addr
		oldestTime time.Time
		found      bool
	)

	for addr, st := range t.entries {
		seen := st.LastSeen()
		if !found || seen.Before(oldestTime) {
			oldestAddr = addr
			oldestTime = seen
			found = true
		}
	}

	if found {
		delete(t.entries, oldestAddr)
	}
}

// Len reports the number of tracked sources.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// Cleanup evicts any source whose state hasn't been updated in staleAfter,
// the garbage-collection half of the per-source state table's lifecycle:
// without it, a table at capacity stays permanently full of stale forged
// or long-gone sources and can never track a new one.
func (t *Table) Cleanup(now time.Time, staleAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for addr, st := range t.entries {
		if now.Sub(st.LastSeen()) > staleAfter {
			delete(t.entries, addr)
		}
	}
}

// Package bloom implements the lock-free address cache backing the
// decision engine's whitelist/block short-circuits.
//
// Each Filter is a fixed-size bit array updated with atomic fetch-or, the
// same lock-free-word discipline pkg/scan/ports.go uses for its port
// allocator state flags. There is no removal: a false
// positive here is recovered by the authoritative check that always
// follows a hit (mitigation table / whitelist set); a false negative would
// let a blocked or whitelisted packet skip that check, which is unsafe.
package bloom

import (
	"math/bits"
	"sync/atomic"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

const (
	// numBits is the filter capacity in bits.
	numBits   = 8192
	numWords  = numBits / 64
	numHashes = 3
)

// Filter is a fixed-size, lock-free, append-only Bloom filter over ids.Addr.
type Filter struct {
	words [numWords]atomic.Uint64
	set   atomic.Uint64 // approximate count of bits set, for fill-ratio checks
}

// New returns an empty Filter.
func New() *Filter {
	return &Filter{}
}

// Add marks addr as present. Safe for concurrent use with Add and MayContain.
func (f *Filter) Add(addr ids.Addr) {
	h := hash64(addr)

	for i := 0; i < numHashes; i++ {
		bit := bitIndex(h, i)
		word, mask := bit/64, uint64(1)<<(bit%64)

		old := f.words[word].Or(mask)
		if old&mask == 0 {
			f.set.Add(1)
		}
	}
}

// MayContain reports whether addr is possibly present. False means
// definitely absent; true means "maybe" — callers must verify against the
// authoritative source before acting on a positive result.
func (f *Filter) MayContain(addr ids.Addr) bool {
	h := hash64(addr)

	for i := 0; i < numHashes; i++ {
		bit := bitIndex(h, i)
		word, mask := bit/64, uint64(1)<<(bit%64)

		if f.words[word].Load()&mask == 0 {
			return false
		}
	}

	return true
}

// FillRatio estimates the fraction of bits set, used to decide when the
// cache should be rebuilt from authoritative state.
func (f *Filter) FillRatio() float64 {
	return float64(f.set.Load()) / float64(numBits)
}

// Reset clears the filter. Only the periodic cleanup tick calls this, and
// only after repopulating from the authoritative table — removal mid-flight
// would reopen the false-negative hole Add()/MayContain() are built to avoid.
func (f *Filter) Reset() {
	for i := range f.words {
		f.words[i].Store(0)
	}

	f.set.Store(0)
}

// bitIndex derives the i-th of numHashes independent bit positions from a
// single 64-bit hash by rotation.
func bitIndex(h uint64, i int) uint64 {
	rotated := bits.RotateLeft64(h, i*21+1)

	return rotated % numBits
}

// hash64 is a cheap 64-bit avalanche hash (MurmurHash3 fmix64 finalizer) over the
// 32-bit address, chosen for speed on the hot path over cryptographic
// hashes.
func hash64(addr ids.Addr) uint64 {
	x := uint64(addr)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33

	return x
}

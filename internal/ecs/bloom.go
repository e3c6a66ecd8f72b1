package ecs

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// Bloom filter parameters fixed at compile time. The
// design assumes a small number of distinct component types.
const (
	bloomHashCount = 6
	bloomTargetFPR = 0.01
	bloomCapacity  = 100
)

// bloomBits is the number of bits in a mask, derived from HASH_COUNT,
// TARGET_RATE and CAPACITY: bits(n) = ceil(-k*n / ln(1 - p^(1/k))).
var bloomBits = computeBloomBits(bloomCapacity)

func computeBloomBits(n int) int {
	k := float64(bloomHashCount)
	p := bloomTargetFPR
	denom := math.Log(1 - math.Pow(p, 1/k))
	bits := math.Ceil(-k * float64(n) / denom)
	return int(bits)
}

// Mask is an archetype bloom mask: the OR of bloom(T) for every
// component type T in an entity's archetype. A plain uint64 would cap
// out at 64 set bits worth of collision resistance well before
// CAPACITY=100 distinct types are registered, so the mask is backed by a
// slice of uint64 words sized to bloomBits.
type Mask []uint64

func newMask() Mask {
	words := (bloomBits + 63) / 64
	return make(Mask, words)
}

// set turns on bit i of the mask (in place) and returns the receiver.
func (m Mask) set(i int) Mask {
	m[i/64] |= 1 << uint(i%64)
	return m
}

// Merge returns m1 | m2 without mutating either argument.
func Merge(m1, m2 Mask) Mask {
	out := newMask()
	for i := range out {
		var a, b uint64
		if i < len(m1) {
			a = m1[i]
		}
		if i < len(m2) {
			b = m2[i]
		}
		out[i] = a | b
	}
	return out
}

// Contains reports whether every bit set in sub is also set in m, i.e.
// (m & sub) == sub — the "all_of" mask predicate.
func (m Mask) Contains(sub Mask) bool {
	for i, w := range sub {
		var mw uint64
		if i < len(m) {
			mw = m[i]
		}
		if mw&w != w {
			return false
		}
	}
	return true
}

// Intersects reports whether (m & other) != 0 — the "any_of" mask
// predicate.
func (m Mask) Intersects(other Mask) bool {
	for i, w := range other {
		var mw uint64
		if i < len(m) {
			mw = m[i]
		}
		if mw&w != 0 {
			return true
		}
	}
	return false
}

// Disjoint reports whether (m & other) == 0 — the "none_of" mask
// predicate.
func (m Mask) Disjoint(other Mask) bool {
	return !m.Intersects(other)
}

// Key renders the mask as a comparable map key for the archetype index
// (aindex buckets entities by exact mask value).
func (m Mask) Key() string {
	buf := make([]byte, 0, len(m)*8)
	for _, w := range m {
		buf = append(buf,
			byte(w), byte(w>>8), byte(w>>16), byte(w>>24),
			byte(w>>32), byte(w>>40), byte(w>>48), byte(w>>56))
	}
	return string(buf)
}

// BloomOf computes the bloom mask for a registered component type. The
// term hashed is (name, events): archetype identity ties to the type's
// declared handler contract, not to its memory layout or property
// schema, so two types with the same alias and event list but
// different properties intentionally collide in the bloom filter.
func BloomOf(name TypeID, events []EventName) Mask {
	m := newMask()
	base := []byte(name)
	for _, ev := range events {
		base = append(base, '\x00')
		base = append(base, []byte(ev)...)
	}
	for i := 0; i < bloomHashCount; i++ {
		h := hashTerm(base, i)
		m = m.set(int(h % uint64(bloomBits)))
	}
	return m
}

// hashTerm is a stable, portable (cross-run deterministic) non-
// cryptographic hash: xxhash seeded per round by appending the round
// index to the term bytes.
func hashTerm(term []byte, round int) uint64 {
	buf := make([]byte, len(term)+1)
	copy(buf, term)
	buf[len(term)] = byte(round)
	return xxhash.Sum64(buf)
}

package ecs

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
)

// refCounter hands out process-unique opaque tokens for entity hashing.
// It never resets, so two entities created in the same process never
// collide on ref even across Context lifetimes.
var refCounter uint64

func nextRef() uint64 {
	return atomic.AddUint64(&refCounter, 1)
}

// nodeID stands in for "the running node" in the hash tuple
// (node, context, world, ref). A single-process runtime has exactly
// one node; it is fixed at package init so every entity hash in this
// process is computed against the same node value.
var nodeID = nextRef()

// Entity is a value record: an opaque, context-scoped identifier plus its
// 160-bit identity hash. Entities are created by a Context and never
// outlive it.
type Entity struct {
	ref     uint64
	hash    Hash
	name    string
	parent  *Entity
	context uint64 // opaque handle of the owning Context
	world   uint64 // opaque handle of the owning World, 0 if none
}

// newEntity computes an Entity's hash from (node, context, world, ref)
// via SHA-1.
func newEntity(contextHandle uint64, worldHandle uint64, name string, parent *Entity) Entity {
	ref := nextRef()

	var buf [32]byte
	binary.BigEndian.PutUint64(buf[0:8], nodeID)
	binary.BigEndian.PutUint64(buf[8:16], contextHandle)
	binary.BigEndian.PutUint64(buf[16:24], worldHandle)
	binary.BigEndian.PutUint64(buf[24:32], ref)

	sum := sha1.Sum(buf[:])

	return Entity{
		ref:     ref,
		hash:    Hash(sum),
		name:    name,
		parent:  parent,
		context: contextHandle,
		world:   worldHandle,
	}
}

// Hash returns the entity's 160-bit identity. Two entities are Equal iff
// their hashes are equal.
func (e Entity) Hash() Hash { return e.hash }

// Name returns the entity's name and whether it has one.
func (e Entity) Name() (string, bool) { return e.name, e.name != "" }

// Named reports whether the entity was given a name at creation.
func (e Entity) Named() bool { return e.name != "" }

// Parent returns the entity this one was cloned from, if any.
func (e Entity) Parent() (Entity, bool) {
	if e.parent == nil {
		return Entity{}, false
	}
	return *e.parent, true
}

// Child reports whether this entity was produced by cloning another.
func (e Entity) Child() bool { return e.parent != nil }

// Equal reports whether two entities share the same identity hash.
func (e Entity) Equal(other Entity) bool { return e.hash == other.hash }

// Colocated reports whether two entities belong to the same Context.
func (e Entity) Colocated(other Entity) bool { return e.context == other.context }

// String renders the hash as hex, for logging and map keys in error
// messages. Non-normative: callers must not parse this format.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

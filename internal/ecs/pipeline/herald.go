// Package pipeline implements the Herald -> Envoy -> Scribe dispatch
// topology: a producer that partitions events by entity,
// one Envoy per partition enforcing per-entity FIFO via a busy/waiting
// map, and one Scribe per partition supervising transient per-batch
// workers under a bounded max_demand.
package pipeline

import (
	"github.com/cespare/xxhash/v2"

	"github.com/loomweave/ecsruntime/internal/ecs"
)

// Herald is the single per-World producer. It has no queue of its own:
// Go's buffered channels already give the FIFO-plus-demand behavior the
// spec's explicit queue/demand-counter achieves by hand, so Herald only
// needs to compute the destination partition and forward.
type Herald struct {
	partitions []*Envoy
}

// NewHerald builds a Herald routing across envoys, indexed by
// partition number.
func NewHerald(envoys []*Envoy) *Herald {
	return &Herald{partitions: envoys}
}

// Notify routes ev to its partition's Envoy. The partition function is
// stable_hash(entity.hash) mod P, deterministic across runs for the
// same entity hash.
func (h *Herald) Notify(ev ecs.Event) {
	h.partitions[Partition(ev.Entity.Hash(), len(h.partitions))].Enqueue(ev)
}

// Partition computes the deterministic partition index for an entity
// hash across p partitions.
func Partition(hash ecs.Hash, p int) int {
	if p <= 1 {
		return 0
	}
	return int(xxhash.Sum64(hash[:]) % uint64(p))
}

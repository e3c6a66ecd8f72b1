package pipeline

import (
	"sync"

	"github.com/loomweave/ecsruntime/internal/ecs"
)

// Batch is one downstream delivery for one entity: either an event
// enqueued while the entity's lane was idle, or the head group of its
// waiting queue. Each Enqueue call forms its own group, so a batch
// carries one event.
type Batch struct {
	Entity ecs.Entity
	Events []ecs.Event
}

// lane is the per-entity bookkeeping the Envoy's busy/waiting map keeps
//: busy means a batch for this entity is currently
// downstream; waiting holds the groups queued behind it, in arrival
// order.
type lane struct {
	busy    bool
	waiting [][]ecs.Event
}

// Envoy is the per-partition producer/consumer stage. It groups
// incoming events by entity and guarantees at most one batch per entity
// is in flight downstream at any time — the mechanism that gives
// per-entity FIFO while letting unrelated entities run in parallel.
type Envoy struct {
	mu    sync.Mutex
	lanes map[ecs.Hash]*lane
	wg    sync.WaitGroup // tracks currently-live lanes, so Close can drain before closing out

	out chan Batch
}

// NewEnvoy creates an Envoy with the given downstream channel capacity
// (the Go-idiomatic stand-in for the spec's demand counter: a bounded
// channel already blocks the producer once the consumer falls behind).
func NewEnvoy(bufferSize int) *Envoy {
	return &Envoy{
		lanes: make(map[ecs.Hash]*lane),
		out:   make(chan Batch, bufferSize),
	}
}

// Out is the channel the Envoy's Scribe consumes batches from.
func (e *Envoy) Out() <-chan Batch { return e.out }

// Enqueue adds ev to its entity's lane: emitted immediately if the lane
// is idle, otherwise appended to the waiting queue.
func (e *Envoy) Enqueue(ev ecs.Event) {
	e.mu.Lock()
	l, ok := e.lanes[ev.Entity.Hash()]
	if !ok {
		l = &lane{}
		e.lanes[ev.Entity.Hash()] = l
		e.wg.Add(1)
	}
	if !l.busy {
		l.busy = true
		e.mu.Unlock()
		e.out <- Batch{Entity: ev.Entity, Events: []ecs.Event{ev}}
		return
	}
	l.waiting = append(l.waiting, []ecs.Event{ev})
	e.mu.Unlock()
}

// Ack is the in-band signal a Scribe worker sends on completion: pop the
// head of the entity's waiting queue and emit it, or drop the lane if
// the queue is empty.
func (e *Envoy) Ack(entity ecs.Entity) {
	e.mu.Lock()
	l, ok := e.lanes[entity.Hash()]
	if !ok {
		e.mu.Unlock()
		return
	}
	if len(l.waiting) == 0 {
		delete(e.lanes, entity.Hash())
		e.mu.Unlock()
		e.wg.Done()
		return
	}
	next := l.waiting[0]
	l.waiting = l.waiting[1:]
	e.mu.Unlock()
	e.out <- Batch{Entity: entity, Events: next}
}

// Close waits for every currently-live lane to drain through its normal
// Ack path — so no worker's deferred Ack can send on out after it's
// closed — and only then closes the downstream channel. Callers must
// stop calling Enqueue beforehand.
func (e *Envoy) Close() {
	e.wg.Wait()
	close(e.out)
}

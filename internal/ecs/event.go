package ecs

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// Event is immutable except for Args over the lifetime of a dispatch.
// Handlers may transform Args but must not mutate Name, World, Entity,
// Timestamp or Handlers — doing so is caught as drift.
type Event struct {
	Name      EventName
	World     uint64
	Entity    Entity
	Timestamp int64 // wall-clock Unix nanoseconds (not a monotonic reading)
	Args      Properties
	Handlers  []TypeID
}

// NewEvent builds an Event stamped with time.Now().UnixNano() and the
// handler order resolved by World.send.
func NewEvent(name EventName, world uint64, entity Entity, args Properties, handlers []TypeID) Event {
	return Event{
		Name:      name,
		World:     world,
		Entity:    entity,
		Timestamp: time.Now().UnixNano(),
		Args:      args,
		Handlers:  handlers,
	}
}

// checksum hashes every field except Args, so it changes iff a handler
// mutated a field it wasn't supposed to.
func (e Event) checksum() uint64 {
	digest := xxhash.New()
	_, _ = digest.WriteString(string(e.Name))
	var buf [16]byte
	putUint64(buf[0:8], e.World)
	putUint64(buf[8:16], uint64(e.Timestamp))
	_, _ = digest.Write(buf[:])
	_, _ = digest.Write(e.Entity.hash[:])
	for _, h := range e.Handlers {
		_, _ = digest.WriteString(string(h))
		_, _ = digest.Write([]byte{0})
	}
	return digest.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// checkDrift panics with the offending handler named in the message if
// before and after disagree: the event drifted during processing.
func checkDrift(handler TypeID, before, after Event) {
	if before.checksum() != after.checksum() {
		Fatalf("event drifted during processing by handler %q", handler)
	}
}

// CheckDrift is the exported entry point pipeline workers call after
// every handler invocation.
func CheckDrift(handler TypeID, before, after Event) {
	checkDrift(handler, before, after)
}

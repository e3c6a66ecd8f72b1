// Package ecs implements the storage core, registry and event dispatch
// pipeline of an Entity-Component-System runtime. Entities are opaque,
// context-scoped identifiers; components are plain data records attached
// one-per-type to an entity; behavior is expressed by dispatching named
// events to entities, which route to the components registered as
// handlers for that event name.
package ecs

// TypeID identifies a registered component type. It is the lower-cased
// alias under which the type was registered with the Registry (§4.4),
// used as the key for every index that is keyed "by component type".
type TypeID string

// EventName identifies a dispatched event. Two event names are equal iff
// byte-equal.
type EventName string

// Hash is an entity's 160-bit identity: SHA-1 over
// (node, context, world, ref). Two entities are equal iff their hashes
// are equal.
type Hash [20]byte

// Decision represents a handler's verdict on whether to keep propagating
// an event to the next handler in line.
type Decision int

const (
	// Continue lets dispatch proceed to the next handler for this event.
	Continue Decision = iota
	// Halt stops propagation of this event to further handlers, without
	// affecting the rest of the batch.
	Halt
)

func (d Decision) String() string {
	if d == Halt {
		return "halt"
	}
	return "continue"
}

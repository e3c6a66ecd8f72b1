package ecs

// Hook names the out-of-band callback an external Component definition
// may be notified with after a successful mutation.
type Hook int

const (
	HookAttached Hook = iota
	HookUpdated
	HookRemoved
)

// Properties is the plain-data payload of a component instance, external
// to this core: the property DSL that types/validates/constrains these
// values (min/max/regex/enumerated) is an external collaborator. The
// storage core only ever treats a component's payload as an opaque
// value it can copy, merge and hand to a registered handler.
type Properties map[string]interface{}

// HandlerFunc is the optional per-event behavior a component type may
// register. It returns whether dispatch should continue to the next
// handler and the (possibly transformed) event args.
type HandlerFunc func(name EventName, evt *Event) (Decision, Properties)

// HookFunc is the optional out-of-band callback invoked after a
// successful attach/update/remove of a component instance on an entity.
type HookFunc func(hook Hook, entity Entity, value Properties)

// Definition is the component capability contract external component
// authors must satisfy: a stable alias, the finite list of
// events it handles, constructors that validate/normalize raw
// properties, and the two optional callbacks.
type Definition struct {
	// Name is the alias used as the external key for overrides, prefab
	// declarations and the Registry catalogue: a lower-cased identifier,
	// by convention the underscored last segment of the Go type name.
	Name TypeID

	// Events is the finite list of event names this type handles. It is
	// part of the type's bloom identity.
	Events []EventName

	// New validates and casts props into a component value, failing if
	// props don't satisfy the (externally defined) property schema.
	New func(props Properties) (Properties, error)

	// Cast normalizes raw untyped input into a validated property map,
	// independent of construction (e.g. for prefab override merging).
	Cast func(raw map[string]interface{}) (Properties, error)

	// HandleEvent is optional; nil means this type never handles events
	// (it may still be listed in an entity's archetype for filtering).
	HandleEvent HandlerFunc

	// OnHook is optional; nil means no out-of-band notification.
	OnHook HookFunc
}

// bloom returns this type's archetype bloom mask, derived from (Name,
// Events).
func (d Definition) bloom() Mask {
	return BloomOf(d.Name, d.Events)
}

// handles reports whether this type declares ev in its Events list.
func (d Definition) handles(ev EventName) bool {
	for _, e := range d.Events {
		if e == ev {
			return true
		}
	}
	return false
}

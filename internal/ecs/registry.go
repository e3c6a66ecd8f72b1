package ecs

import (
	"sync"
	"sync/atomic"
)

// eventLookup maps an event name to the component types that handle it,
// in registration order. It is rebuilt wholesale and swapped atomically
// on every RegisterComponents call so dispatch reads are lock-free.
type eventLookup struct {
	handlers map[EventName][]TypeID
}

// PrefabSpec is the raw, pre-resolution description of a prefab: its
// name, the parent prefabs it extends, and the component property
// overlays it declares.
type PrefabSpec struct {
	Name       string
	Extends    []string
	Components map[TypeID]map[string]interface{}
}

// Registry is the process-wide (but not process-singleton: callers
// instantiate their own) component/prefab catalogue. It keeps the
// ordered component catalogue, the per-event handler lookup, and a
// dedicated "Prefabs" Context.
type Registry struct {
	mu sync.Mutex // guards catalogue/order mutation; reads go through the atomic snapshot

	catalogue map[TypeID]Definition
	order     []TypeID // registration order, for deterministic iteration

	lookup atomic.Pointer[eventLookup]

	prefabs     *Context
	prefabOrder []string // registration order, for PrefabNames
}

// NewRegistry creates an empty Registry with its own dedicated Prefabs
// Context.
func NewRegistry() *Registry {
	r := &Registry{
		catalogue: make(map[TypeID]Definition),
		prefabs:   NewContext("Prefabs"),
	}
	r.lookup.Store(&eventLookup{handlers: make(map[EventName][]TypeID)})
	return r
}

// Prefabs returns the Registry's dedicated prefab Context.
func (r *Registry) Prefabs() *Context { return r.prefabs }

// Definitions returns every registered component type's Definition, in
// registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Definition, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.catalogue[t])
	}
	return out
}

// Definition looks up a single registered type's Definition.
func (r *Registry) Definition(typ TypeID) (Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.catalogue[typ]
	return d, ok
}

// Bloom returns the registered type's archetype mask.
func (r *Registry) Bloom(typ TypeID) (Mask, bool) {
	d, ok := r.Definition(typ)
	if !ok {
		return nil, false
	}
	return d.bloom(), true
}

// HandlersFor returns the component types that handle ev, in
// registration order. Safe to call concurrently with
// RegisterComponents: it reads the current snapshot without locking.
func (r *Registry) HandlersFor(ev EventName) []TypeID {
	snap := r.lookup.Load()
	return snap.handlers[ev]
}

// RegisterComponents adds defs to the catalogue. Each alias must be
// unique; a duplicate fails with CodeAlreadyRegistered and none of the
// batch is applied. The event lookup is updated by appending — never
// prepending — to preserve handler order across batches (P6).
func (r *Registry) RegisterComponents(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[TypeID]struct{}, len(defs))
	for _, d := range defs {
		if _, exists := r.catalogue[d.Name]; exists {
			return newErr("register_components", CodeAlreadyRegistered, Hash{}, d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return newErr("register_components", CodeAlreadyRegistered, Hash{}, d.Name)
		}
		seen[d.Name] = struct{}{}
	}

	for _, d := range defs {
		r.catalogue[d.Name] = d
		r.order = append(r.order, d.Name)
	}

	old := r.lookup.Load()
	next := &eventLookup{handlers: make(map[EventName][]TypeID, len(old.handlers))}
	for ev, types := range old.handlers {
		next.handlers[ev] = append([]TypeID(nil), types...)
	}
	for _, d := range defs {
		for _, ev := range d.Events {
			next.handlers[ev] = append(next.handlers[ev], d.Name)
		}
	}
	r.lookup.Store(next)
	return nil
}

// Reset clears the catalogue, the event lookup and the Prefabs Context.
// Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.catalogue = make(map[TypeID]Definition)
	r.order = nil
	r.mu.Unlock()
	r.lookup.Store(&eventLookup{handlers: make(map[EventName][]TypeID)})
	r.prefabs.Clear()
	r.mu.Lock()
	r.prefabOrder = nil
	r.mu.Unlock()
}

// Clone implements the clone algorithm shared by World.Clone and prefab
// instantiation (Registry.Spawn): fetch the source entity's components,
// convert to {type -> props}, deep-merge caller overrides one level
// onto each affected type's existing properties (override wins per
// key, unmentioned keys survive from source), rebuild every component
// through its Definition's Cast, and assign the merged list to a
// freshly created entity in dst with parent = source.
func (r *Registry) Clone(src *Context, source Entity, dst *Context, name string, overrides map[TypeID]map[string]interface{}) (Entity, error) {
	_, comps, ok := src.Fetch(source)
	if !ok {
		return Entity{}, newErr("clone", CodeEntityNotFound, source.hash, "")
	}

	merged := make(map[TypeID]map[string]interface{}, len(comps))
	for _, c := range comps {
		merged[c.Type] = map[string]interface{}(c.Value)
	}
	for typ, raw := range overrides {
		merged[typ] = deepMergeOneLevel(merged[typ], raw)
	}

	final := make([]Component, 0, len(merged))
	for typ, props := range merged {
		d, ok := r.Definition(typ)
		if !ok {
			Fatalf("clone: unknown component alias %q in overrides", typ)
		}
		built, err := d.Cast(props)
		if err != nil {
			Fatalf("clone: %s: %v", typ, err)
		}
		final = append(final, Component{Type: d.Name, Mask: d.bloom(), Value: built})
	}

	entity, err := dst.Create(CreateOptions{Name: name, Parent: &source})
	if err != nil {
		return Entity{}, err
	}
	if err := dst.Assign(entity, final); err != nil {
		return Entity{}, err
	}
	return entity, nil
}

package ecs

import (
	"github.com/loomweave/ecsruntime/internal/ecs/pipeline"
)

// WorldConfig is the set of recognised World construction options.
type WorldConfig struct {
	// Partitions is the pipeline's fan-out degree; 0 means available
	// parallelism.
	Partitions int
	// MaxEvents bounds the per-partition in-flight batch count; 0 means
	// 1000.
	MaxEvents int
}

// World is the façade that owns one Context and one dispatch pipeline.
type World struct {
	registry *Registry
	ctx      *Context
	pipe     *pipeline.Pipeline
	metrics  Metrics
}

// NewWorld builds a World with its own Context and Registry-backed
// pipeline.
func NewWorld(registry *Registry, cfg WorldConfig) *World {
	ctx := NewContext("world")
	metrics := NewMetrics()
	_ = metrics.Start()
	pipe := pipeline.NewWithReporter(pipeline.Config{Partitions: cfg.Partitions, MaxEvents: cfg.MaxEvents}, registry, metrics)
	return &World{registry: registry, ctx: ctx, pipe: pipe, metrics: metrics}
}

// Metrics returns this World's instrumentation collector.
func (w *World) Metrics() Metrics { return w.metrics }

// Create allocates a bare entity with no components.
func (w *World) Create(name string) (Entity, error) {
	return w.ctx.Create(CreateOptions{Name: name})
}

// CreatePrefab instantiates prefabName with overrides applied on top of
// its resolved (extends-merged) component set.
func (w *World) CreatePrefab(prefabName, name string, overrides map[TypeID]map[string]interface{}) (Entity, error) {
	return w.registry.Spawn(w.ctx, prefabName, name, overrides)
}

// Clone duplicates source into this World, with overrides resolved
// through the Registry's catalogue and applied on top of the source's
// existing components.
func (w *World) Clone(source Entity, name string, overrides map[TypeID]map[string]interface{}) (Entity, error) {
	return w.registry.Clone(w.ctx, source, w.ctx, name, overrides)
}

// Emplace builds a new component of typ from raw via the Registry's
// Definition.New and attaches it to entity, notifying that Definition's
// OnHook with HookAttached on success.
func (w *World) Emplace(entity Entity, typ TypeID, raw map[string]interface{}) error {
	d, ok := w.registry.Definition(typ)
	if !ok {
		Fatalf("emplace: unregistered component %q", typ)
	}
	props, err := d.New(raw)
	if err != nil {
		return err
	}
	comp := Component{Type: d.Name, Mask: d.bloom(), Value: props}
	if err := w.ctx.Emplace(entity, comp); err != nil {
		return err
	}
	if d.OnHook != nil {
		d.OnHook(HookAttached, entity, props)
	}
	return nil
}

// Replace rebuilds typ's component from raw via Cast and overwrites
// entity's existing one, notifying OnHook with HookUpdated on success.
func (w *World) Replace(entity Entity, typ TypeID, raw map[string]interface{}) error {
	d, ok := w.registry.Definition(typ)
	if !ok {
		Fatalf("replace: unregistered component %q", typ)
	}
	props, err := d.Cast(raw)
	if err != nil {
		return err
	}
	comp := Component{Type: d.Name, Mask: d.bloom(), Value: props}
	if err := w.ctx.Replace(entity, comp); err != nil {
		return err
	}
	if d.OnHook != nil {
		d.OnHook(HookUpdated, entity, props)
	}
	return nil
}

// Erase detaches typ from entity (or every attached component, when typ
// is ""), notifying each affected Definition's OnHook with HookRemoved
// using the value it held just before removal. This is the call site
// that frees the scripted component's per-entity Lua VM.
func (w *World) Erase(entity Entity, typ TypeID) error {
	_, comps, ok := w.ctx.Fetch(entity)
	if !ok {
		return newErr("erase", CodeEntityNotFound, entity.hash, typ)
	}
	removed := make([]Component, 0, 1)
	for _, c := range comps {
		if typ == "" || c.Type == typ {
			removed = append(removed, c)
		}
	}

	if err := w.ctx.Erase(entity, typ); err != nil {
		return err
	}
	for _, c := range removed {
		if d, ok := w.registry.Definition(c.Type); ok && d.OnHook != nil {
			d.OnHook(HookRemoved, entity, c.Value)
		}
	}
	return nil
}

// Destroy removes entity and all of its components, then notifies each
// attached component type's OnHook with HookRemoved. This is
// the call site that frees the scripted component's per-entity Lua VM
// when the entity itself goes away.
func (w *World) Destroy(entity Entity) error {
	_, comps, _ := w.ctx.Fetch(entity)

	if err := w.ctx.Destroy(entity); err != nil {
		return err
	}
	for _, c := range comps {
		if d, ok := w.registry.Definition(c.Type); ok && d.OnHook != nil {
			d.OnHook(HookRemoved, entity, c.Value)
		}
	}
	return nil
}

// Fetch returns entity plus its attached components.
func (w *World) Fetch(entity Entity) (Entity, []Component, bool) {
	return w.ctx.Fetch(entity)
}

// ListFormat selects List's output shape.
type ListFormat int

const (
	ListAsSlice ListFormat = iota
	ListAsMap
)

// List returns every live entity, either as a flat slice or keyed by
// name (entities without a name are omitted from the map form).
func (w *World) List(format ListFormat) interface{} {
	snaps := w.ctx.Entities()
	switch format {
	case ListAsMap:
		out := make(map[string]Entity, len(snaps))
		for _, s := range snaps {
			if name, ok := s.Entity.Name(); ok {
				out[name] = s.Entity
			}
		}
		return out
	default:
		out := make([]Entity, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, s.Entity)
		}
		return out
	}
}

// All, Match, AtLeast, AtMost, Between and Exists are direct query
// passthroughs to the underlying Context.
func (w *World) All(typ TypeID) []EntityComponent { return w.ctx.All(typ) }

func (w *World) Match(typ TypeID, properties Properties) []EntityComponent {
	return w.ctx.Match(typ, properties)
}

func (w *World) AtLeast(typ TypeID, prop string, v float64) []EntityComponent {
	return w.ctx.AtLeast(typ, prop, v)
}

func (w *World) AtMost(typ TypeID, prop string, v float64) []EntityComponent {
	return w.ctx.AtMost(typ, prop, v)
}

func (w *World) Between(typ TypeID, prop string, lo, hi float64) []EntityComponent {
	return w.ctx.Between(typ, prop, lo, hi)
}

func (w *World) Exists(entity Entity) bool { return w.ctx.Exists(entity) }

// Send looks up entity's components, intersects their types with ev's
// registered handler order to produce the handler list, builds an
// Event and hands it to the pipeline's Herald.
func (w *World) Send(entity Entity, name EventName, args Properties) error {
	_, comps, ok := w.ctx.Fetch(entity)
	if !ok {
		return newErr("send", CodeEntityNotFound, entity.hash, "")
	}
	present := make(map[TypeID]struct{}, len(comps))
	for _, c := range comps {
		present[c.Type] = struct{}{}
	}

	var handlers []TypeID
	for _, typ := range w.registry.HandlersFor(name) {
		if _, ok := present[typ]; ok {
			handlers = append(handlers, typ)
		}
	}

	ev := NewEvent(name, w.ctx.Handle(), entity, args, handlers)
	w.metrics.RecordCounter("events_sent", 1)
	w.metrics.RecordGauge("entities", float64(len(w.ctx.Entities())))
	w.pipe.Send(ev)
	return nil
}

// Context returns the raw Context handle for dirty reads (the
// context() escape hatch).
func (w *World) Context() *Context { return w.ctx }

// Atomic runs fn inside the World's writer task, for compound atomic
// writes.
func (w *World) Atomic(fn func(w Writer)) { w.ctx.Atomic(fn) }

// Registry returns this World's component/prefab catalogue.
func (w *World) Registry() *Registry { return w.registry }

// Close stops the World's pipeline, metrics collector and Context
// writer goroutine.
func (w *World) Close() error {
	err := w.pipe.Close()
	_ = w.metrics.Stop()
	w.ctx.Close()
	return err
}

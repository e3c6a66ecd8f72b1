package ecs

import (
	"sync"
	"time"

	"github.com/loomweave/ecsruntime/internal/ecs/storage"
)

// Component is a typed, bloom-addressable component value: the
// (component-type, mask, payload) triple the storage core treats as a
// single attachable unit. Type and Mask are resolved once by whichever
// layer constructs components from a Definition (the Registry); the
// storage core never looks either up itself, so it stays decoupled from
// component registration.
type Component struct {
	Type  TypeID
	Mask  Mask
	Value Properties
}

// entityRecord is the mtable row: an entity plus the exact set of
// component types currently attached (I2) and its metadata.
type entityRecord struct {
	entity    Entity
	types     map[TypeID]struct{}
	metadata  Properties
	createdAt time.Time
}

// command is a single writer-task job: fn runs under the table lock,
// then done is closed to release the blocked caller. Any call-style
// interaction with the Context writer task suspends the caller until
// the writer replies.
type command struct {
	fn   func()
	done chan struct{}
}

// Context is the storage core: it owns mtable, ctable,
// tindex, nindex and aindex and keeps invariants I1-I6 under every
// mutation. All writes are serialized through one writer goroutine;
// reads bypass it and touch the tables directly (dirty by design).
type Context struct {
	handle uint64
	name   string

	mu sync.RWMutex

	mtable map[Hash]*entityRecord
	ctable map[Hash]map[TypeID]Properties
	tindex map[TypeID]*storage.SparseSet[Hash, Properties]
	nindex map[string]Hash

	// aindex buckets entities by exact archetype mask; each bucket is a
	// multimap (hash-keyed vector of rows). amask tracks each live
	// entity's current bucket key so a mutation
	// can remove it from its old bucket in O(1) before adding it to the
	// new one, preserving I5 (exactly one (mask, hash) row per entity).
	aindex     map[string][]Hash
	aindexMask map[string]Mask
	amask      map[Hash]string

	// typeMasks records each component type's bloom mask every time a
	// component of that type is attached via Emplace/Assign, so Erase can recompute an
	// entity's archetype mask after dropping one type without the
	// caller re-supplying every remaining type's mask.
	typeMasks map[TypeID]Mask

	cmdCh  chan command
	closed bool
}

// NewContext creates an empty Context. name is cosmetic (e.g. "Prefabs"
// for the Registry's dedicated prefab Context) and plays no role in any
// invariant.
func NewContext(name string) *Context {
	c := &Context{
		handle:     nextRef(),
		name:       name,
		mtable:     make(map[Hash]*entityRecord),
		ctable:     make(map[Hash]map[TypeID]Properties),
		tindex:     make(map[TypeID]*storage.SparseSet[Hash, Properties]),
		nindex:     make(map[string]Hash),
		aindex:     make(map[string][]Hash),
		aindexMask: make(map[string]Mask),
		amask:      make(map[Hash]string),
		typeMasks:  make(map[TypeID]Mask),
		cmdCh:      make(chan command),
	}
	go c.run()
	return c
}

// Handle returns an opaque identifier for this Context, stable for its
// lifetime and distinct across Contexts in the same process.
func (c *Context) Handle() uint64 { return c.handle }

func (c *Context) run() {
	for cmd := range c.cmdCh {
		c.mu.Lock()
		cmd.fn()
		c.mu.Unlock()
		close(cmd.done)
	}
}

// call enqueues fn on the writer task and blocks until it has run.
func (c *Context) call(fn func()) {
	done := make(chan struct{})
	c.cmdCh <- command{fn: fn, done: done}
	<-done
}

// Writer exposes Context's mutating operations pre-authorized to run
// directly under the writer lock, without re-entering the command
// channel (which would deadlock: the writer goroutine would be blocked
// inside the very callback waiting for itself to dequeue the next
// command). Only Context.Atomic constructs one.
type Writer struct{ ctx *Context }

func (w Writer) Create(opts CreateOptions) (Entity, error)         { return w.ctx.createLocked(opts) }
func (w Writer) Emplace(entity Entity, comp Component) error       { return w.ctx.emplaceLocked(entity, comp) }
func (w Writer) Replace(entity Entity, comp Component) error       { return w.ctx.replaceLocked(entity, comp) }
func (w Writer) Erase(entity Entity, typ TypeID) error             { return w.ctx.eraseLocked(entity, typ) }
func (w Writer) Assign(entity Entity, comps []Component) error     { return w.ctx.assignLocked(entity, comps) }
func (w Writer) Patch(entity Entity, metadata Properties) error    { return w.ctx.patchLocked(entity, metadata) }
func (w Writer) Destroy(entity Entity) error                       { return w.ctx.destroyLocked(entity) }

// Atomic runs fn with a Writer bound to this Context's already-held
// writer lock, as one compound mutation — the World.context(fun)
// escape hatch, for callers that need more than one table mutation to
// appear atomic to readers.
func (c *Context) Atomic(fn func(w Writer)) {
	c.call(func() { fn(Writer{ctx: c}) })
}

// Close stops the writer goroutine. Callers must not invoke any mutating
// method afterwards.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.cmdCh)
}

// CreateOptions configures Context.Create.
type CreateOptions struct {
	Name   string
	Parent *Entity
}

// Create allocates a fresh entity bound to this Context. It fails with
// CodeNameAlreadyRegistered if opts.Name is set and already taken.
func (c *Context) Create(opts CreateOptions) (Entity, error) {
	var (
		entity Entity
		err    error
	)
	c.call(func() { entity, err = c.createLocked(opts) })
	return entity, err
}

// createLocked is Create's body; caller must already hold the writer
// lock (normally via c.call, or a Writer handed to Context.Atomic).
func (c *Context) createLocked(opts CreateOptions) (Entity, error) {
	if opts.Name != "" {
		if _, exists := c.nindex[opts.Name]; exists {
			return Entity{}, newErr("create", CodeNameAlreadyRegistered, Hash{}, "")
		}
	}

	entity := newEntity(c.handle, 0, opts.Name, opts.Parent)
	rec := &entityRecord{
		entity:    entity,
		types:     make(map[TypeID]struct{}),
		metadata:  Properties{},
		createdAt: time.Now(),
	}
	c.mtable[entity.hash] = rec
	c.ctable[entity.hash] = make(map[TypeID]Properties)

	if opts.Name != "" {
		c.nindex[opts.Name] = entity.hash
	}

	c.putArchetype(entity.hash, newMask())
	return entity, nil
}

// putArchetype moves hash into the bucket for mask, removing it from its
// previous bucket first. Holds I5: exactly one (mask, hash) row.
func (c *Context) putArchetype(hash Hash, mask Mask) {
	if oldKey, ok := c.amask[hash]; ok {
		c.removeFromBucket(oldKey, hash)
	}
	key := mask.Key()
	c.aindex[key] = append(c.aindex[key], hash)
	c.aindexMask[key] = mask
	c.amask[hash] = key
}

func (c *Context) removeFromBucket(key string, hash Hash) {
	rows := c.aindex[key]
	for i, h := range rows {
		if h == hash {
			rows[i] = rows[len(rows)-1]
			c.aindex[key] = rows[:len(rows)-1]
			break
		}
	}
	if len(c.aindex[key]) == 0 {
		delete(c.aindex, key)
		delete(c.aindexMask, key)
	}
}

// snapshot is the (entity, types, metadata) tuple Info/Lookup return.
type snapshot struct {
	Entity   Entity
	Types    []TypeID
	Metadata Properties
}

// Info returns the entity's current snapshot, or false if it doesn't
// exist.
func (c *Context) Info(entity Entity) (snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.infoLocked(entity.hash)
}

func (c *Context) infoLocked(hash Hash) (snapshot, bool) {
	rec, ok := c.mtable[hash]
	if !ok {
		return snapshot{}, false
	}
	types := make([]TypeID, 0, len(rec.types))
	for t := range rec.types {
		types = append(types, t)
	}
	meta := make(Properties, len(rec.metadata)+1)
	for k, v := range rec.metadata {
		meta[k] = v
	}
	meta["created_at"] = rec.createdAt
	return snapshot{Entity: rec.entity, Types: types, Metadata: meta}, true
}

// Lookup resolves a name to its entity snapshot.
func (c *Context) Lookup(name string) (snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.nindex[name]
	if !ok {
		return snapshot{}, false
	}
	return c.infoLocked(hash)
}

// Exists reports whether entity is currently live.
func (c *Context) Exists(entity Entity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.mtable[entity.hash]
	return ok
}

// ExistsName reports whether name currently resolves to a live entity.
func (c *Context) ExistsName(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.nindex[name]
	return ok
}

// Fetch returns the entity plus all of its attached components.
func (c *Context) Fetch(entity Entity) (Entity, []Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.mtable[entity.hash]
	if !ok {
		return Entity{}, nil, false
	}
	row := c.ctable[entity.hash]
	comps := make([]Component, 0, len(row))
	for t, v := range row {
		comps = append(comps, Component{Type: t, Mask: c.typeMasks[t], Value: v})
	}
	return rec.entity, comps, true
}

// Emplace attaches c to entity. Fails with CodeEntityNotFound if entity
// doesn't exist, or CodeAlreadyInserted if a component of that type is
// already attached (I6: at most one component per type per entity).
func (c *Context) Emplace(entity Entity, comp Component) error {
	var err error
	c.call(func() { err = c.emplaceLocked(entity, comp) })
	return err
}

func (c *Context) emplaceLocked(entity Entity, comp Component) error {
	rec, ok := c.mtable[entity.hash]
	if !ok {
		return newErr("emplace", CodeEntityNotFound, entity.hash, comp.Type)
	}
	if _, exists := rec.types[comp.Type]; exists {
		return newErr("emplace", CodeAlreadyInserted, entity.hash, comp.Type)
	}

	rec.types[comp.Type] = struct{}{}
	c.ctable[entity.hash][comp.Type] = comp.Value
	c.typeMasks[comp.Type] = comp.Mask

	set, ok := c.tindex[comp.Type]
	if !ok {
		set = storage.New[Hash, Properties]()
		c.tindex[comp.Type] = set
	}
	_ = set.Add(entity.hash, comp.Value)

	oldMask := c.aindexMask[c.amask[entity.hash]]
	c.putArchetype(entity.hash, Merge(oldMask, comp.Mask))
	return nil
}

// Replace overwrites the component of comp.Type already attached to
// entity. Fails CodeComponentNotFound if that type isn't present. The
// archetype mask is unchanged (the type set doesn't change).
func (c *Context) Replace(entity Entity, comp Component) error {
	var err error
	c.call(func() { err = c.replaceLocked(entity, comp) })
	return err
}

func (c *Context) replaceLocked(entity Entity, comp Component) error {
	rec, ok := c.mtable[entity.hash]
	if !ok {
		return newErr("replace", CodeEntityNotFound, entity.hash, comp.Type)
	}
	if _, exists := rec.types[comp.Type]; !exists {
		return newErr("replace", CodeComponentNotFound, entity.hash, comp.Type)
	}
	c.ctable[entity.hash][comp.Type] = comp.Value
	c.tindex[comp.Type].Set(entity.hash, comp.Value)
	return nil
}

// Erase removes a single component type from entity, or every component
// (resetting its mask to 0) when typ is "".
func (c *Context) Erase(entity Entity, typ TypeID) error {
	var err error
	c.call(func() { err = c.eraseLocked(entity, typ) })
	return err
}

func (c *Context) eraseLocked(entity Entity, typ TypeID) error {
	rec, ok := c.mtable[entity.hash]
	if !ok {
		return newErr("erase", CodeEntityNotFound, entity.hash, typ)
	}

	if typ == "" {
		for t := range rec.types {
			c.removeComponentLocked(entity.hash, t)
		}
		c.putArchetype(entity.hash, newMask())
		return nil
	}

	if _, exists := rec.types[typ]; !exists {
		return newErr("erase", CodeComponentNotFound, entity.hash, typ)
	}
	c.removeComponentLocked(entity.hash, typ)

	newMaskVal := newMask()
	for t := range rec.types {
		newMaskVal = Merge(newMaskVal, c.typeMasks[t])
	}
	c.putArchetype(entity.hash, newMaskVal)
	return nil
}

// removeComponentLocked drops typ from entity's ctable/tindex/types.
// Caller must already hold the writer lock and update the archetype
// bucket afterwards.
func (c *Context) removeComponentLocked(hash Hash, typ TypeID) {
	delete(c.ctable[hash], typ)
	if set, ok := c.tindex[typ]; ok {
		set.Remove(hash)
	}
	delete(c.mtable[hash].types, typ)
}

// Assign replaces entity's whole component set with comps in one
// operation, resetting types and the archetype mask accordingly.
func (c *Context) Assign(entity Entity, comps []Component) error {
	var err error
	c.call(func() { err = c.assignLocked(entity, comps) })
	return err
}

func (c *Context) assignLocked(entity Entity, comps []Component) error {
	rec, ok := c.mtable[entity.hash]
	if !ok {
		return newErr("assign", CodeEntityNotFound, entity.hash, "")
	}

	for t := range rec.types {
		c.removeComponentLocked(entity.hash, t)
	}

	mask := newMask()
	for _, comp := range comps {
		rec.types[comp.Type] = struct{}{}
		c.ctable[entity.hash][comp.Type] = comp.Value
		c.typeMasks[comp.Type] = comp.Mask
		set, ok := c.tindex[comp.Type]
		if !ok {
			set = storage.New[Hash, Properties]()
			c.tindex[comp.Type] = set
		}
		set.Set(entity.hash, comp.Value)
		mask = Merge(mask, comp.Mask)
	}
	c.putArchetype(entity.hash, mask)
	return nil
}

// Patch replaces entity's metadata map wholesale (never merged by the
// core).
func (c *Context) Patch(entity Entity, metadata Properties) error {
	var err error
	c.call(func() { err = c.patchLocked(entity, metadata) })
	return err
}

func (c *Context) patchLocked(entity Entity, metadata Properties) error {
	rec, ok := c.mtable[entity.hash]
	if !ok {
		return newErr("patch", CodeEntityNotFound, entity.hash, "")
	}
	cp := make(Properties, len(metadata))
	for k, v := range metadata {
		cp[k] = v
	}
	rec.metadata = cp
	return nil
}

// Destroy removes entity from all four tables.
func (c *Context) Destroy(entity Entity) error {
	var err error
	c.call(func() { err = c.destroyLocked(entity) })
	return err
}

func (c *Context) destroyLocked(entity Entity) error {
	rec, ok := c.mtable[entity.hash]
	if !ok {
		return newErr("destroy", CodeEntityNotFound, entity.hash, "")
	}
	for t := range rec.types {
		c.removeComponentLocked(entity.hash, t)
	}
	if key, ok := c.amask[entity.hash]; ok {
		c.removeFromBucket(key, entity.hash)
		delete(c.amask, entity.hash)
	}
	if name, ok := rec.entity.Name(); ok {
		delete(c.nindex, name)
	}
	delete(c.ctable, entity.hash)
	delete(c.mtable, entity.hash)
	return nil
}

// Clear empties all four tables.
func (c *Context) Clear() {
	c.call(func() {
		c.mtable = make(map[Hash]*entityRecord)
		c.ctable = make(map[Hash]map[TypeID]Properties)
		c.tindex = make(map[TypeID]*storage.SparseSet[Hash, Properties])
		c.nindex = make(map[string]Hash)
		c.aindex = make(map[string][]Hash)
		c.aindexMask = make(map[string]Mask)
		c.amask = make(map[Hash]string)
		c.typeMasks = make(map[TypeID]Mask)
	})
}

// ChildrenOf returns every live entity whose Parent hash equals
// entity's.
func (c *Context) ChildrenOf(entity Entity) []Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Entity
	for _, rec := range c.mtable {
		if parent, ok := rec.entity.Parent(); ok && parent.hash == entity.hash {
			out = append(out, rec.entity)
		}
	}
	return out
}

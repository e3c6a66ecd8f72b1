package ecs

// EntityComponent pairs an entity with one of its component values, the
// row shape every type-indexed range query returns.
type EntityComponent struct {
	Entity    Entity
	Component Properties
}

// All returns every (entity, component) row for type T: type-indexed
// range queries scan only tindex rows for T.
func (c *Context) All(typ TypeID) []EntityComponent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.tindex[typ]
	if !ok {
		return nil
	}
	out := make([]EntityComponent, 0, set.Len())
	set.ForEach(func(hash Hash, v Properties) {
		rec, ok := c.mtable[hash]
		if !ok {
			return
		}
		out = append(out, EntityComponent{Entity: rec.entity, Component: v})
	})
	return out
}

// Get returns entity's component of type typ, or def if absent.
func (c *Context) Get(entity Entity, typ TypeID, def Properties) Properties {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if set, ok := c.tindex[typ]; ok {
		if v, ok := set.Get(entity.hash); ok {
			return v
		}
	}
	return def
}

// Match returns every (entity, component) of type typ whose component
// property map satisfies every key/value pair in properties (non-empty).
func (c *Context) Match(typ TypeID, properties Properties) []EntityComponent {
	return c.filterType(typ, func(v Properties) bool {
		for k, want := range properties {
			if got, ok := v[k]; !ok || got != want {
				return false
			}
		}
		return true
	})
}

// AtLeast returns rows of type typ where component[prop] >= v (numeric).
func (c *Context) AtLeast(typ TypeID, prop string, v float64) []EntityComponent {
	return c.filterType(typ, func(props Properties) bool {
		n, ok := numeric(props[prop])
		return ok && n >= v
	})
}

// AtMost returns rows of type typ where component[prop] <= v (numeric).
func (c *Context) AtMost(typ TypeID, prop string, v float64) []EntityComponent {
	return c.filterType(typ, func(props Properties) bool {
		n, ok := numeric(props[prop])
		return ok && n <= v
	})
}

// Between returns rows of type typ where lo <= component[prop] <= hi.
// Panics if lo > hi — a shape error, a programming mistake rather than
// something callers should branch on.
func (c *Context) Between(typ TypeID, prop string, lo, hi float64) []EntityComponent {
	if lo > hi {
		Fatalf("between: lo (%v) > hi (%v)", lo, hi)
	}
	return c.filterType(typ, func(props Properties) bool {
		n, ok := numeric(props[prop])
		return ok && n >= lo && n <= hi
	})
}

func (c *Context) filterType(typ TypeID, pred func(Properties) bool) []EntityComponent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.tindex[typ]
	if !ok {
		return nil
	}
	var out []EntityComponent
	set.ForEach(func(hash Hash, v Properties) {
		if !pred(v) {
			return
		}
		rec, ok := c.mtable[hash]
		if !ok {
			return
		}
		out = append(out, EntityComponent{Entity: rec.entity, Component: v})
	})
	return out
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Search is the set-composition query: select entities
// whose archetype mask satisfies all/any/none against the supplied
// bloom masks, then verify survivors against the exact type set before
// returning (bloom filters admit false positives, never false
// negatives; none_of needs no verification since a false positive there
// can only wrongly exclude, not wrongly include).
func (c *Context) Search(all, any, none []Mask, exactAll, exactAny []TypeID) []Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ma := newMask()
	for _, m := range all {
		ma = Merge(ma, m)
	}
	manyM := newMask()
	for _, m := range any {
		manyM = Merge(manyM, m)
	}
	mn := newMask()
	for _, m := range none {
		mn = Merge(mn, m)
	}

	seen := make(map[Hash]struct{})
	var out []Entity
	for key, bucketMask := range c.aindexMask {
		if len(all) > 0 && !bucketMask.Contains(ma) {
			continue
		}
		if len(any) > 0 && !bucketMask.Intersects(manyM) {
			continue
		}
		if len(none) > 0 && !bucketMask.Disjoint(mn) {
			continue
		}
		for _, hash := range c.aindex[key] {
			if _, dup := seen[hash]; dup {
				continue
			}
			rec, ok := c.mtable[hash]
			if !ok {
				continue
			}
			if len(exactAll) > 0 && !hasAllTypes(rec.types, exactAll) {
				continue
			}
			if len(exactAny) > 0 && !hasAnyType(rec.types, exactAny) {
				continue
			}
			seen[hash] = struct{}{}
			out = append(out, rec.entity)
		}
	}
	return out
}

func hasAllTypes(types map[TypeID]struct{}, want []TypeID) bool {
	for _, t := range want {
		if _, ok := types[t]; !ok {
			return false
		}
	}
	return true
}

func hasAnyType(types map[TypeID]struct{}, want []TypeID) bool {
	for _, t := range want {
		if _, ok := types[t]; ok {
			return true
		}
	}
	return false
}

// AllOf is Search restricted to the all_of composition.
func (c *Context) AllOf(masks []Mask, types []TypeID) []Entity {
	return c.Search(masks, nil, nil, types, nil)
}

// AnyOf is Search restricted to the any_of composition.
func (c *Context) AnyOf(masks []Mask, types []TypeID) []Entity {
	return c.Search(nil, masks, nil, nil, types)
}

// NoneOf is Search restricted to the none_of composition.
func (c *Context) NoneOf(masks []Mask) []Entity {
	return c.Search(nil, nil, masks, nil, nil)
}

// Entities streams a (entity, types, metadata) tuple per live entity.
// The contract — fix the table for the duration of iteration, release
// on every exit path — is satisfied here by taking the read lock for
// the whole call and returning a materialized slice rather than a lazy
// iterator: a slice copy is the idiomatic "safe fix/release" for an
// in-memory map in Go.
func (c *Context) Entities() []snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]snapshot, 0, len(c.mtable))
	for hash := range c.mtable {
		snap, _ := c.infoLocked(hash)
		out = append(out, snap)
	}
	return out
}

// MetadataEntry pairs an entity with its metadata map, the row shape
// Metadata streams.
type MetadataEntry struct {
	Entity   Entity
	Metadata Properties
}

// Metadata streams a (entity, metadata) tuple per live entity, taking
// the read lock for the whole call and returning a materialized slice —
// the same "fix the table, release on exit" pattern Entities/Components
// use.
func (c *Context) Metadata() []MetadataEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MetadataEntry, 0, len(c.mtable))
	for hash := range c.mtable {
		snap, _ := c.infoLocked(hash)
		out = append(out, MetadataEntry{Entity: snap.Entity, Metadata: snap.Metadata})
	}
	return out
}

// Components streams one (type, mask, component) row per attached
// component across every type. The rows do not say which entity each
// component belongs to.
func (c *Context) Components() []Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Component
	for typ, set := range c.tindex {
		set.ForEach(func(hash Hash, v Properties) {
			out = append(out, Component{Type: typ, Mask: c.typeMasks[typ], Value: v})
		})
	}
	return out
}

package ecs

// Prefabs extends Registry with single-inheritance template resolution.
// A prefab is materialized as an ordinary entity in the Registry's
// dedicated Prefabs Context: one component per declared type, plus an
// "extends" metadata entry recording the transitive parent chain.
// Instantiating a prefab (Spawn) reuses the same Clone algorithm
// World.Clone uses for ordinary entities, with the prefab's template
// entity as the clone source.

// RegisterPrefab resolves spec against prefabs already registered
// (forward references are rejected, matching the Registry's append-only
// registration order) and materializes the result as a freshly created
// entity named spec.Name in the Prefabs Context. A duplicate name fails
// with CodeAlreadyRegistered.
func (r *Registry) RegisterPrefab(spec PrefabSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prefabs.ExistsName(spec.Name) {
		return newErr("register_prefab", CodeAlreadyRegistered, Hash{}, "")
	}

	merged := make(map[TypeID]map[string]interface{})
	var chain []string
	for _, parentName := range spec.Extends {
		parentSnap, ok := r.prefabs.Lookup(parentName)
		if !ok {
			Fatalf("prefab %q extends unknown prefab %q", spec.Name, parentName)
		}
		_, parentComps, ok := r.prefabs.Fetch(parentSnap.Entity)
		if !ok {
			Fatalf("prefab %q extends unknown prefab %q", spec.Name, parentName)
		}
		for _, c := range parentComps {
			merged[c.Type] = map[string]interface{}(c.Value)
		}
		if ancestry, ok := parentSnap.Metadata["extends"].([]string); ok {
			chain = append(chain, ancestry...)
		}
		chain = append(chain, parentName)
	}
	for typ, props := range spec.Components {
		merged[typ] = deepMergeOneLevel(merged[typ], props)
	}

	comps := make([]Component, 0, len(merged))
	for typ, props := range merged {
		d, ok := r.catalogue[typ]
		if !ok {
			Fatalf("prefab %q references unregistered component %q", spec.Name, typ)
		}
		built, err := d.New(props)
		if err != nil {
			Fatalf("prefab %q component %q: %v", spec.Name, typ, err)
		}
		comps = append(comps, Component{Type: d.Name, Mask: d.bloom(), Value: built})
	}

	entity, err := r.prefabs.Create(CreateOptions{Name: spec.Name})
	if err != nil {
		return err
	}
	if err := r.prefabs.Assign(entity, comps); err != nil {
		return err
	}
	if err := r.prefabs.Patch(entity, Properties{"extends": append([]string(nil), chain...)}); err != nil {
		return err
	}

	r.prefabOrder = append(r.prefabOrder, spec.Name)
	return nil
}

// deepMergeOneLevel merges override into base one level deep: override
// keys win at the top level, and a nested map[string]interface{} value
// replaces the base's nested map wholesale rather than merging deeper.
func deepMergeOneLevel(base, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Spawn instantiates a registered prefab into dst by cloning its
// template entity out of the Prefabs Context, applying overrides on top
// of its fully resolved (extends-merged) component set — the same
// Clone algorithm World.Clone uses for ordinary entities.
func (r *Registry) Spawn(dst *Context, prefabName string, name string, overrides map[TypeID]map[string]interface{}) (Entity, error) {
	snap, ok := r.prefabs.Lookup(prefabName)
	if !ok {
		Fatalf("unknown prefab %q", prefabName)
	}
	return r.Clone(r.prefabs, snap.Entity, dst, name, overrides)
}

// PrefabNames returns every registered prefab name, in registration
// order.
func (r *Registry) PrefabNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prefabOrder...)
}

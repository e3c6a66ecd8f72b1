package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskFor(name TypeID, events ...EventName) Mask {
	return BloomOf(name, events)
}

func Test_Context_Create_BasicStore(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{Name: "hero"})
	require.NoError(t, err)

	posMask := maskFor("position")
	require.NoError(t, ctx.Emplace(entity, Component{Type: "position", Mask: posMask, Value: Properties{"x": 1.0, "y": 2.0}}))

	got, comps, ok := ctx.Fetch(entity)
	require.True(t, ok)
	assert.True(t, got.Equal(entity))
	require.Len(t, comps, 1)
	assert.Equal(t, TypeID("position"), comps[0].Type)
	assert.Equal(t, 1.0, comps[0].Value["x"])

	snap, ok := ctx.Lookup("hero")
	require.True(t, ok)
	assert.True(t, snap.Entity.Equal(entity))
	assert.Contains(t, snap.Types, TypeID("position"))
	assert.Contains(t, snap.Metadata, "created_at")
}

func Test_Context_Create_DuplicateName_Fails(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	_, err := ctx.Create(CreateOptions{Name: "hero"})
	require.NoError(t, err)

	_, err = ctx.Create(CreateOptions{Name: "hero"})
	require.Error(t, err)
	var ecsErr *ECSError
	require.ErrorAs(t, err, &ecsErr)
	assert.Equal(t, CodeNameAlreadyRegistered, ecsErr.Code)
}

func Test_Context_Emplace_DuplicateType_Fails(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	mask := maskFor("position")
	require.NoError(t, ctx.Emplace(entity, Component{Type: "position", Mask: mask, Value: Properties{}}))

	err = ctx.Emplace(entity, Component{Type: "position", Mask: mask, Value: Properties{}})
	require.Error(t, err)
	var ecsErr *ECSError
	require.ErrorAs(t, err, &ecsErr)
	assert.Equal(t, CodeAlreadyInserted, ecsErr.Code)
}

func Test_Context_Emplace_MissingEntity_Fails(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	ghost, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, ctx.Destroy(ghost))

	err = ctx.Emplace(ghost, Component{Type: "position", Mask: maskFor("position"), Value: Properties{}})
	require.Error(t, err)
	var ecsErr *ECSError
	require.ErrorAs(t, err, &ecsErr)
	assert.Equal(t, CodeEntityNotFound, ecsErr.Code)
}

func Test_Context_Replace_UnknownType_Fails(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)

	err = ctx.Replace(entity, Component{Type: "position", Mask: maskFor("position"), Value: Properties{}})
	require.Error(t, err)
	var ecsErr *ECSError
	require.ErrorAs(t, err, &ecsErr)
	assert.Equal(t, CodeComponentNotFound, ecsErr.Code)
}

func Test_Context_Erase_SingleType_RecomputesArchetypeMask(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	posMask := maskFor("position")
	velMask := maskFor("velocity")
	require.NoError(t, ctx.Emplace(entity, Component{Type: "position", Mask: posMask, Value: Properties{}}))
	require.NoError(t, ctx.Emplace(entity, Component{Type: "velocity", Mask: velMask, Value: Properties{}}))

	require.NoError(t, ctx.Erase(entity, "velocity"))

	_, comps, ok := ctx.Fetch(entity)
	require.True(t, ok)
	require.Len(t, comps, 1)
	assert.Equal(t, TypeID("position"), comps[0].Type)

	// archetype search by position-only mask should now match this entity
	matches := ctx.AllOf([]Mask{posMask}, []TypeID{"position"})
	found := false
	for _, e := range matches {
		if e.Equal(entity) {
			found = true
		}
	}
	assert.True(t, found)

	// but velocity's archetype bucket no longer contains it
	velMatches := ctx.AllOf([]Mask{velMask}, []TypeID{"velocity"})
	for _, e := range velMatches {
		assert.False(t, e.Equal(entity))
	}
}

func Test_Context_Erase_AllComponents_ResetsMaskToZero(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, ctx.Emplace(entity, Component{Type: "position", Mask: maskFor("position"), Value: Properties{}}))

	require.NoError(t, ctx.Erase(entity, ""))

	_, comps, ok := ctx.Fetch(entity)
	require.True(t, ok)
	assert.Empty(t, comps)
	assert.Equal(t, newMask(), ctx.aindexMask[ctx.amask[entity.hash]])
}

func Test_Context_Destroy_RemovesFromAllTables(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{Name: "hero"})
	require.NoError(t, err)
	require.NoError(t, ctx.Emplace(entity, Component{Type: "position", Mask: maskFor("position"), Value: Properties{}}))

	require.NoError(t, ctx.Destroy(entity))

	assert.False(t, ctx.Exists(entity))
	assert.False(t, ctx.ExistsName("hero"))
	_, _, ok := ctx.Fetch(entity)
	assert.False(t, ok)

	all := ctx.All("position")
	assert.Empty(t, all)
}

func Test_Context_Destroy_Idempotent_SecondCallFails(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, ctx.Destroy(entity))

	err = ctx.Destroy(entity)
	require.Error(t, err)
	var ecsErr *ECSError
	require.ErrorAs(t, err, &ecsErr)
	assert.Equal(t, CodeEntityNotFound, ecsErr.Code)
}

func Test_Context_Search_ArchetypeComposition(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	posMask := maskFor("position")
	velMask := maskFor("velocity")
	tagMask := maskFor("frozen")

	mover, err := ctx.Create(CreateOptions{Name: "mover"})
	require.NoError(t, err)
	require.NoError(t, ctx.Emplace(mover, Component{Type: "position", Mask: posMask, Value: Properties{}}))
	require.NoError(t, ctx.Emplace(mover, Component{Type: "velocity", Mask: velMask, Value: Properties{}}))

	frozen, err := ctx.Create(CreateOptions{Name: "frozen_thing"})
	require.NoError(t, err)
	require.NoError(t, ctx.Emplace(frozen, Component{Type: "position", Mask: posMask, Value: Properties{}}))
	require.NoError(t, ctx.Emplace(frozen, Component{Type: "frozen", Mask: tagMask, Value: Properties{}}))

	// all_of(position, velocity) matches only mover
	allOf := ctx.AllOf([]Mask{posMask, velMask}, []TypeID{"position", "velocity"})
	require.Len(t, allOf, 1)
	assert.True(t, allOf[0].Equal(mover))

	// none_of(frozen) excludes the frozen entity
	noneOf := ctx.NoneOf([]Mask{tagMask})
	for _, e := range noneOf {
		assert.False(t, e.Equal(frozen))
	}

	// any_of(velocity, frozen) matches both
	anyOf := ctx.AnyOf([]Mask{velMask, tagMask}, []TypeID{"velocity", "frozen"})
	assert.Len(t, anyOf, 2)
}

func Test_Context_Match_FiltersByPropertyEquality(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	e1, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, ctx.Emplace(e1, Component{Type: "tag", Mask: maskFor("tag"), Value: Properties{"kind": "enemy"}}))

	e2, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, ctx.Emplace(e2, Component{Type: "tag", Mask: maskFor("tag"), Value: Properties{"kind": "ally"}}))

	rows := ctx.Match("tag", Properties{"kind": "enemy"})
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Entity.Equal(e1))
}

func Test_Context_Between_NumericRange(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	e1, _ := ctx.Create(CreateOptions{})
	require.NoError(t, ctx.Emplace(e1, Component{Type: "stats", Mask: maskFor("stats"), Value: Properties{"hp": 5.0}}))
	e2, _ := ctx.Create(CreateOptions{})
	require.NoError(t, ctx.Emplace(e2, Component{Type: "stats", Mask: maskFor("stats"), Value: Properties{"hp": 50.0}}))

	rows := ctx.Between("stats", "hp", 0, 10)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Entity.Equal(e1))
}

func Test_Context_Between_InvalidRange_Panics(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()
	assert.Panics(t, func() {
		ctx.Between("stats", "hp", 10, 0)
	})
}

func Test_Context_ChildrenOf_ReturnsDirectChildrenOnly(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	parent, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	child, err := ctx.Create(CreateOptions{Parent: &parent})
	require.NoError(t, err)
	_, err = ctx.Create(CreateOptions{})
	require.NoError(t, err)

	kids := ctx.ChildrenOf(parent)
	require.Len(t, kids, 1)
	assert.True(t, kids[0].Equal(child))
}

func Test_Context_Clear_EmptiesEverything(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{Name: "hero"})
	require.NoError(t, err)
	require.NoError(t, ctx.Emplace(entity, Component{Type: "position", Mask: maskFor("position"), Value: Properties{}}))

	ctx.Clear()

	assert.False(t, ctx.Exists(entity))
	assert.Empty(t, ctx.Entities())
	assert.Empty(t, ctx.Components())
}

func Test_Context_Assign_ReplacesWholeComponentSet(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, ctx.Emplace(entity, Component{Type: "position", Mask: maskFor("position"), Value: Properties{"x": 1.0}}))

	require.NoError(t, ctx.Assign(entity, []Component{
		{Type: "velocity", Mask: maskFor("velocity"), Value: Properties{"dx": 2.0}},
	}))

	_, comps, ok := ctx.Fetch(entity)
	require.True(t, ok)
	require.Len(t, comps, 1)
	assert.Equal(t, TypeID("velocity"), comps[0].Type)
}

func Test_Context_Metadata_StreamsEntityMetadataUnderOneLock(t *testing.T) {
	ctx := NewContext("test")
	defer ctx.Close()

	entity, err := ctx.Create(CreateOptions{Name: "hero"})
	require.NoError(t, err)
	require.NoError(t, ctx.Patch(entity, Properties{"tier": "gold"}))

	entries := ctx.Metadata()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Entity.Equal(entity))
	assert.Equal(t, "gold", entries[0].Metadata["tier"])
	assert.Contains(t, entries[0].Metadata, "created_at")
}

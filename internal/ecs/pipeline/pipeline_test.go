package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomweave/ecsruntime/internal/ecs"
)

type fakeDispatcher struct {
	defs map[ecs.TypeID]ecs.Definition
}

func (f *fakeDispatcher) Definition(typ ecs.TypeID) (ecs.Definition, bool) {
	d, ok := f.defs[typ]
	return d, ok
}

func makeEntity(t *testing.T, ctx *ecs.Context, name string) ecs.Entity {
	t.Helper()
	e, err := ctx.Create(ecs.CreateOptions{Name: name})
	require.NoError(t, err)
	return e
}

func Test_Pipeline_DeliversEventsToHandlerInOrder(t *testing.T) {
	ctx := ecs.NewContext("world")
	defer ctx.Close()
	entity := makeEntity(t, ctx, "e1")

	var mu sync.Mutex
	var seen []string

	recorder := ecs.Definition{
		Name: "recorder",
		HandleEvent: func(name ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
			mu.Lock()
			seen = append(seen, string(name))
			mu.Unlock()
			return ecs.Continue, evt.Args
		},
	}
	dispatcher := &fakeDispatcher{defs: map[ecs.TypeID]ecs.Definition{"recorder": recorder}}

	p := New(Config{Partitions: 2, MaxEvents: 10}, dispatcher)

	p.Send(ecs.NewEvent("damage", 1, entity, ecs.Properties{}, []ecs.TypeID{"recorder"}))
	p.Send(ecs.NewEvent("heal", 1, entity, ecs.Properties{}, []ecs.TypeID{"recorder"}))

	require.NoError(t, waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"damage", "heal"}, seen)
}

func Test_Pipeline_HaltStopsLaterHandlersForThatEvent(t *testing.T) {
	ctx := ecs.NewContext("world")
	defer ctx.Close()
	entity := makeEntity(t, ctx, "e1")

	var mu sync.Mutex
	var calledSecond bool

	first := ecs.Definition{
		Name: "first",
		HandleEvent: func(name ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
			return ecs.Halt, evt.Args
		},
	}
	second := ecs.Definition{
		Name: "second",
		HandleEvent: func(name ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
			mu.Lock()
			calledSecond = true
			mu.Unlock()
			return ecs.Continue, evt.Args
		},
	}
	dispatcher := &fakeDispatcher{defs: map[ecs.TypeID]ecs.Definition{"first": first, "second": second}}

	p := New(Config{Partitions: 1, MaxEvents: 4}, dispatcher)
	p.Send(ecs.NewEvent("hit", 1, entity, ecs.Properties{}, []ecs.TypeID{"first", "second"}))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, calledSecond)
}

func Test_Partition_IsDeterministicForSameHash(t *testing.T) {
	ctx := ecs.NewContext("world")
	defer ctx.Close()
	entity := makeEntity(t, ctx, "stable")

	p1 := Partition(entity.Hash(), 8)
	p2 := Partition(entity.Hash(), 8)
	assert.Equal(t, p1, p2)
}

func Test_Envoy_SerializesPerEntityAllowsCrossEntityParallelism(t *testing.T) {
	ctx := ecs.NewContext("world")
	defer ctx.Close()
	e1 := makeEntity(t, ctx, "a")
	e2 := makeEntity(t, ctx, "b")

	var mu sync.Mutex
	var order []string

	slow := ecs.Definition{
		Name: "slow",
		HandleEvent: func(name ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
			mu.Lock()
			order = append(order, string(name))
			mu.Unlock()
			return ecs.Continue, evt.Args
		},
	}
	dispatcher := &fakeDispatcher{defs: map[ecs.TypeID]ecs.Definition{"slow": slow}}

	p := New(Config{Partitions: 4, MaxEvents: 10}, dispatcher)
	p.Send(ecs.NewEvent("one", 1, e1, ecs.Properties{}, []ecs.TypeID{"slow"}))
	p.Send(ecs.NewEvent("two", 1, e1, ecs.Properties{}, []ecs.TypeID{"slow"}))
	p.Send(ecs.NewEvent("three", 1, e2, ecs.Properties{}, []ecs.TypeID{"slow"}))

	require.NoError(t, waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}))

	mu.Lock()
	defer mu.Unlock()
	idxOne, idxTwo := -1, -1
	for i, name := range order {
		if name == "one" {
			idxOne = i
		}
		if name == "two" {
			idxTwo = i
		}
	}
	assert.Less(t, idxOne, idxTwo)
}

type countingReporter struct {
	mu    sync.Mutex
	count int
}

func (r *countingReporter) RecordCounter(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

func Test_Scribe_HandlerMutatingEntityDriftsAndIsRecoveredAsAPanic(t *testing.T) {
	ctx := ecs.NewContext("world")
	defer ctx.Close()
	e1 := makeEntity(t, ctx, "e1")
	e2 := makeEntity(t, ctx, "e2")

	rogue := ecs.Definition{
		Name: "rogue",
		HandleEvent: func(name ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
			evt.Entity = e2
			return ecs.Continue, evt.Args
		},
	}
	dispatcher := &fakeDispatcher{defs: map[ecs.TypeID]ecs.Definition{"rogue": rogue}}
	reporter := &countingReporter{}

	p := NewWithReporter(Config{Partitions: 1, MaxEvents: 4}, dispatcher, reporter)
	p.Send(ecs.NewEvent("tick", 1, e1, ecs.Properties{}, []ecs.TypeID{"rogue"}))

	require.NoError(t, waitFor(func() bool {
		reporter.mu.Lock()
		defer reporter.mu.Unlock()
		return reporter.count == 1
	}))
}

func Test_Scribe_RecoversPanicAndStillAcksSoLaterEventsProceed(t *testing.T) {
	ctx := ecs.NewContext("world")
	defer ctx.Close()
	entity := makeEntity(t, ctx, "e1")

	var mu sync.Mutex
	var seen []string

	boom := ecs.Definition{
		Name: "boom",
		HandleEvent: func(name ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
			if name == "crash" {
				panic("handler exploded")
			}
			mu.Lock()
			seen = append(seen, string(name))
			mu.Unlock()
			return ecs.Continue, evt.Args
		},
	}
	dispatcher := &fakeDispatcher{defs: map[ecs.TypeID]ecs.Definition{"boom": boom}}
	reporter := &countingReporter{}

	p := NewWithReporter(Config{Partitions: 1, MaxEvents: 4}, dispatcher, reporter)
	p.Send(ecs.NewEvent("crash", 1, entity, ecs.Properties{}, []ecs.TypeID{"boom"}))
	p.Send(ecs.NewEvent("after", 1, entity, ecs.Properties{}, []ecs.TypeID{"boom"}))

	require.NoError(t, waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}))

	mu.Lock()
	assert.Equal(t, []string{"after"}, seen)
	mu.Unlock()

	reporter.mu.Lock()
	assert.Equal(t, 1, reporter.count)
	reporter.mu.Unlock()
}

func Test_Pipeline_Close_DrainsPendingPerEntityBacklogWithoutPanicking(t *testing.T) {
	ctx := ecs.NewContext("world")
	defer ctx.Close()
	entity := makeEntity(t, ctx, "e1")

	slow := ecs.Definition{
		Name: "slow",
		HandleEvent: func(name ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
			time.Sleep(20 * time.Millisecond)
			return ecs.Continue, evt.Args
		},
	}
	dispatcher := &fakeDispatcher{defs: map[ecs.TypeID]ecs.Definition{"slow": slow}}

	p := New(Config{Partitions: 1, MaxEvents: 10}, dispatcher)
	for i := 0; i < 5; i++ {
		p.Send(ecs.NewEvent("tick", 1, entity, ecs.Properties{}, []ecs.TypeID{"slow"}))
	}

	require.NoError(t, p.Close())
}

func waitFor(cond func() bool) error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return errDeadlineExceeded
}

type timeoutError struct{}

func (timeoutError) Error() string { return "condition not met before deadline" }

var errDeadlineExceeded = timeoutError{}

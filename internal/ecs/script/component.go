package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/loomweave/ecsruntime/internal/ecs"
)

// executionBudget bounds a single handle_event call's wall-clock time.
// gopher-lua checks the attached context at VM instruction boundaries,
// so this is the idiomatic gopher-lua reading of "an instruction-count
// hook": a runaway or hostile script is killed instead of blocking the
// entity's lane forever.
const executionBudget = 50 * time.Millisecond

// vmPool keeps one sandboxed Lua VM per live entity for a given script
// source, so an entity's local state (variables set outside
// handle_event's parameters) survives across dispatches the way a Go
// closure's captured state would.
type vmPool struct {
	mu     sync.Mutex
	source string
	byHash map[ecs.Hash]*lua.LState
}

func newVMPool(source string) *vmPool {
	return &vmPool{source: source, byHash: make(map[ecs.Hash]*lua.LState)}
}

func (p *vmPool) get(entity ecs.Hash) (*lua.LState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok := p.byHash[entity]; ok {
		return state, nil
	}
	state := newSandboxedState()
	if err := state.DoString(p.source); err != nil {
		state.Close()
		return nil, fmt.Errorf("script: load: %w", err)
	}
	p.byHash[entity] = state
	return state, nil
}

// forget releases the VM bound to entity, if any. Call this from the
// component's OnHook on a Removed event so a destroyed entity doesn't
// leak its Lua state.
func (p *vmPool) forget(entity ecs.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok := p.byHash[entity]; ok {
		state.Close()
		delete(p.byHash, entity)
	}
}

// Define builds a component Definition whose handle_event delegates to
// the Lua function of the same name in source. source must define:
//
//	function handle_event(name, args)
//	  -- return "continue" or "halt", and a table of (possibly
//	  -- transformed) args
//	  return "continue", args
//	end
//
// source is compiled once (in a throwaway sandboxed VM) to catch syntax
// errors eagerly; a real per-entity VM is created lazily on first
// dispatch.
func Define(name ecs.TypeID, events []ecs.EventName, source string) (ecs.Definition, error) {
	probe := newSandboxedState()
	defer probe.Close()
	if err := probe.DoString(source); err != nil {
		return ecs.Definition{}, fmt.Errorf("script %q: %w", name, err)
	}

	pool := newVMPool(source)

	return ecs.Definition{
		Name:   name,
		Events: events,
		New: func(props ecs.Properties) (ecs.Properties, error) {
			return props, nil
		},
		Cast: func(raw map[string]interface{}) (ecs.Properties, error) {
			return ecs.Properties(raw), nil
		},
		HandleEvent: func(evName ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
			state, err := pool.get(evt.Entity.Hash())
			if err != nil {
				ecs.Fatalf("%v", err)
			}

			fn := state.GetGlobal("handle_event")
			if fn == lua.LNil {
				return ecs.Continue, evt.Args
			}

			ctx, cancel := context.WithTimeout(context.Background(), executionBudget)
			state.SetContext(ctx)
			defer func() {
				state.RemoveContext()
				cancel()
			}()

			argsTable := propsToLua(state, evt.Args)
			if err := state.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, lua.LString(evName), argsTable); err != nil {
				ecs.Fatalf("script %q: handle_event: %v", name, err)
			}
			defer state.Pop(2)

			decisionVal := state.Get(-2)
			argsVal := state.Get(-1)

			newArgs, err := luaToProps(argsVal)
			if err != nil {
				ecs.Fatalf("script %q: %v", name, err)
			}

			decision := ecs.Continue
			if lua.LVAsString(decisionVal) == "halt" {
				decision = ecs.Halt
			}
			return decision, newArgs
		},
		OnHook: func(hook ecs.Hook, entity ecs.Entity, _ ecs.Properties) {
			if hook == ecs.HookRemoved {
				pool.forget(entity.Hash())
			}
		},
	}, nil
}

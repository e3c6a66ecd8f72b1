// Package script implements the scripted component: a component type
// whose handle_event body is a sandboxed Lua snippet instead of Go
// code, for callers that want to define behavior data-side.
package script

import (
	lua "github.com/yuin/gopher-lua"
)

// newSandboxedState builds a Lua VM with the dangerous globals removed:
// no filesystem, no OS commands, no debug introspection, no module
// loading. Component scripts receive only the event name and the event
// args table from this package.
func newSandboxedState() *lua.LState {
	state := lua.NewState(lua.Options{SkipOpenLibs: false})
	applySandbox(state)
	return state
}

func applySandbox(state *lua.LState) {
	state.SetGlobal("io", lua.LNil)
	state.SetGlobal("dofile", lua.LNil)
	state.SetGlobal("loadfile", lua.LNil)
	state.SetGlobal("os", lua.LNil)
	state.SetGlobal("debug", lua.LNil)
	state.SetGlobal("package", lua.LNil)
	state.SetGlobal("require", lua.LNil)
}

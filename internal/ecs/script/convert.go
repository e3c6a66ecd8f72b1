package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// propsToLua converts a property map into a Lua table, recursively
// converting nested maps and slices.
func propsToLua(state *lua.LState, props map[string]interface{}) *lua.LTable {
	table := state.NewTable()
	for key, val := range props {
		table.RawSetString(key, goToLua(state, val))
	}
	return table
}

func goToLua(state *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(float64(v))
	case int32:
		return lua.LNumber(float64(v))
	case int64:
		return lua.LNumber(float64(v))
	case float32:
		return lua.LNumber(float64(v))
	case float64:
		return lua.LNumber(v)
	case []interface{}:
		table := state.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, goToLua(state, item))
		}
		return table
	case map[string]interface{}:
		return propsToLua(state, v)
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// luaToProps converts a Lua table back into a property map. A nil value
// yields an empty map; any other non-table value is rejected.
func luaToProps(value lua.LValue) (map[string]interface{}, error) {
	table, ok := value.(*lua.LTable)
	if !ok {
		if value == lua.LNil {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("script: expected a table, got %s", value.Type())
	}
	out := make(map[string]interface{})
	table.ForEach(func(k, v lua.LValue) {
		out[k.String()] = luaToGo(v)
	})
	return out, nil
}

func luaToGo(value lua.LValue) interface{} {
	switch v := value.(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case lua.LBool:
		return bool(v)
	case *lua.LTable:
		out := make(map[string]interface{})
		v.ForEach(func(k, val lua.LValue) {
			out[k.String()] = luaToGo(val)
		})
		return out
	default:
		return nil
	}
}

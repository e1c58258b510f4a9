package luascript

import (
	"github.com/jwebster45206/questscript/pkg/script"
	lua "github.com/yuin/gopher-lua"
)

// registerAPI exposes the stores of env to scripts as a "game" table.
// Stores env leaves unset are simply absent from the table.
func registerAPI(L *lua.LState, env *script.Env) {
	if env == nil {
		return
	}
	game := L.NewTable()

	if env.Flags != nil {
		flags := env.Flags
		L.SetField(game, "has_flag", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LBool(flags.HasFlag(L.CheckString(1))))
			return 1
		}))
		L.SetField(game, "set_flag", L.NewFunction(func(L *lua.LState) int {
			flags.SetFlag(L.CheckString(1), L.ToBool(2))
			return 0
		}))
	}

	if env.Vars != nil {
		vars := env.Vars
		L.SetField(game, "get_var", L.NewFunction(func(L *lua.LState) int {
			name := L.CheckString(1)
			if !vars.HasVar(name) {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(toLuaValue(L, vars.GetVar(name)))
			return 1
		}))
		L.SetField(game, "set_var", L.NewFunction(func(L *lua.LState) int {
			vars.SetVar(L.CheckString(1), toGoValue(L.Get(2)))
			return 0
		}))
	}

	if env.Quests != nil {
		quests := env.Quests
		L.SetField(game, "quest_stage", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(quests.GetQuestStage(L.CheckString(1))))
			return 1
		}))
	}

	if env.Inventory != nil {
		inv := env.Inventory
		L.SetField(game, "item_count", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(inv.CountItem(L.CheckString(1))))
			return 1
		}))
	}

	logger := env.Logger
	L.SetField(game, "log", L.NewFunction(func(L *lua.LState) int {
		if logger != nil {
			logger.Info("Script log", "message", L.CheckString(1))
		}
		return 0
	}))

	L.SetGlobal("game", game)
}

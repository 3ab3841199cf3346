// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package gametest provides a Lua-backed stand-in for a game-server console
// so projector tests execute the real command text end to end.
package gametest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// GroupState is the game-side view of one permission group: a default
// verdict plus the exception list.
type GroupState struct {
	DefaultAllow bool
	Listed       map[string]struct{}
	Players      map[string]struct{}
}

// Allows reports the group's verdict for one action.
func (g *GroupState) Allows(action string) bool {
	_, listed := g.Listed[action]
	return g.DefaultAllow != listed
}

// FakeConsole emulates the in-game permission module. Each SendCommand runs
// in a fresh sandboxed Lua state wired to shared Go-side group state, the
// same way the real game evaluates one console line at a time.
type FakeConsole struct {
	mu       sync.Mutex
	universe []string
	groups   map[string]*GroupState
}

// NewFakeConsole creates a console whose game process knows the given
// permission universe.
func NewFakeConsole(universe []string) *FakeConsole {
	return &FakeConsole{
		universe: append([]string(nil), universe...),
		groups:   make(map[string]*GroupState),
	}
}

// Group returns a deep copy of the named group's state, if it exists.
func (f *FakeConsole) Group(name string) (GroupState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, ok := f.groups[name]
	if !ok {
		return GroupState{}, false
	}
	out := GroupState{
		DefaultAllow: g.DefaultAllow,
		Listed:       make(map[string]struct{}, len(g.Listed)),
		Players:      make(map[string]struct{}, len(g.Players)),
	}
	for k := range g.Listed {
		out.Listed[k] = struct{}{}
	}
	for k := range g.Players {
		out.Players[k] = struct{}{}
	}
	return out, true
}

// GroupNames returns the names of all existing groups, sorted.
func (f *FakeConsole) GroupNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.groups))
	for name := range f.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SendCommand executes one console command line. Only "/sc" script commands
// are understood, matching what the projector emits.
func (f *FakeConsole) SendCommand(ctx context.Context, text string) (string, error) {
	code, ok := strings.CutPrefix(text, "/sc ")
	if !ok {
		return "", oops.In("gametest").With("command", text).New("not a script command")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)

	for _, open := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(open.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(open.name)); err != nil {
			return "", oops.In("gametest").With("library", open.name).Wrap(err)
		}
	}

	var printed []string
	f.register(L, &printed)

	if err := L.DoString(code); err != nil {
		return "", oops.In("gametest").With("command", text).Wrap(err)
	}
	return strings.Join(printed, "\n"), nil
}

// register installs the game-side API surface: the Groups module reachable
// through package.loaded, the game helper table, and rcon.print capture.
func (f *FakeConsole) register(L *lua.LState, printed *[]string) {
	groupsMod := L.NewTable()
	L.SetField(groupsMod, "destroy_group", L.NewFunction(func(L *lua.LState) int {
		delete(f.groups, L.CheckString(1))
		return 0
	}))
	L.SetField(groupsMod, "get_or_create", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if _, ok := f.groups[name]; !ok {
			f.groups[name] = &GroupState{
				Listed:  make(map[string]struct{}),
				Players: make(map[string]struct{}),
			}
		}
		L.Push(f.newGroupObject(L, name))
		return 1
	}))
	L.SetField(groupsMod, "json_to_actions", L.NewFunction(func(L *lua.LState) int {
		L.Push(decodeStringArray(L, L.CheckString(1)))
		return 1
	}))
	L.SetField(groupsMod, "get_actions_json", L.NewFunction(func(L *lua.LState) int {
		data, err := json.Marshal(f.universe)
		if err != nil {
			L.RaiseError("encode actions: %v", err)
		}
		L.Push(lua.LString(data))
		return 1
	}))

	loaded := L.NewTable()
	L.SetField(loaded, "modules/exp_groups/module_exports", groupsMod)
	pkg := L.NewTable()
	L.SetField(pkg, "loaded", loaded)
	L.SetGlobal("package", pkg)

	game := L.NewTable()
	L.SetField(game, "json_to_table", L.NewFunction(func(L *lua.LState) int {
		L.Push(decodeStringArray(L, L.CheckString(1)))
		return 1
	}))
	L.SetGlobal("game", game)

	rcon := L.NewTable()
	L.SetField(rcon, "print", L.NewFunction(func(L *lua.LState) int {
		*printed = append(*printed, L.CheckString(1))
		return 0
	}))
	L.SetGlobal("rcon", rcon)
}

// newGroupObject builds the method table for one group. Methods use colon
// call syntax, so the group table itself arrives as the first argument.
func (f *FakeConsole) newGroupObject(L *lua.LState, name string) *lua.LTable {
	obj := L.NewTable()
	L.SetField(obj, "name", lua.LString(name))

	method := func(apply func(g *GroupState, items []string)) *lua.LFunction {
		return L.NewFunction(func(L *lua.LState) int {
			self := L.CheckTable(1)
			gname := lua.LVAsString(L.GetField(self, "name"))
			g, ok := f.groups[gname]
			if !ok {
				L.RaiseError("no such group: %s", gname)
			}
			apply(g, tableToStrings(L, L.CheckTable(2)))
			return 0
		})
	}

	L.SetField(obj, "from_json", L.NewFunction(func(L *lua.LState) int {
		self := L.CheckTable(1)
		gname := lua.LVAsString(L.GetField(self, "name"))
		g, ok := f.groups[gname]
		if !ok {
			L.RaiseError("no such group: %s", gname)
		}
		var def []json.RawMessage
		raw := L.CheckString(2)
		if err := json.Unmarshal([]byte(raw), &def); err != nil || len(def) != 2 {
			L.RaiseError("bad group definition: %s", raw)
		}
		var defaultAllow bool
		var list []string
		if err := json.Unmarshal(def[0], &defaultAllow); err != nil {
			L.RaiseError("bad group definition: %s", raw)
		}
		if err := json.Unmarshal(def[1], &list); err != nil {
			L.RaiseError("bad group definition: %s", raw)
		}
		g.DefaultAllow = defaultAllow
		g.Listed = make(map[string]struct{}, len(list))
		for _, item := range list {
			g.Listed[item] = struct{}{}
		}
		return 0
	}))
	L.SetField(obj, "allow_actions", method(func(g *GroupState, actions []string) {
		for _, a := range actions {
			if g.DefaultAllow {
				delete(g.Listed, a)
			} else {
				g.Listed[a] = struct{}{}
			}
		}
	}))
	L.SetField(obj, "disallow_actions", method(func(g *GroupState, actions []string) {
		for _, a := range actions {
			if g.DefaultAllow {
				g.Listed[a] = struct{}{}
			} else {
				delete(g.Listed, a)
			}
		}
	}))
	L.SetField(obj, "add_players", method(func(g *GroupState, players []string) {
		for _, p := range players {
			g.Players[p] = struct{}{}
		}
	}))
	return obj
}

func decodeStringArray(L *lua.LState, raw string) *lua.LTable {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		L.RaiseError("bad JSON array: %s", raw)
	}
	out := L.NewTable()
	for _, item := range items {
		out.Append(lua.LString(item))
	}
	return out
}

func tableToStrings(L *lua.LState, tbl *lua.LTable) []string {
	var out []string
	tbl.ForEach(func(_, v lua.LValue) {
		out = append(out, lua.LVAsString(v))
	})
	return out
}

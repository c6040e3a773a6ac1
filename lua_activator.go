// lua_activator.go: Sandboxed Lua script activators
//
// A bundle may ship its activator as a Lua script instead of compiled code:
//
//	Bundle-Activator-Library: activator.lua
//
// The script defines global start(ctx) and stop(ctx) functions. Both are
// optional. The ctx table exposes:
//
//	ctx.symbolic_name              the bundle's symbolic name
//	ctx.log(msg)                   info log line scoped to the bundle
//	ctx.register_service(id, v)    register a string/number/bool/table service
//	ctx.unregister_service(id)
//	ctx.state_path()               bundle state directory, or nil
//	ctx.bundle_state(name)         state of another bundle, or nil
//
// Only the base, table, string and math libraries are opened; file loading
// functions are removed from the global table.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultLuaCallTimeout bounds a single start or stop call.
const DefaultLuaCallTimeout = 5 * time.Second

type luaActivator struct {
	path    string
	timeout time.Duration

	mu         sync.Mutex
	L          *lua.LState
	services   *ServiceRegistry
	registered []string
}

func newLuaActivator(path string, timeout time.Duration) (Activator, error) {
	if timeout <= 0 {
		timeout = DefaultLuaCallTimeout
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	a := &luaActivator{path: path, timeout: timeout, L: L}
	loadCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	L.SetContext(loadCtx)
	err := a.protect(func() error { return L.DoFile(path) })
	L.RemoveContext()
	if err != nil {
		L.Close()
		return nil, NewActivatorError(path, "failed to load Lua activator", err)
	}
	return a, nil
}

// Start implements Activator.
func (a *luaActivator) Start(ctx *BundleContext) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.L == nil {
		return NewActivatorError(ctx.SymbolicName(), "Lua activator already closed", nil)
	}
	return a.call("start", ctx)
}

// Stop implements Activator. Services the script registered are removed and
// the Lua state is closed afterwards.
func (a *luaActivator) Stop(ctx *BundleContext) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.L == nil {
		return nil
	}

	err := a.call("stop", ctx)
	a.releaseLocked()
	return err
}

// Close releases the Lua state without calling stop. Services the script
// registered before a failed start are removed as well.
func (a *luaActivator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
	return nil
}

func (a *luaActivator) releaseLocked() {
	if a.services != nil {
		for _, id := range a.registered {
			a.services.UnRegisterService(id)
		}
	}
	a.registered = nil
	if a.L != nil {
		a.L.Close()
		a.L = nil
	}
}

func (a *luaActivator) call(hook string, ctx *BundleContext) error {
	fn := a.L.GetGlobal(hook)
	if fn == lua.LNil {
		return nil
	}
	if fn.Type() != lua.LTFunction {
		return NewActivatorError(ctx.SymbolicName(), fmt.Sprintf("%s is not a function (got %s)", hook, fn.Type()), nil)
	}

	callCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	a.L.SetContext(callCtx)
	defer a.L.RemoveContext()

	table := a.contextTable(ctx)
	err := a.protect(func() error {
		a.L.Push(fn)
		a.L.Push(table)
		return a.L.PCall(1, 0, nil)
	})
	if err != nil {
		return NewActivatorError(ctx.SymbolicName(), "Lua "+hook+" failed", err).
			WithContext("script", a.path)
	}
	return nil
}

func (a *luaActivator) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

func (a *luaActivator) contextTable(ctx *BundleContext) *lua.LTable {
	L := a.L
	logger := ctx.Logger()
	t := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			logger.Info(L.CheckString(1), "source", "lua")
			return 0
		},
		"register_service": func(L *lua.LState) int {
			id := L.CheckString(1)
			a.services = ctx.Services()
			a.services.RegisterService(id, luaToGo(L.Get(2)))
			a.registered = append(a.registered, id)
			return 0
		},
		"unregister_service": func(L *lua.LState) int {
			ctx.Services().UnRegisterService(L.CheckString(1))
			return 0
		},
		"state_path": func(L *lua.LState) int {
			path, ok := ctx.StatePath(true)
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LString(path))
			return 1
		},
		"bundle_state": func(L *lua.LState) int {
			b := ctx.FindBundle(L.CheckString(1))
			if b == nil {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LString(b.State().String()))
			return 1
		},
	})
	L.SetField(t, "symbolic_name", lua.LString(ctx.SymbolicName()))
	return t
}

// luaToGo converts script values into plain Go values. Tables with a
// contiguous 1..n sequence become []any, other tables map[string]any.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			list := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, luaToGo(val.RawGetInt(i)))
			}
			return list
		}
		m := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			m[k.String()] = luaToGo(item)
		})
		return m
	default:
		return nil
	}
}

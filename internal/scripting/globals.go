package scripting

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/bruce-go/scripthost/internal/bridge"
	"github.com/bruce-go/scripthost/internal/core/system"
	"github.com/bruce-go/scripthost/internal/resource"
	"github.com/bruce-go/scripthost/internal/timer"
	lua "github.com/yuin/gopher-lua"
)

func (e *Engine) registerGlobals() {
	for name, fn := range map[string]lua.LGFunction{
		"print":           e.luaPrint,
		"now":             e.luaNow,
		"millis":          e.luaMillis,
		"gc":              e.luaGC,
		"require":         e.luaRequire,
		"setTimeout":      e.luaSetTimeout,
		"clearTimeout":    e.luaClearTimeout,
		"createResource":  e.luaCreateResource,
		"releaseResource": e.luaReleaseResource,
	} {
		e.vm.SetGlobal(name, e.vm.NewFunction(fn))
	}
}

// print(...) writes its arguments separated by spaces.
func (e *Engine) luaPrint(L *lua.LState) int {
	fmt.Fprintln(e.stdout, joinArgs(L, 1))
	return 0
}

// now() returns wall-clock milliseconds since the Unix epoch.
func (e *Engine) luaNow(L *lua.LState) int {
	L.Push(lua.LNumber(time.Now().UnixMilli()))
	return 1
}

// millis() returns milliseconds since the host started.
func (e *Engine) luaMillis(L *lua.LState) int {
	L.Push(lua.LNumber(e.clock.Now().Sub(e.start).Milliseconds()))
	return 1
}

// gc() runs a collection and releases whatever the finalizers queued so far.
// Finalizers run on their own goroutine after a cycle ends; the yield and the
// second cycle let most of them queue first, but the count is best-effort and
// stragglers are released on a later pass.
func (e *Engine) luaGC(L *lua.LState) int {
	before := e.arena.Len()
	runtime.GC()
	runtime.Gosched()
	runtime.GC()
	if err := e.runner.RunPhase(L.Context(), system.PhaseCollect); err != nil {
		L.RaiseError("gc: %v", err)
	}
	L.Push(lua.LNumber(before - e.arena.Len()))
	return 1
}

// require(name) returns a host module, or defers to the package library.
func (e *Engine) luaRequire(L *lua.LState) int {
	name := L.CheckString(1)
	if mod, ok := e.modules[name]; ok {
		L.Push(mod)
		return 1
	}
	if _, ok := e.require.(*lua.LFunction); !ok {
		L.RaiseError("module %q not found", name)
		return 0
	}
	L.Push(e.require)
	L.Push(lua.LString(name))
	L.Call(1, 1)
	return 1
}

// setTimeout(fn, ms) arms fn and returns its timer id.
func (e *Engine) luaSetTimeout(L *lua.LState) int {
	fn := L.CheckFunction(1)
	delay := argDelay(L, 2)
	id, err := e.timers.Schedule(func() error {
		return e.vm.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	}, delay)
	if err != nil {
		L.RaiseError("setTimeout: %v", err)
		return 0
	}
	L.Push(lua.LNumber(id))
	return 1
}

// clearTimeout(id) disarms a timer; unknown or fired ids are ignored.
func (e *Engine) luaClearTimeout(L *lua.LState) int {
	n, ok := L.Get(1).(lua.LNumber)
	if !ok || n < 0 {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(e.timers.Cancel(uint64(n))))
	return 1
}

// createResource(kind, params) allocates any registered kind.
func (e *Engine) luaCreateResource(L *lua.LState) int {
	kind := L.CheckString(1)
	switch kind {
	case resource.KindSprite:
		return e.newSprite(L, 2)
	case resource.KindGIF:
		return e.openGIF(L, 2)
	case resource.KindTextViewer:
		return e.newViewer(L, 2)
	}
	L.RaiseError("unknown resource kind %q", kind)
	return 0
}

// releaseResource(wrapper) closes a wrapper. Anything else yields false.
func (e *Engine) luaReleaseResource(L *lua.LState) int {
	w := toWrapper(L.Get(1))
	L.Push(lua.LBool(w != nil && e.bridge.Close(w)))
	return 1
}

func toWrapper(v lua.LValue) *bridge.Wrapper {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil
	}
	w, _ := ud.Value.(*bridge.Wrapper)
	return w
}

// --- argument helpers ---

// argInt reads argument n as an integer, falling back to def for anything
// that is not a number.
func argInt(L *lua.LState, n, def int) int {
	if v, ok := L.Get(n).(lua.LNumber); ok {
		return int(v)
	}
	return def
}

// argDelay reads a millisecond delay. Missing, negative and NaN values mean 0;
// values too large for a Duration, math.huge included, saturate at
// timer.MaxDelay.
func argDelay(L *lua.LState, n int) time.Duration {
	v, ok := L.Get(n).(lua.LNumber)
	if !ok || math.IsNaN(float64(v)) || v <= 0 {
		return 0
	}
	if float64(v) >= float64(timer.MaxDelay/time.Millisecond) {
		return timer.MaxDelay
	}
	return time.Duration(v) * time.Millisecond
}

func argBool(L *lua.LState, n int, def bool) bool {
	switch v := L.Get(n).(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return v != 0
	}
	return def
}

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string, def int) int {
	if v, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(v)
	}
	return def
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

func joinArgs(L *lua.LState, from int) string {
	var sb strings.Builder
	for i := from; i <= L.GetTop(); i++ {
		if i > from {
			sb.WriteByte(' ')
		}
		sb.WriteString(L.ToStringMeta(L.Get(i)).String())
	}
	return sb.String()
}

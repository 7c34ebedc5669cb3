package scripting

import (
	"context"
	"fmt"
	"time"

	"github.com/bruce-go/scripthost/internal/arena"
	"github.com/bruce-go/scripthost/internal/bridge"
	"github.com/bruce-go/scripthost/internal/resource"
	lua "github.com/yuin/gopher-lua"
)

func (e *Engine) registerTypes() {
	sprite := map[string]lua.LGFunction{
		"pushSprite": e.spritePush,
	}
	for name, fn := range canvasFuncs {
		sprite[name] = e.spriteMethod(name, fn)
	}
	e.registerType(resource.KindSprite, sprite)

	e.registerType(resource.KindGIF, map[string]lua.LGFunction{
		"playFrame":  e.gifPlayFrame,
		"dimensions": e.gifDimensions,
		"reset":      e.gifReset,
	})

	e.registerType(resource.KindTextViewer, map[string]lua.LGFunction{
		"scrollUp":     e.viewerScrollUp,
		"scrollDown":   e.viewerScrollDown,
		"scrollToLine": e.viewerScrollToLine,
		"draw":         e.viewerDraw,
		"lines":        e.viewerLines,
		"line":         e.viewerLine,
		"visibleText":  e.viewerVisibleText,
		"clear":        e.viewerClear,
		"setText":      e.viewerSetText,
	})
}

// registerType creates the metatable for a wrapper kind. Every kind gets
// close() and handle().
func (e *Engine) registerType(kind string, methods map[string]lua.LGFunction) {
	methods["close"] = e.wrapperClose
	methods["handle"] = e.wrapperHandle
	mt := e.vm.NewTypeMetatable(kind)
	e.vm.SetField(mt, "__index", e.vm.SetFuncs(e.vm.NewTable(), methods))
	e.vm.SetField(mt, "__tostring", e.vm.NewFunction(func(L *lua.LState) int {
		w := toWrapper(L.Get(1))
		if w == nil {
			L.Push(lua.LString(kind))
			return 1
		}
		L.Push(lua.LString(fmt.Sprintf("%s: %d", kind, w.Handle().Pack())))
		return 1
	}))
}

// reserve checks the per-kind quota before a native resource is built.
func (e *Engine) reserve(kind string) error {
	limit, ok := e.kinds.Limit(kind)
	if !ok {
		return fmt.Errorf("unknown resource kind %q", kind)
	}
	full := e.arena.Len() >= e.arena.Cap()
	if full || (limit > 0 && e.arena.CountKind(kind) >= limit) {
		// Slots held by unreachable wrappers may be waiting in the queue.
		e.bridge.Collect()
	}
	if limit > 0 && e.arena.CountKind(kind) >= limit {
		return fmt.Errorf("%s: %w (quota %d)", kind, arena.ErrCapacityExceeded, limit)
	}
	return nil
}

// allocate builds a resource and hands it to the script as a wrapper.
// Capacity failures raise a catchable error; a failing build returns
// nil, message.
func (e *Engine) allocate(L *lua.LState, kind string, build func() (arena.Resource, error)) int {
	if err := e.reserve(kind); err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	r, err := build()
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	w, err := e.bridge.Wrap(r)
	if err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	ud := L.NewUserData()
	ud.Value = w
	L.SetMetatable(ud, L.GetTypeMetatable(kind))
	L.Push(ud)
	return 1
}

// checkWrapper returns the wrapper at stack index n, raising if the value is
// not a wrapper of kind.
func checkWrapper(L *lua.LState, n int, kind string) *bridge.Wrapper {
	w := toWrapper(L.Get(n))
	if w == nil || w.Kind() != kind {
		L.ArgError(n, kind+" expected")
		return nil
	}
	return w
}

// resolveAs returns the live resource behind the wrapper at index n. A closed
// wrapper yields false and the caller does nothing.
func resolveAs[T arena.Resource](e *Engine, L *lua.LState, n int, kind string) (T, bool) {
	return arena.Lookup[T](e.arena, checkWrapper(L, n, kind).Handle())
}

func (e *Engine) wrapperClose(L *lua.LState) int {
	w := toWrapper(L.Get(1))
	L.Push(lua.LBool(w != nil && e.bridge.Close(w)))
	return 1
}

// handle() returns the packed slot handle, 0 once released.
func (e *Engine) wrapperHandle(L *lua.LState) int {
	w := toWrapper(L.Get(1))
	if w == nil {
		L.Push(lua.LNumber(0))
		return 1
	}
	L.Push(lua.LNumber(w.Handle().Pack()))
	return 1
}

// --- sprite ---

// newSprite accepts (w, h, depth) or a params table {width, height, depth}.
func (e *Engine) newSprite(L *lua.LState, n int) int {
	w, h, depth := argInt(L, n, 0), argInt(L, n+1, 0), argInt(L, n+2, 16)
	if t, ok := L.Get(n).(*lua.LTable); ok {
		w, h, depth = lInt(t, "width", 0), lInt(t, "height", 0), lInt(t, "depth", 16)
	}
	return e.allocate(L, resource.KindSprite, func() (arena.Resource, error) {
		return resource.NewSprite(e.display, w, h, depth)
	})
}

func (e *Engine) spriteMethod(name string, fn canvasFunc) lua.LGFunction {
	numeric := name == "width" || name == "height"
	return func(L *lua.LState) int {
		s, ok := resolveAs[*resource.Sprite](e, L, 1, resource.KindSprite)
		if !ok {
			if numeric {
				L.Push(lua.LNumber(0))
				return 1
			}
			return 0
		}
		return fn(L, s.Canvas(), 2)
	}
}

func (e *Engine) spritePush(L *lua.LState) int {
	if s, ok := resolveAs[*resource.Sprite](e, L, 1, resource.KindSprite); ok {
		s.Canvas().Push(argInt(L, 2, 0), argInt(L, 3, 0))
	}
	return 0
}

// --- gif ---

func (e *Engine) openGIF(L *lua.LState, n int) int {
	volume, path := fileArg(L, n)
	return e.allocate(L, resource.KindGIF, func() (arena.Resource, error) {
		raw, loc, err := e.volumes.ReadFile(volume, path)
		if err != nil {
			return nil, err
		}
		g, err := resource.OpenGIF(e.display, loc.Volume+":"+loc.Path, raw)
		if err != nil {
			return nil, err
		}
		g.SetSleep(e.frameSleep)
		return g, nil
	})
}

// frameSleep waits out a GIF frame on the host clock, cut short when the
// running pass is cancelled.
func (e *Engine) frameSleep(d time.Duration) {
	ctx := e.vm.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = e.clock.Sleep(ctx, d)
}

// playFrame(x, y[, sync]) returns 1 while frames remain, 0 at the end or on a
// closed gif. sync defaults to true: the call waits out the frame delay.
func (e *Engine) gifPlayFrame(L *lua.LState) int {
	g, ok := resolveAs[*resource.GIF](e, L, 1, resource.KindGIF)
	if !ok {
		L.Push(lua.LNumber(0))
		return 1
	}
	L.Push(lua.LNumber(g.PlayFrame(argInt(L, 2, 0), argInt(L, 3, 0), argBool(L, 4, true))))
	return 1
}

// dimensions() returns {width=, height=}, or 0 on a closed gif.
func (e *Engine) gifDimensions(L *lua.LState) int {
	g, ok := resolveAs[*resource.GIF](e, L, 1, resource.KindGIF)
	if !ok {
		L.Push(lua.LNumber(0))
		return 1
	}
	w, h := g.Dimensions()
	t := L.NewTable()
	t.RawSetString("width", lua.LNumber(w))
	t.RawSetString("height", lua.LNumber(h))
	L.Push(t)
	return 1
}

func (e *Engine) gifReset(L *lua.LState) int {
	if g, ok := resolveAs[*resource.GIF](e, L, 1, resource.KindGIF); ok {
		g.Reset()
	}
	return 0
}

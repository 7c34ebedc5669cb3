package scripting

import (
	"github.com/bruce-go/scripthost/internal/display"
	"github.com/bruce-go/scripthost/internal/resource"
	lua "github.com/yuin/gopher-lua"
)

// canvasFunc draws on c, reading its arguments from stack index base on.
type canvasFunc func(L *lua.LState, c display.Canvas, base int) int

var canvasFuncs = map[string]canvasFunc{
	"width": func(L *lua.LState, c display.Canvas, _ int) int {
		L.Push(lua.LNumber(c.Width()))
		return 1
	},
	"height": func(L *lua.LState, c display.Canvas, _ int) int {
		L.Push(lua.LNumber(c.Height()))
		return 1
	},
	"fillScreen": func(L *lua.LState, c display.Canvas, b int) int {
		c.FillScreen(argInt(L, b, 0))
		return 0
	},
	"drawRect": func(L *lua.LState, c display.Canvas, b int) int {
		c.DrawRect(argInt(L, b, 0), argInt(L, b+1, 0), argInt(L, b+2, 0), argInt(L, b+3, 0), argInt(L, b+4, 0))
		return 0
	},
	"drawFillRect": func(L *lua.LState, c display.Canvas, b int) int {
		c.FillRect(argInt(L, b, 0), argInt(L, b+1, 0), argInt(L, b+2, 0), argInt(L, b+3, 0), argInt(L, b+4, 0))
		return 0
	},
	"drawCircle": func(L *lua.LState, c display.Canvas, b int) int {
		c.DrawCircle(argInt(L, b, 0), argInt(L, b+1, 0), argInt(L, b+2, 0), argInt(L, b+3, 0))
		return 0
	},
	"drawFillCircle": func(L *lua.LState, c display.Canvas, b int) int {
		c.FillCircle(argInt(L, b, 0), argInt(L, b+1, 0), argInt(L, b+2, 0), argInt(L, b+3, 0))
		return 0
	},
	"drawLine": func(L *lua.LState, c display.Canvas, b int) int {
		c.DrawLine(argInt(L, b, 0), argInt(L, b+1, 0), argInt(L, b+2, 0), argInt(L, b+3, 0), argInt(L, b+4, 0))
		return 0
	},
	"drawPixel": func(L *lua.LState, c display.Canvas, b int) int {
		c.DrawPixel(argInt(L, b, 0), argInt(L, b+1, 0), argInt(L, b+2, 0))
		return 0
	},
	"drawString": func(L *lua.LState, c display.Canvas, b int) int {
		c.DrawString(L.ToStringMeta(L.Get(b)).String(), argInt(L, b+1, 0), argInt(L, b+2, 0))
		return 0
	},
	"setTextColor": func(L *lua.LState, c display.Canvas, b int) int {
		c.SetTextColor(argInt(L, b, 0xFFFF))
		return 0
	},
	"setTextSize": func(L *lua.LState, c display.Canvas, b int) int {
		c.SetTextSize(argInt(L, b, 1))
		return 0
	},
	"setCursor": func(L *lua.LState, c display.Canvas, b int) int {
		c.SetCursor(argInt(L, b, 0), argInt(L, b+1, 0))
		return 0
	},
	"print": func(L *lua.LState, c display.Canvas, b int) int {
		c.Print(joinArgs(L, b))
		return 0
	},
	"println": func(L *lua.LState, c display.Canvas, b int) int {
		c.Print(joinArgs(L, b) + "\n")
		return 0
	},
}

// displayFuncs builds the display module: canvas calls on the screen plus
// colour conversion and resource constructors.
func (e *Engine) displayFuncs() map[string]lua.LGFunction {
	funcs := map[string]lua.LGFunction{
		"color":        luaColor,
		"createSprite": func(L *lua.LState) int { return e.newSprite(L, 1) },
		"gifOpen":      func(L *lua.LState) int { return e.openGIF(L, 1) },
		"deleteSprite": e.luaDeleteSprite,
	}
	for name, fn := range canvasFuncs {
		fn := fn
		funcs[name] = func(L *lua.LState) int { return fn(L, e.display, 1) }
	}
	return funcs
}

// color(r, g, b[, depth]) packs a colour for the screen, RGB565 unless depth
// is 8.
func luaColor(L *lua.LState) int {
	c := display.Color(argInt(L, 1, 0), argInt(L, 2, 0), argInt(L, 3, 0), argInt(L, 4, 16))
	L.Push(lua.LNumber(c))
	return 1
}

// deleteSprite(sprite) returns 1 when it freed the sprite, 0 otherwise.
func (e *Engine) luaDeleteSprite(L *lua.LState) int {
	w := toWrapper(L.Get(1))
	if w == nil || w.Kind() != resource.KindSprite || !e.bridge.Close(w) {
		L.Push(lua.LNumber(0))
		return 1
	}
	L.Push(lua.LNumber(1))
	return 1
}

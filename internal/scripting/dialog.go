package scripting

import (
	"strings"

	"github.com/bruce-go/scripthost/internal/arena"
	"github.com/bruce-go/scripthost/internal/resource"
	"github.com/bruce-go/scripthost/internal/storage"
	lua "github.com/yuin/gopher-lua"
)

// fileArg reads a file argument at index n in any of the accepted forms:
// (path), (fs, path) or ({fs = ..., path = ...}).
func fileArg(L *lua.LState, n int) (volume, path string) {
	switch v := L.Get(n).(type) {
	case *lua.LTable:
		return lStr(v, "fs"), lStr(v, "path")
	case lua.LString:
		s := string(v)
		lower := strings.ToLower(s)
		if lower == storage.SD || lower == storage.LittleFS {
			if p, ok := L.Get(n + 1).(lua.LString); ok {
				return lower, string(p)
			}
		}
		return "", s
	}
	L.ArgError(n, "file path expected")
	return "", ""
}

// viewer(text | {fs, path} [, opts]) opens a text viewer.
func (e *Engine) luaViewer(L *lua.LState) int {
	return e.newViewer(L, 1)
}

// newViewer accepts the text or a file table at n and options at n+1. A
// params table may carry text, fs/path and the options together.
func (e *Engine) newViewer(L *lua.LState, n int) int {
	var (
		text   string
		volume string
		path   string
		opts   *lua.LTable
	)
	switch v := L.Get(n).(type) {
	case lua.LString:
		text = string(v)
	case *lua.LTable:
		if s, ok := v.RawGetString("text").(lua.LString); ok {
			text = string(s)
		} else {
			volume, path = fileArg(L, n)
		}
		opts = v
	default:
		L.ArgError(n, "text or file expected")
		return 0
	}
	if t, ok := L.Get(n + 1).(*lua.LTable); ok {
		opts = t
	}
	vo := viewerOptions(opts)

	return e.allocate(L, resource.KindTextViewer, func() (arena.Resource, error) {
		if path != "" {
			raw, _, err := e.volumes.ReadFile(volume, path)
			if err != nil {
				return nil, err
			}
			text = resource.DecodeText(raw)
		}
		return resource.NewTextViewer(e.display, text, vo), nil
	})
}

func viewerOptions(t *lua.LTable) resource.ViewerOptions {
	if t == nil {
		return resource.ViewerOptions{}
	}
	return resource.ViewerOptions{
		FontSize:    lInt(t, "fontSize", 1),
		StartX:      lInt(t, "startX", 0),
		StartY:      lInt(t, "startY", 0),
		Width:       lInt(t, "width", 0),
		Height:      lInt(t, "height", 0),
		IndentWraps: t.RawGetString("indentWrappedLines") == lua.LTrue,
	}
}

func (e *Engine) viewer(L *lua.LState) (*resource.TextViewer, bool) {
	return resolveAs[*resource.TextViewer](e, L, 1, resource.KindTextViewer)
}

func (e *Engine) viewerScrollUp(L *lua.LState) int {
	if v, ok := e.viewer(L); ok {
		v.ScrollUp()
	}
	return 0
}

func (e *Engine) viewerScrollDown(L *lua.LState) int {
	if v, ok := e.viewer(L); ok {
		v.ScrollDown()
	}
	return 0
}

func (e *Engine) viewerScrollToLine(L *lua.LState) int {
	if v, ok := e.viewer(L); ok {
		v.ScrollToLine(argInt(L, 2, 0))
	}
	return 0
}

func (e *Engine) viewerDraw(L *lua.LState) int {
	if v, ok := e.viewer(L); ok {
		v.Draw()
	}
	return 0
}

func (e *Engine) viewerLines(L *lua.LState) int {
	n := 0
	if v, ok := e.viewer(L); ok {
		n = v.Lines()
	}
	L.Push(lua.LNumber(n))
	return 1
}

func (e *Engine) viewerLine(L *lua.LState) int {
	v, ok := e.viewer(L)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v.Line(argInt(L, 2, 0))))
	return 1
}

func (e *Engine) viewerVisibleText(L *lua.LState) int {
	v, ok := e.viewer(L)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v.VisibleText()))
	return 1
}

func (e *Engine) viewerClear(L *lua.LState) int {
	if v, ok := e.viewer(L); ok {
		v.Clear()
	}
	return 0
}

func (e *Engine) viewerSetText(L *lua.LState) int {
	if v, ok := e.viewer(L); ok {
		v.SetText(L.ToStringMeta(L.Get(2)).String())
	}
	return 0
}

package scripting

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bruce-go/scripthost/internal/data"
	"github.com/bruce-go/scripthost/internal/display"
	"github.com/bruce-go/scripthost/internal/storage"
	"github.com/bruce-go/scripthost/internal/timer"
	"go.uber.org/zap"
)

type harness struct {
	*Engine
	out    *bytes.Buffer
	screen *display.Serial
	clock  *timer.ManualClock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		out:    &bytes.Buffer{},
		screen: display.NewSerial(240, 135, true, zap.NewNop()),
		clock:  timer.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	opts.Stdout = h.out
	opts.Display = h.screen
	if opts.Clock == nil {
		opts.Clock = h.clock
	}
	h.Engine = NewEngine(opts)
	t.Cleanup(h.Close)
	return h
}

func (h *harness) run(t *testing.T, src string) {
	t.Helper()
	if err := h.RunString(context.Background(), "test.lua", src); err != nil {
		t.Fatalf("RunString: %v", err)
	}
}

func (h *harness) lines() []string {
	return strings.Split(strings.TrimRight(h.out.String(), "\n"), "\n")
}

func (h *harness) expect(t *testing.T, want ...string) {
	t.Helper()
	got := h.lines()
	if len(got) != len(want) {
		t.Fatalf("output %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output %q, want %q", got, want)
		}
	}
}

func TestEngine_Print(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `print("a", 1, true, nil)`)
	h.expect(t, "a 1 true nil")
}

func TestEngine_TimersFireInDeadlineOrder(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		setTimeout(function() print("A", millis()) end, 100)
		setTimeout(function() print("B", millis()) end, 50)
		print("sync")
	`)
	h.expect(t, "sync", "B 50", "A 100")
	if h.Armed() != 0 {
		t.Fatalf("Armed = %d after drain", h.Armed())
	}
}

func TestEngine_EqualDeadlinesFireInRegistrationOrder(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		for i = 1, 5 do
			setTimeout(function() print(i) end, 10)
		end
	`)
	h.expect(t, "1", "2", "3", "4", "5")
}

func TestEngine_TimerCapacityIsCatchable(t *testing.T) {
	h := newHarness(t, Options{TimerCapacity: 16})
	h.run(t, `
		for i = 1, 16 do
			setTimeout(function() end, 1000)
		end
		local ok, err = pcall(setTimeout, function() end, 1000)
		print(ok, string.find(err, "capacity exceeded") ~= nil)
	`)
	h.expect(t, "false true")
	if got := h.Stats().TimersFired; got != 16 {
		t.Fatalf("TimersFired = %d, want 16", got)
	}
}

func TestEngine_FailingCallbackDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		setTimeout(function() error("boom") end, 0)
		setTimeout(function() print("second") end, 0)
	`)
	out := h.out.String()
	if !strings.Contains(out, "second") {
		t.Fatalf("second callback did not run: %q", out)
	}
	if !strings.Contains(out, "boom") {
		t.Fatalf("failure not reported: %q", out)
	}
	st := h.Stats()
	if len(st.Failures) != 1 || st.TimersFired != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestEngine_ClearTimeout(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		local id = setTimeout(function() print("never") end, 10)
		print(clearTimeout(id), clearTimeout(id), clearTimeout(12345), clearTimeout("x"))
		local fired
		fired = setTimeout(function()
			setTimeout(function() print("after", clearTimeout(fired)) end, 0)
		end, 0)
	`)
	h.expect(t, "true false false false", "after false")
}

func TestEngine_CallbacksMayScheduleAndAllocate(t *testing.T) {
	h := newHarness(t, Options{TimerCapacity: 1})
	h.run(t, `
		setTimeout(function()
			local s = display.createSprite(10, 10)
			setTimeout(function() print("inner", s:width()) ; s:close() end, 5)
		end, 0)
	`)
	h.expect(t, "inner 10")
	if h.screen.LiveSprites() != 0 || h.Live() != 0 {
		t.Fatal("sprite leaked")
	}
}

func TestEngine_SpriteLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		local s = display.createSprite(32, 16)
		print(s:handle() > 0, s:width(), s:height())
		s:fillScreen(display.color(255, 0, 0))
		s:drawFillRect(1, 2, 3, 4, 0)
		s:pushSprite(5, 6)
		print(s:close(), s:close())
		print(s:handle(), s:width())
		s:drawRect(0, 0, 1, 1, 0)
		print(releaseResource(s), releaseResource({}), releaseResource(42))
	`)
	h.expect(t, "true 32 16", "true false", "0 0", "false false false")
	if h.screen.LiveSprites() != 0 {
		t.Fatal("sprite buffer not freed")
	}
	ops := strings.Join(h.screen.Ops(), "\n")
	if !strings.Contains(ops, "sprite1.fillScreen(63488)") || !strings.Contains(ops, "sprite1.pushSprite(5,6)") {
		t.Fatalf("ops = %s", ops)
	}
	if strings.Contains(ops, "drawRect") {
		t.Fatal("drawing on a closed sprite reached the driver")
	}
	st := h.Stats()
	if st.Allocations != 1 || st.ReleasedClose != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestEngine_DeleteSprite(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		local s = display.createSprite(4, 4)
		print(display.deleteSprite(s), display.deleteSprite(s), display.deleteSprite(nil))
	`)
	h.expect(t, "1 0 0")
}

func TestEngine_ScreenDrawing(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		local d = require("display")
		print(d == display, d.width(), d.height())
		d.drawString("hi", 1, 2)
		d.println("x", 2)
	`)
	h.expect(t, "true 240 135")
	ops := h.screen.Ops()
	if ops[0] != `tft.drawString("hi",1,2)` || ops[1] != `tft.print("x 2\n")` {
		t.Fatalf("ops = %q", ops)
	}
}

func TestEngine_RequireFallsBackToPackageLibrary(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		print(require("string") == string)
		print(pcall(require, "no_such_module"))
	`)
	if h.lines()[0] != "true" || !strings.HasPrefix(h.lines()[1], "false") {
		t.Fatalf("output %q", h.lines())
	}
}

func TestEngine_KindQuota(t *testing.T) {
	kinds, err := data.LoadKindTable(writeTemp(t, "kinds.yaml",
		"kinds:\n  - name: sprite\n    limit: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, Options{Kinds: kinds})
	h.run(t, `
		local a = display.createSprite(4, 4)
		local b = display.createSprite(4, 4)
		local ok, err = pcall(display.createSprite, 4, 4)
		print(ok, string.find(err, "capacity exceeded") ~= nil)
		a:close()
		local c = display.createSprite(4, 4)
		print(c:handle() > 0)
		print(pcall(createResource, "gif", "a.gif"))
	`)
	got := h.lines()
	if got[0] != "false true" || got[1] != "true" || !strings.HasPrefix(got[2], "false") {
		t.Fatalf("output %q", got)
	}
	if h.screen.LiveSprites() != 2 {
		t.Fatalf("LiveSprites = %d, want 2", h.screen.LiveSprites())
	}
}

func TestEngine_ArenaCapacity(t *testing.T) {
	h := newHarness(t, Options{ArenaCapacity: 2})
	h.run(t, `
		local keep = { display.createSprite(4, 4), display.createSprite(4, 4) }
		local ok, err = pcall(display.createSprite, 4, 4)
		print(ok, string.find(err, "capacity exceeded") ~= nil)
	`)
	h.expect(t, "false true")
	// The failed construction must not leave a sprite buffer behind.
	if h.screen.LiveSprites() != 2 {
		t.Fatalf("LiveSprites = %d, want 2", h.screen.LiveSprites())
	}
}

func TestEngine_CloseReleasesEverything(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		sprites = {}
		for i = 1, 3 do sprites[i] = display.createSprite(4, 4) end
		viewer = dialog.viewer("hello")
	`)
	// Leave a timer armed through an evaluation error.
	err := h.RunString(context.Background(), "bad.lua", `setTimeout(function() end, 10) error("bad")`)
	if err == nil {
		t.Fatal("expected evaluation error")
	}
	if h.Armed() != 1 || h.Live() != 4 {
		t.Fatalf("armed=%d live=%d", h.Armed(), h.Live())
	}

	h.Close()
	if h.Armed() != 0 || h.Live() != 0 || h.screen.LiveSprites() != 0 {
		t.Fatalf("armed=%d live=%d sprites=%d after Close", h.Armed(), h.Live(), h.screen.LiveSprites())
	}
	if st := h.Stats(); st.ReleasedTeardown != 4 {
		t.Fatalf("ReleasedTeardown = %d, want 4", st.ReleasedTeardown)
	}
	if err := h.RunString(context.Background(), "late.lua", "print(1)"); !errors.Is(err, ErrClosed) {
		t.Fatalf("RunString after Close err = %v", err)
	}
}

func TestEngine_EvalErrorSkipsDrain(t *testing.T) {
	h := newHarness(t, Options{})
	err := h.RunString(context.Background(), "bad.lua", `
		setTimeout(function() print("fired") end, 0)
		error("bad")
	`)
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(h.out.String(), "fired") {
		t.Fatal("drain ran after an evaluation error")
	}
	h.run(t, `print("next")`)
	h.expect(t, "next", "fired")
}

func TestEngine_CompileError(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.RunString(context.Background(), "broken.lua", "print("); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestEngine_DrainHonoursContext(t *testing.T) {
	h := newHarness(t, Options{Clock: timer.SystemClock{}, MaxSleep: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.RunString(ctx, "wait.lua", `setTimeout(function() print("late") end, 3600000)`)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if h.Armed() != 1 {
		t.Fatal("timer should still be armed")
	}
}

func TestEngine_GIF(t *testing.T) {
	lfs := t.TempDir()
	writeGIF(t, filepath.Join(lfs, "anim.gif"), 2)
	h := newHarness(t, Options{Volumes: storage.Volumes{LittleFSRoot: lfs}})
	h.run(t, `
		local g = display.gifOpen("/anim.gif")
		local dim = g:dimensions()
		print(dim.width, dim.height)
		print(g:playFrame(0, 0), g:playFrame(0, 0))
		g:reset()
		print(g:close(), g:playFrame(0, 0), g:dimensions())
		local other = createResource("gif", { fs = "littlefs", path = "/anim.gif" })
		print(other:handle() > 0)
		print(display.gifOpen("littlefs", "/missing.gif"))
	`)
	got := h.lines()
	want := []string{"8 4", "1 0", "true 0 0", "true"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output %q, want prefix %q", got, want)
		}
	}
	// playFrame without a sync argument waits out each 50ms frame on the host clock.
	sleeps := h.clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 50*time.Millisecond || sleeps[1] != 50*time.Millisecond {
		t.Fatalf("frame waits = %v, want [50ms 50ms]", sleeps)
	}
	if !strings.HasPrefix(got[4], "nil") {
		t.Fatalf("missing file: %q", got[4])
	}
}

func TestEngine_TextViewer(t *testing.T) {
	lfs := t.TempDir()
	writeTemp(t, filepath.Join(lfs, "notes.txt"), "one\ntwo\nthree")
	h := newHarness(t, Options{Volumes: storage.Volumes{LittleFSRoot: lfs}})
	h.run(t, `
		local v = dialog.viewer("alpha\nbeta", { fontSize = 1, startX = 1, startY = 1, width = 60, height = 8 })
		print(v:lines(), v:line(1), v:visibleText())
		v:scrollDown()
		print(v:visibleText())
		v:draw()
		print(v:close(), v:lines(), v:line(0))
		local f = createResource("textviewer", { path = "/notes.txt" })
		print(f:lines())
	`)
	h.expect(t, "2 beta alpha", "beta", "true 0 nil", "3")
}

func TestEngine_CreateResourceUnknownKind(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `print(pcall(createResource, "socket"))`)
	if !strings.Contains(h.out.String(), "unknown resource kind") {
		t.Fatalf("output %q", h.out.String())
	}
}

func TestEngine_WrongWrapperKindRaises(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		local s = display.createSprite(4, 4)
		local v = dialog.viewer("x")
		print(pcall(s.scrollUp, s), pcall(getmetatable(v).__index.scrollUp, s))
	`)
	if got := h.lines()[0]; !strings.HasPrefix(got, "false") {
		t.Fatalf("output %q", got)
	}
}

func TestEngine_GCReleasesDroppedWrappers(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		local function scratch()
			for i = 1, 3 do display.createSprite(4, 4) end
		end
		scratch()
		local collected = 0
		for i = 1, 500 do
			collected = collected + gc()
			if collected >= 3 then break end
		end
		print(collected)
	`)
	h.expect(t, "3")

	if h.Live() != 0 || h.screen.LiveSprites() != 0 {
		t.Fatalf("live=%d sprites=%d after gc", h.Live(), h.screen.LiveSprites())
	}
	st := h.Stats()
	if st.ReleasedFinalizer != 3 || st.ReleasedClose != 0 {
		t.Fatalf("released finalizer=%d close=%d, want 3 and 0", st.ReleasedFinalizer, st.ReleasedClose)
	}
}

func writeTemp(t *testing.T, path, body string) string {
	t.Helper()
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.TempDir(), path)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeGIF(t *testing.T, path string, frames int) {
	t.Helper()
	pal := color.Palette{color.Black, color.White}
	anim := &gif.GIF{Config: image.Config{Width: 8, Height: 4, ColorModel: pal}}
	for i := 0; i < frames; i++ {
		anim.Image = append(anim.Image, image.NewPaletted(image.Rect(0, 0, 8, 4), pal))
		anim.Delay = append(anim.Delay, 5)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, anim); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_RunFileDemo(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.RunFile(context.Background(), filepath.Join("..", "..", "scripts", "demo.lua")); err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	h.expect(t, "done after 60 frames")
	if h.Live() != 0 || h.screen.LiveSprites() != 0 {
		t.Fatalf("live=%d sprites=%d after demo", h.Live(), h.screen.LiveSprites())
	}
	if got := h.Stats().TimersFired; got != 60 {
		t.Fatalf("TimersFired = %d, want 60", got)
	}
}

func TestEngine_HugeDelayStaysArmed(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t, `
		local inf = setTimeout(function() print("inf fired") end, math.huge)
		local big = setTimeout(function() print("big fired") end, 1e13)
		setTimeout(function()
			print("small fired", millis())
			print(clearTimeout(inf), clearTimeout(big))
		end, 10)
	`)
	h.expect(t, "small fired 10", "true true")
	if h.Armed() != 0 {
		t.Fatalf("Armed = %d", h.Armed())
	}
}

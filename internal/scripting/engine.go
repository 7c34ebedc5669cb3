// Package scripting is the script host: a gopher-lua VM whose bindings
// allocate native resources through the arena and defer callbacks through the
// timer scheduler. After every evaluation pass the host runs the post-pass
// systems: finalizer collection, timer drain, event dispatch.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bruce-go/scripthost/internal/arena"
	"github.com/bruce-go/scripthost/internal/bridge"
	"github.com/bruce-go/scripthost/internal/core/event"
	"github.com/bruce-go/scripthost/internal/core/system"
	"github.com/bruce-go/scripthost/internal/data"
	"github.com/bruce-go/scripthost/internal/display"
	"github.com/bruce-go/scripthost/internal/storage"
	"github.com/bruce-go/scripthost/internal/timer"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrClosed is returned when running code on a closed engine.
var ErrClosed = errors.New("scripting: engine closed")

// Options configures an Engine. Zero values select defaults.
type Options struct {
	ArenaCapacity int
	TimerCapacity int
	MaxSleep      time.Duration
	Clock         timer.Clock
	Display       display.Driver
	Volumes       storage.Volumes
	Kinds         *data.KindTable
	Stdout        io.Writer // print() output
	Log           *zap.Logger
}

// Engine wraps a single gopher-lua VM and the tables it owns.
// Single-goroutine access only.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger

	arena   *arena.Arena
	bridge  *bridge.Bridge
	timers  *timer.Scheduler
	bus     *event.Bus
	runner  *system.Runner
	display display.Driver
	volumes storage.Volumes
	kinds   *data.KindTable
	stdout  io.Writer
	clock   timer.Clock
	start   time.Time

	modules map[string]*lua.LTable
	require lua.LValue // package library require, for non-host modules
	stats   Stats
	closed  bool
}

func NewEngine(opts Options) *Engine {
	if opts.ArenaCapacity <= 0 {
		opts.ArenaCapacity = 32
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = timer.SystemClock{}
	}
	if opts.Display == nil {
		opts.Display = display.NewSerial(240, 135, false, opts.Log)
	}
	if opts.Kinds == nil {
		opts.Kinds = data.DefaultKinds()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	e := &Engine{
		vm:      lua.NewState(),
		log:     opts.Log,
		bus:     event.NewBus(),
		runner:  system.NewRunner(),
		display: opts.Display,
		volumes: opts.Volumes,
		kinds:   opts.Kinds,
		stdout:  opts.Stdout,
		clock:   opts.Clock,
		modules: make(map[string]*lua.LTable),
	}
	e.start = e.clock.Now()
	e.arena = arena.New(opts.ArenaCapacity, e.log)
	e.bridge = bridge.New(e.arena, e.bus, e.log)
	e.timers = timer.NewScheduler(timer.Options{
		Capacity:      opts.TimerCapacity,
		MaxSleep:      opts.MaxSleep,
		Clock:         opts.Clock,
		OnError:       e.reportCallbackError,
		AfterCallback: func() { e.bridge.Collect() },
		Bus:           e.bus,
		Log:           e.log,
	})

	e.runner.Register(&collectSystem{bridge: e.bridge})
	e.runner.Register(&drainSystem{timers: e.timers})
	e.runner.Register(&dispatchSystem{bus: e.bus})
	e.subscribeStats()

	e.require = e.vm.GetGlobal("require")
	e.registerGlobals()
	e.registerTypes()
	e.registerModule("display", e.displayFuncs())
	e.registerModule("dialog", map[string]lua.LGFunction{"viewer": e.luaViewer})
	return e
}

func (e *Engine) registerModule(name string, funcs map[string]lua.LGFunction) {
	mod := e.vm.SetFuncs(e.vm.NewTable(), funcs)
	e.modules[name] = mod
	e.vm.SetGlobal(name, mod)
}

// RunString evaluates src, then runs the post-pass systems. An evaluation
// error is returned as is and the pass is skipped; armed timers stay armed
// until Close.
func (e *Engine) RunString(ctx context.Context, name, src string) error {
	if e.closed {
		return ErrClosed
	}
	e.vm.SetContext(ctx)
	defer e.vm.RemoveContext()

	fn, err := e.vm.Load(strings.NewReader(src), name)
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	e.vm.Push(fn)
	if err := e.vm.PCall(0, lua.MultRet, nil); err != nil {
		e.vm.SetTop(0)
		return fmt.Errorf("run %s: %w", name, err)
	}
	e.vm.SetTop(0)

	if err := e.runner.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// RunFile reads a script from the host filesystem and runs it.
func (e *Engine) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return e.RunString(ctx, filepath.Base(path), string(src))
}

// Live returns the number of occupied resource slots.
func (e *Engine) Live() int { return e.arena.Len() }

// Armed returns the number of armed timers.
func (e *Engine) Armed() int { return e.timers.Armed() }

// Close cancels every timer, releases every resource, delivers the remaining
// lifecycle events and shuts the VM down. Safe to call twice.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	cancelled := e.timers.CancelAll()
	released := e.bridge.Shutdown()
	e.bus.Flush()
	e.vm.Close()
	e.log.Debug("script host closed",
		zap.Int("timers_cancelled", cancelled),
		zap.Int("resources_released", released))
}

func (e *Engine) reportCallbackError(id uint64, err error) {
	fmt.Fprintf(e.stdout, "timer %d: %v\n", id, err)
}

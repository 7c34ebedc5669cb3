package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bruce-go/scripthost/internal/config"
	"github.com/bruce-go/scripthost/internal/data"
	"github.com/bruce-go/scripthost/internal/display"
	"github.com/bruce-go/scripthost/internal/persist"
	"github.com/bruce-go/scripthost/internal/resource"
	"github.com/bruce-go/scripthost/internal/scripting"
	"github.com/bruce-go/scripthost/internal/storage"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 2)
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// styled is false when stdout is not a terminal; output is then plain text.
var styled = term.IsTerminal(int(os.Stdout.Fd()))

func render(s lipgloss.Style, text string) string {
	if !styled {
		return text
	}
	return s.Render(text)
}

func printBanner() {
	fmt.Println()
	fmt.Println("  " + render(bannerStyle, "scripthost · embedded script runner"))
	fmt.Println()
}

func printSection(title string) {
	lineLen := max(46-resource.Cells(title)-1, 3)
	fmt.Println("  " + render(sectionStyle, "── "+title+" "+strings.Repeat("─", lineLen)))
}

func printStat(label string, count int) {
	num := fmt.Sprintf("%d", count)
	dots := max(42-resource.Cells(label)-len(num), 3)
	fmt.Printf("  %s %s %s\n", label, render(dimStyle, strings.Repeat("·", dots)), render(okStyle, num))
}

func printOK(msg string) {
	fmt.Printf("  %s %s\n", render(okStyle, "✓"), msg)
}

func printFail(msg string) {
	fmt.Printf("  %s %s\n", render(errorStyle, "✗"), msg)
}

// ── Main runner logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/scripthost.toml"
	if p := os.Getenv("SCRIPTHOST_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	scripts := os.Args[1:]
	if len(scripts) == 0 {
		return errors.New("usage: scripthost <script.lua>...")
	}

	printBanner()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Optional run journal
	journal, closeJournal, err := openJournal(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	// 4. Static data
	printSection("Data")
	kinds, err := data.LoadKindTable(cfg.Data.Kinds)
	if err != nil {
		return fmt.Errorf("load resource kinds: %w", err)
	}
	printStat("resource kinds", kinds.Count())
	for _, name := range kinds.Names() {
		k := kinds.Get(name)
		printStat(name+" quota", k.Limit)
		log.Debug("resource kind", zap.String("kind", k.Name), zap.Int("limit", k.Limit), zap.String("description", k.Description))
	}
	printStat("arena slots", cfg.Host.ArenaCapacity)
	printStat("timer slots", cfg.Host.TimerCapacity)

	screen := display.NewSerial(cfg.Display.Width, cfg.Display.Height, cfg.Display.Record, log.Named("display"))
	volumes := storage.Volumes{SDRoot: cfg.Storage.SD, LittleFSRoot: cfg.Storage.LittleFS}
	if volumes.Mounted() {
		printOK("SD card mounted at " + cfg.Storage.SD)
	}

	// 5. Run scripts, one host context each
	printSection("Scripts")
	failed := 0
	for _, arg := range scripts {
		if ctx.Err() != nil {
			break
		}
		path := locateScript(arg, cfg.Host.ScriptsDir)
		src, err := os.ReadFile(path)
		if err != nil {
			printFail(fmt.Sprintf("%s: %v", arg, err))
			failed++
			continue
		}

		engine := scripting.NewEngine(scripting.Options{
			ArenaCapacity: cfg.Host.ArenaCapacity,
			TimerCapacity: cfg.Host.TimerCapacity,
			MaxSleep:      cfg.Host.MaxSleep,
			Display:       screen,
			Volumes:       volumes,
			Kinds:         kinds,
			Log:           log.Named("host"),
		})
		rec := persist.NewRun(filepath.Base(path), src, time.Now())
		if journal != nil && unchangedSinceLastRun(ctx, journal, rec, log) {
			log.Info("script unchanged since its last recorded run", zap.String("script", rec.Script))
		}
		runErr := engine.RunString(ctx, filepath.Base(path), string(src))
		engine.Close()
		rec.Finish(time.Now(), runErr, ctx.Err() != nil)
		fillRun(rec, engine.Stats())

		if runErr != nil {
			failed++
			printFail(fmt.Sprintf("%s: %v", arg, runErr))
		} else {
			printOK(fmt.Sprintf("%s (%s)", arg, rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond)))
		}
		log.Info("script finished",
			zap.String("script", rec.Script),
			zap.String("status", rec.Status),
			zap.Int("allocations", rec.Allocations),
			zap.Int("timers_fired", rec.TimersFired),
			zap.Int("callback_failures", len(rec.Failures)))

		if journal != nil {
			if _, err := journal.Record(context.WithoutCancel(ctx), rec); err != nil {
				log.Error("record run", zap.Error(err))
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(scripts))
	}
	return nil
}

type digestSource interface {
	LastDigest(ctx context.Context, script string) ([]byte, error)
}

// unchangedSinceLastRun reports whether the journal's latest run of the same
// script had the same source digest.
func unchangedSinceLastRun(ctx context.Context, journal digestSource, rec *persist.Run, log *zap.Logger) bool {
	prev, err := journal.LastDigest(ctx, rec.Script)
	if err != nil {
		log.Warn("read last digest", zap.String("script", rec.Script), zap.Error(err))
		return false
	}
	return bytes.Equal(prev, rec.Digest[:])
}

// locateScript resolves a script argument, trying scripts_dir when the path
// does not exist as given.
func locateScript(arg, dir string) string {
	if _, err := os.Stat(arg); err == nil || dir == "" || filepath.IsAbs(arg) {
		return arg
	}
	return filepath.Join(dir, arg)
}

func fillRun(rec *persist.Run, st scripting.Stats) {
	rec.Allocations = st.Allocations
	rec.ReleasedClose = st.ReleasedClose
	rec.ReleasedGC = st.ReleasedFinalizer
	rec.ReleasedTeardown = st.ReleasedTeardown
	rec.TimersFired = st.TimersFired
	for _, f := range st.Failures {
		rec.Failures = append(rec.Failures, persist.CallbackFailure{Timer: f.Timer, Message: f.Err.Error()})
	}
}

func openJournal(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*persist.JournalRepo, func(), error) {
	if cfg.DSN == "" {
		return nil, func() {}, nil
	}
	printSection("Journal")

	dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := persist.Open(dbCtx, cfg, log.Named("journal"))
	if err != nil {
		return nil, nil, fmt.Errorf("journal: %w", err)
	}
	printOK(fmt.Sprintf("PostgreSQL connected, schema v%d", db.Version))

	return persist.NewJournalRepo(db), db.Close, nil
}

package display

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
)

// ErrSpriteSize is returned for sprites with a non-positive dimension.
var ErrSpriteSize = errors.New("display: invalid sprite size")

// Serial is a screenless driver. Every draw call is logged at debug level and,
// when recording is on, kept in an operation log for inspection.
type Serial struct {
	width, height int
	record        bool
	log           *zap.Logger

	mu      sync.Mutex
	ops     []string
	sprites int // live sprite buffers
	created int
}

func NewSerial(width, height int, record bool, log *zap.Logger) *Serial {
	return &Serial{width: width, height: height, record: record, log: log}
}

func (d *Serial) emit(target string, format string, args ...any) {
	op := target + "." + fmt.Sprintf(format, args...)
	d.log.Debug("draw", zap.String("op", op))
	if !d.record {
		return
	}
	d.mu.Lock()
	d.ops = append(d.ops, op)
	d.mu.Unlock()
}

// Ops returns the recorded operations.
func (d *Serial) Ops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.ops))
	copy(out, d.ops)
	return out
}

// LiveSprites returns the number of sprite buffers not yet deleted.
func (d *Serial) LiveSprites() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sprites
}

func (d *Serial) CreateSprite(w, h, depth int) (Sprite, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrSpriteSize, w, h)
	}
	if depth != 1 && depth != 8 && depth != 16 {
		depth = 16
	}
	d.mu.Lock()
	d.sprites++
	d.created++
	name := fmt.Sprintf("sprite%d", d.created)
	d.mu.Unlock()
	d.emit("tft", "createSprite(%d,%d,%d)", w, h, depth)
	return &serialSprite{surface: surface{d: d, name: name, w: w, h: h}, depth: depth}, nil
}

func (d *Serial) screen() *surface {
	return &surface{d: d, name: "tft", w: d.width, h: d.height}
}

func (d *Serial) Width() int { return d.width }
func (d *Serial) Height() int { return d.height }
func (d *Serial) FillScreen(c int) { d.screen().FillScreen(c) }
func (d *Serial) DrawRect(x, y, w, h, c int) { d.screen().DrawRect(x, y, w, h, c) }
func (d *Serial) FillRect(x, y, w, h, c int) { d.screen().FillRect(x, y, w, h, c) }
func (d *Serial) DrawCircle(x, y, r, c int) { d.screen().DrawCircle(x, y, r, c) }
func (d *Serial) FillCircle(x, y, r, c int) { d.screen().FillCircle(x, y, r, c) }
func (d *Serial) DrawLine(x0, y0, x1, y1, c int) { d.screen().DrawLine(x0, y0, x1, y1, c) }
func (d *Serial) DrawPixel(x, y, c int) { d.screen().DrawPixel(x, y, c) }
func (d *Serial) DrawString(s string, x, y int) { d.screen().DrawString(s, x, y) }
func (d *Serial) SetTextColor(c int) { d.screen().SetTextColor(c) }
func (d *Serial) SetTextSize(size int) { d.screen().SetTextSize(size) }
func (d *Serial) SetCursor(x, y int) { d.screen().SetCursor(x, y) }
func (d *Serial) Print(s string) { d.screen().Print(s) }
func (d *Serial) DrawImage(img image.Image, x, y int) { d.screen().DrawImage(img, x, y) }

// surface implements Canvas for the screen and for sprites.
type surface struct {
	d    *Serial
	name string
	w, h int
}

func (s *surface) Width() int { return s.w }
func (s *surface) Height() int { return s.h }

func (s *surface) FillScreen(c int) { s.d.emit(s.name, "fillScreen(%d)", c) }

func (s *surface) DrawRect(x, y, w, h, c int) {
	s.d.emit(s.name, "drawRect(%d,%d,%d,%d,%d)", x, y, w, h, c)
}

func (s *surface) FillRect(x, y, w, h, c int) {
	s.d.emit(s.name, "fillRect(%d,%d,%d,%d,%d)", x, y, w, h, c)
}

func (s *surface) DrawCircle(x, y, r, c int) {
	s.d.emit(s.name, "drawCircle(%d,%d,%d,%d)", x, y, r, c)
}

func (s *surface) FillCircle(x, y, r, c int) {
	s.d.emit(s.name, "fillCircle(%d,%d,%d,%d)", x, y, r, c)
}

func (s *surface) DrawLine(x0, y0, x1, y1, c int) {
	s.d.emit(s.name, "drawLine(%d,%d,%d,%d,%d)", x0, y0, x1, y1, c)
}

func (s *surface) DrawPixel(x, y, c int) { s.d.emit(s.name, "drawPixel(%d,%d,%d)", x, y, c) }

func (s *surface) DrawString(str string, x, y int) {
	s.d.emit(s.name, "drawString(%q,%d,%d)", str, x, y)
}

func (s *surface) SetTextColor(c int) { s.d.emit(s.name, "setTextColor(%d)", c) }
func (s *surface) SetTextSize(size int) { s.d.emit(s.name, "setTextSize(%d)", size) }
func (s *surface) SetCursor(x, y int) { s.d.emit(s.name, "setCursor(%d,%d)", x, y) }
func (s *surface) Print(str string) { s.d.emit(s.name, "print(%q)", str) }

func (s *surface) DrawImage(img image.Image, x, y int) {
	b := img.Bounds()
	s.d.emit(s.name, "drawImage(%d,%d,%dx%d)", x, y, b.Dx(), b.Dy())
}

type serialSprite struct {
	surface
	depth   int
	deleted bool
}

func (s *serialSprite) Push(x, y int) { s.d.emit(s.name, "pushSprite(%d,%d)", x, y) }

func (s *serialSprite) Delete() {
	if s.deleted {
		return
	}
	s.deleted = true
	s.d.mu.Lock()
	s.d.sprites--
	s.d.mu.Unlock()
	s.d.emit(s.name, "deleteSprite()")
}

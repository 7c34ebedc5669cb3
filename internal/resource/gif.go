package resource

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"time"

	"github.com/bruce-go/scripthost/internal/display"
)

// GIF is an opened animated image. Frames are decoded once at open time and
// drawn one per PlayFrame call.
type GIF struct {
	name   string
	anim   *gif.GIF
	target display.Canvas
	frame  int
	sleep  func(time.Duration)
}

// OpenGIF decodes data. name is only used in error messages.
func OpenGIF(target display.Canvas, name string, data []byte) (*GIF, error) {
	anim, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gif %s: %w", name, err)
	}
	if len(anim.Image) == 0 {
		return nil, fmt.Errorf("open gif %s: no frames", name)
	}
	return &GIF{name: name, anim: anim, target: target, sleep: time.Sleep}, nil
}

func (g *GIF) Kind() string { return KindGIF }

// SetSleep replaces the wait used by synchronised playback.
func (g *GIF) SetSleep(fn func(time.Duration)) { g.sleep = fn }

// PlayFrame draws the next frame with its top-left corner at x, y. With sync
// set it then waits out the frame's delay. It returns 1 while more frames
// follow and 0 once the last frame has been drawn; the next call starts over.
func (g *GIF) PlayFrame(x, y int, sync bool) int {
	if g.anim == nil {
		return 0
	}
	img := g.anim.Image[g.frame]
	g.target.DrawImage(img, x+img.Rect.Min.X, y+img.Rect.Min.Y)
	if sync && g.sleep != nil {
		g.sleep(g.frameDelay(g.frame))
	}
	g.frame++
	if g.frame >= len(g.anim.Image) {
		g.frame = 0
		return 0
	}
	return 1
}

// frameDelay converts the frame's delay from hundredths of a second.
func (g *GIF) frameDelay(i int) time.Duration {
	if i >= len(g.anim.Delay) {
		return 0
	}
	return time.Duration(g.anim.Delay[i]) * 10 * time.Millisecond
}

// Dimensions returns the logical screen size of the animation.
func (g *GIF) Dimensions() (int, int) {
	if g.anim == nil {
		return 0, 0
	}
	w, h := g.anim.Config.Width, g.anim.Config.Height
	if w == 0 || h == 0 {
		b := image.Rect(0, 0, 0, 0)
		for _, f := range g.anim.Image {
			b = b.Union(f.Rect)
		}
		w, h = b.Dx(), b.Dy()
	}
	return w, h
}

func (g *GIF) Frames() int {
	if g.anim == nil {
		return 0
	}
	return len(g.anim.Image)
}

// Reset rewinds to the first frame.
func (g *GIF) Reset() { g.frame = 0 }

func (g *GIF) Close() error {
	g.anim = nil
	g.target = nil
	return nil
}

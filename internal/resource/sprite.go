package resource

import "github.com/bruce-go/scripthost/internal/display"

// Sprite is an off-screen drawing surface owned by the display driver.
type Sprite struct {
	canvas display.Sprite
	depth  int
}

// NewSprite allocates a w x h sprite of the given colour depth. Non-positive
// sizes default to the screen size.
func NewSprite(d display.Driver, w, h, depth int) (*Sprite, error) {
	if w <= 0 {
		w = d.Width()
	}
	if h <= 0 {
		h = d.Height()
	}
	if depth <= 0 {
		depth = 16
	}
	c, err := d.CreateSprite(w, h, depth)
	if err != nil {
		return nil, err
	}
	return &Sprite{canvas: c, depth: depth}, nil
}

func (s *Sprite) Kind() string { return KindSprite }

// Canvas exposes the sprite for drawing.
func (s *Sprite) Canvas() display.Sprite { return s.canvas }

func (s *Sprite) Depth() int { return s.depth }

func (s *Sprite) Close() error {
	if s.canvas != nil {
		s.canvas.Delete()
		s.canvas = nil
	}
	return nil
}

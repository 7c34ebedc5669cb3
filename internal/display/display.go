// Package display defines the drawing surface the script host talks to. The
// hardware protocol behind a Driver is not modelled here.
package display

import "image"

// Canvas is anything scripts can draw on: the screen itself or a sprite.
type Canvas interface {
	Width() int
	Height() int
	FillScreen(c int)
	DrawRect(x, y, w, h, c int)
	FillRect(x, y, w, h, c int)
	DrawCircle(x, y, r, c int)
	FillCircle(x, y, r, c int)
	DrawLine(x0, y0, x1, y1, c int)
	DrawPixel(x, y, c int)
	DrawString(s string, x, y int)
	SetTextColor(c int)
	SetTextSize(size int)
	SetCursor(x, y int)
	Print(s string)
	DrawImage(img image.Image, x, y int)
}

// Sprite is an off-screen canvas allocated by the driver.
type Sprite interface {
	Canvas
	Push(x, y int)
	// Delete frees the sprite's buffer. Drawing after Delete is undefined.
	Delete()
}

// Driver is the physical (or emulated) screen.
type Driver interface {
	Canvas
	CreateSprite(w, h, depth int) (Sprite, error)
}

// Color565 packs 8-bit RGB components into RGB565.
func Color565(r, g, b int) int {
	return (r&0xF8)<<8 | (g&0xFC)<<3 | (b&0xFF)>>3
}

// Color332 reduces an RGB565 value to 8-bit RGB332.
func Color332(c565 int) int {
	return (c565&0xE000)>>8 | (c565&0x0700)>>6 | (c565&0x0018)>>3
}

// Color returns the colour for r, g, b in the requested depth: 16 for RGB565,
// anything else for 8-bit.
func Color(r, g, b, depth int) int {
	c := Color565(r, g, b)
	if depth == 16 {
		return c
	}
	return Color332(c)
}

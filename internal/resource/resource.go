// Package resource holds the native resource kinds scripts can allocate. Each
// type satisfies arena.Resource; Close is the driver teardown.
package resource

const (
	KindSprite     = "sprite"
	KindGIF        = "gif"
	KindTextViewer = "textviewer"
)

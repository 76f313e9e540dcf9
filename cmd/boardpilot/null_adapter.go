package main

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/kestrelsoft/boardpilot/internal/geometry"
	"github.com/kestrelsoft/boardpilot/internal/platform"
)

// nullAdapter is a no-op platform.Adapter: Screenshot returns a blank
// frame at the base resolution and every input method is a silent no-op.
// It exists so the full capture-decide-execute pipeline can be wired and
// smoke-tested in dry-run mode without a real platform binding.
type nullAdapter struct {
	size geometry.Size
}

func newNullAdapter() *nullAdapter {
	return &nullAdapter{size: geometry.BaseResolution}
}

func (n *nullAdapter) Screenshot(ctx context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, n.size.W, n.size.H))
	draw(img, color.Gray{Y: 32})
	return img, nil
}

func draw(img *image.RGBA, c color.Color) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func (n *nullAdapter) Click(ctx context.Context, x, y int, button platform.MouseButton, clicks int, interval time.Duration) error {
	return nil
}

func (n *nullAdapter) Drag(ctx context.Context, startX, startY, endX, endY int, duration time.Duration) error {
	return nil
}

func (n *nullAdapter) Scroll(ctx context.Context, x, y, clicks int) error { return nil }

func (n *nullAdapter) TypeText(ctx context.Context, text string, interval time.Duration) error {
	return nil
}

func (n *nullAdapter) PressKey(ctx context.Context, key string) error { return nil }

func (n *nullAdapter) WindowInfo(ctx context.Context) (platform.WindowInfo, bool, error) {
	return platform.WindowInfo{Title: "null-adapter", Width: n.size.W, Height: n.size.H}, true, nil
}

func (n *nullAdapter) IsActive(ctx context.Context) (bool, error) { return true, nil }

func (n *nullAdapter) Activate(ctx context.Context) error { return nil }

func (n *nullAdapter) ScaleFactor(ctx context.Context) (float64, error) { return 1.0, nil }

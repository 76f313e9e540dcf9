// Package platform defines the Adapter contract: screenshot capture
// and input injection against the actual game window. Concrete adapters
// (a specific OS's window/automation APIs) live outside this module;
// this package is only the seam they plug into.
package platform

import (
	"context"
	"image"
	"time"
)

// WindowInfo describes the located game window.
type WindowInfo struct {
	Title    string
	Left     int
	Top      int
	Width    int
	Height   int
	WindowID *int64
}

// Rect returns (left, top, width, height).
func (w WindowInfo) Rect() (int, int, int, int) { return w.Left, w.Top, w.Width, w.Height }

// Center returns the window's center in screen coordinates.
func (w WindowInfo) Center() (int, int) { return w.Left + w.Width/2, w.Top + w.Height/2 }

// MouseButton names a click target.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// Adapter is the platform-specific capture/input boundary every
// SessionLoop drives through. Every method takes a context so a
// misbehaving platform call (a hung screenshot driver, a blocked input
// queue) can be cancelled rather than wedging the tick loop.
type Adapter interface {
	// Screenshot captures the current game window content.
	Screenshot(ctx context.Context) (image.Image, error)

	// Click performs clicks-many clicks at (x, y) in screen coordinates.
	Click(ctx context.Context, x, y int, button MouseButton, clicks int, interval time.Duration) error

	// Drag moves the pointer from (startX,startY) to (endX,endY) over duration.
	Drag(ctx context.Context, startX, startY, endX, endY int, duration time.Duration) error

	// Scroll scrolls at (x, y); positive clicks scrolls up, negative down.
	Scroll(ctx context.Context, x, y, clicks int) error

	// TypeText types text with interval between keystrokes.
	TypeText(ctx context.Context, text string, interval time.Duration) error

	// PressKey presses and releases a single named key (e.g. "enter", "escape").
	PressKey(ctx context.Context, key string) error

	// WindowInfo returns the located game window, or ok=false if not found.
	WindowInfo(ctx context.Context) (WindowInfo, bool, error)

	// IsActive reports whether the game window is currently foregrounded.
	IsActive(ctx context.Context) (bool, error)

	// Activate brings the game window to the foreground.
	Activate(ctx context.Context) error

	// ScaleFactor reports the window's pixel scale (1.0 on standard DPI,
	// >1.0 on e.g. Retina displays) so click coordinates can be corrected.
	ScaleFactor(ctx context.Context) (float64, error)
}

// ScreenToWindow converts screen coordinates to window-local
// coordinates given a window rect.
func ScreenToWindow(info WindowInfo, x, y int) (int, int) {
	return x - info.Left, y - info.Top
}

// WindowToScreen converts window-local coordinates to screen coordinates.
func WindowToScreen(info WindowInfo, x, y int) (int, int) {
	return x + info.Left, y + info.Top
}

// Package geometry implements resolution-independent coordinate mapping
// (CoordinateTransform) and the catalog of named UI regions at base
// resolution (RegionCatalog).
package geometry

import (
	"fmt"

	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
)

// Size is a width/height pair in pixels.
type Size struct {
	W, H int
}

// Rect is an axis-aligned rectangle with an (X, Y) origin.
type Rect struct {
	X, Y, W, H int
}

// Point is an integer pixel coordinate.
type Point struct {
	X, Y int
}

// InvalidGeometryError reports a non-positive side or a content rect that
// escapes the current window bounds.
type InvalidGeometryError struct {
	Message string
}

func (e *InvalidGeometryError) Error() string { return "invalid geometry: " + e.Message }

// DegenerateTransformError is raised by UnmapPoint when a scale factor is
// zero, which would make the inverse mapping undefined.
type DegenerateTransformError struct {
	Axis string
}

func (e *DegenerateTransformError) Error() string {
	return fmt.Sprintf("degenerate transform: %s scale is zero", e.Axis)
}

// CoordinateTransform maps coordinates between the base resolution
// (1920x1080 in practice, but any positive size works) and the current
// window. When ContentRect is not supplied at construction, it is
// inferred as the largest centered rectangle preserving the base aspect
// ratio inside the current window (letterbox). Scale factors are
// computed once at construction and cached; the type is immutable and
// safe for concurrent reads.
type CoordinateTransform struct {
	Base        Size
	Current     Size
	ContentRect Rect
	ScaleX      float64
	ScaleY      float64
}

// NewCoordinateTransform builds a transform, inferring the letterboxed
// content rect when contentRect is nil. It fails with
// *InvalidGeometryError when any side is non-positive or the (explicit
// or inferred) content rect escapes the current window.
func NewCoordinateTransform(base, current Size, contentRect *Rect) (*CoordinateTransform, error) {
	if base.W <= 0 || base.H <= 0 {
		return nil, &InvalidGeometryError{Message: "base size must have positive width and height"}
	}
	if current.W <= 0 || current.H <= 0 {
		return nil, &InvalidGeometryError{Message: "current size must have positive width and height"}
	}

	var cr Rect
	if contentRect != nil {
		cr = *contentRect
	} else {
		cr = inferLetterbox(base, current)
	}

	if cr.W <= 0 || cr.H <= 0 {
		return nil, &InvalidGeometryError{Message: "content rect must have positive width and height"}
	}
	if cr.X < 0 || cr.Y < 0 || cr.X+cr.W > current.W || cr.Y+cr.H > current.H {
		return nil, &InvalidGeometryError{Message: "content rect escapes current window bounds"}
	}

	return &CoordinateTransform{
		Base:        base,
		Current:     current,
		ContentRect: cr,
		ScaleX:      float64(cr.W) / float64(base.W),
		ScaleY:      float64(cr.H) / float64(base.H),
	}, nil
}

// inferLetterbox computes the largest base-aspect-ratio rectangle that
// fits centered inside current, rounding inward so the content rect
// never escapes the window.
func inferLetterbox(base, current Size) Rect {
	baseAspect := float64(base.W) / float64(base.H)
	currentAspect := float64(current.W) / float64(current.H)

	var w, h int
	if currentAspect > baseAspect {
		// Current window is relatively wider than base: pillarbox.
		h = current.H
		w = int(float64(h) * baseAspect)
	} else {
		// Current window is relatively taller than base: letterbox.
		w = current.W
		h = int(float64(w) / baseAspect)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := (current.W - w) / 2
	y := (current.H - h) / 2
	return Rect{X: x, Y: y, W: w, H: h}
}

// MapPoint maps a base-frame point into the current window, truncating
// to int.
func (t *CoordinateTransform) MapPoint(p Point) Point {
	return Point{
		X: t.ContentRect.X + int(float64(p.X)*t.ScaleX),
		Y: t.ContentRect.Y + int(float64(p.Y)*t.ScaleY),
	}
}

// MapSize maps a base-frame size into the current window, clamping each
// dimension to at least 1.
func (t *CoordinateTransform) MapSize(s Size) Size {
	w := int(float64(s.W) * t.ScaleX)
	h := int(float64(s.H) * t.ScaleY)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Size{W: w, H: h}
}

// MapRect maps a base-frame rect into the current window.
func (t *CoordinateTransform) MapRect(r Rect) Rect {
	origin := t.MapPoint(Point{X: r.X, Y: r.Y})
	size := t.MapSize(Size{W: r.W, H: r.H})
	return Rect{X: origin.X, Y: origin.Y, W: size.W, H: size.H}
}

// MapBBox maps a base-frame bbox into the current window.
func (t *CoordinateTransform) MapBBox(x0, y0, x1, y1 int) (int, int, int, int) {
	p0 := t.MapPoint(Point{X: x0, Y: y0})
	p1 := t.MapPoint(Point{X: x1, Y: y1})
	return p0.X, p0.Y, p1.X, p1.Y
}

// UnmapPoint inverts MapPoint. It returns *DegenerateTransformError when
// either scale factor is zero.
func (t *CoordinateTransform) UnmapPoint(p Point) (Point, error) {
	if t.ScaleX == 0 {
		return Point{}, &DegenerateTransformError{Axis: "x"}
	}
	if t.ScaleY == 0 {
		return Point{}, &DegenerateTransformError{Axis: "y"}
	}
	return Point{
		X: int(float64(p.X-t.ContentRect.X) / t.ScaleX),
		Y: int(float64(p.Y-t.ContentRect.Y) / t.ScaleY),
	}, nil
}

// AsConfigError adapts a geometry error into the project-wide ConfigError
// family for callers that log at the design-level error taxonomy instead
// of the concrete geometry type.
func AsConfigError(component string, err error) error {
	if err == nil {
		return nil
	}
	return bperr.NewConfigError(component, err.Error())
}

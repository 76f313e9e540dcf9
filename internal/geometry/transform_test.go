package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoordinateTransformInfersLetterbox(t *testing.T) {
	// Current window is wider than base aspect: pillarbox (bars on the sides).
	tr, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 2560, H: 1080}, nil)
	require.NoError(t, err)
	assert.Greater(t, tr.ContentRect.X, 0, "pillarboxed content should be inset from the left edge")
	assert.Equal(t, 1080, tr.ContentRect.H)
	assert.LessOrEqual(t, tr.ContentRect.X+tr.ContentRect.W, tr.Current.W)
}

func TestNewCoordinateTransformRejectsNonPositiveSizes(t *testing.T) {
	_, err := NewCoordinateTransform(Size{W: 0, H: 1080}, Size{W: 1920, H: 1080}, nil)
	require.Error(t, err)
	var geomErr *InvalidGeometryError
	assert.ErrorAs(t, err, &geomErr)
}

func TestNewCoordinateTransformRejectsContentRectEscapingBounds(t *testing.T) {
	bad := Rect{X: 1800, Y: 0, W: 500, H: 1080}
	_, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 1920, H: 1080}, &bad)
	require.Error(t, err)
	var geomErr *InvalidGeometryError
	assert.ErrorAs(t, err, &geomErr)
}

func TestMapPointRoundTripsThroughUnmapPoint(t *testing.T) {
	tr, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 1440, H: 810}, nil)
	require.NoError(t, err)

	for _, p := range []Point{{X: 0, Y: 0}, {X: 960, Y: 540}, {X: 1919, Y: 1079}} {
		mapped := tr.MapPoint(p)
		back, err := tr.UnmapPoint(mapped)
		require.NoError(t, err)
		// Integer truncation on both legs can lose at most one pixel per axis.
		assert.InDelta(t, p.X, back.X, 1)
		assert.InDelta(t, p.Y, back.Y, 1)
	}
}

func TestUnmapPointDegenerateTransform(t *testing.T) {
	tr, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 1920, H: 1080}, nil)
	require.NoError(t, err)
	tr.ScaleX = 0
	_, err = tr.UnmapPoint(Point{X: 10, Y: 10})
	require.Error(t, err)
	var degErr *DegenerateTransformError
	assert.ErrorAs(t, err, &degErr)
	assert.Equal(t, "x", degErr.Axis)
}

func TestMapSizeNeverReturnsLessThanOne(t *testing.T) {
	tr, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 100, H: 100}, nil)
	require.NoError(t, err)
	s := tr.MapSize(Size{W: 1, H: 1})
	assert.GreaterOrEqual(t, s.W, 1)
	assert.GreaterOrEqual(t, s.H, 1)
}

func TestContentRectAlwaysWithinCurrentSize(t *testing.T) {
	cases := []Size{{1920, 1080}, {2560, 1080}, {1080, 1920}, {1440, 810}, {3440, 1440}}
	for _, cur := range cases {
		tr, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, cur, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, tr.ContentRect.X+tr.ContentRect.W, cur.W)
		assert.LessOrEqual(t, tr.ContentRect.Y+tr.ContentRect.H, cur.H)
		assert.GreaterOrEqual(t, tr.ContentRect.X, 0)
		assert.GreaterOrEqual(t, tr.ContentRect.Y, 0)
	}
}

func TestMapBBoxConsistentWithMapPoint(t *testing.T) {
	tr, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 1920, H: 1080}, nil)
	require.NoError(t, err)
	x0, y0, x1, y1 := tr.MapBBox(10, 20, 110, 170)
	p0 := tr.MapPoint(Point{X: 10, Y: 20})
	p1 := tr.MapPoint(Point{X: 110, Y: 170})
	assert.Equal(t, p0.X, x0)
	assert.Equal(t, p0.Y, y0)
	assert.Equal(t, p1.X, x1)
	assert.Equal(t, p1.Y, y1)
}

func TestAsConfigErrorWrapsGeometryError(t *testing.T) {
	_, err := NewCoordinateTransform(Size{W: -1, H: 1080}, Size{W: 1920, H: 1080}, nil)
	require.Error(t, err)
	wrapped := AsConfigError("geometry.CoordinateTransform", err)
	require.Error(t, wrapped)
	assert.Contains(t, wrapped.Error(), "geometry.CoordinateTransform")
}

func TestAsConfigErrorNilIsNil(t *testing.T) {
	assert.NoError(t, AsConfigError("x", nil))
}

func TestIdentityTransformIsNoOp(t *testing.T) {
	tr, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 1920, H: 1080}, nil)
	require.NoError(t, err)
	assert.Equal(t, Rect{X: 0, Y: 0, W: 1920, H: 1080}, tr.ContentRect)
	p := tr.MapPoint(Point{X: 500, Y: 500})
	assert.Equal(t, Point{X: 500, Y: 500}, p)
}

package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionCatalogShopSlotBounds(t *testing.T) {
	cat := NewRegionCatalog()
	for i := 0; i <= 4; i++ {
		_, err := cat.ShopSlot(i)
		assert.NoError(t, err)
	}
	_, err := cat.ShopSlot(-1)
	require.Error(t, err)
	var oor *RegionIndexOutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, "shop_slot", oor.Kind)

	_, err = cat.ShopSlot(5)
	require.Error(t, err)
}

func TestRegionCatalogBoardCellBounds(t *testing.T) {
	cat := NewRegionCatalog()
	_, err := cat.BoardCell(3, 6)
	assert.NoError(t, err)

	_, err = cat.BoardCell(4, 0)
	require.Error(t, err)
	var oor *RegionIndexOutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, "board_row", oor.Kind)

	_, err = cat.BoardCell(0, 7)
	require.Error(t, err)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, "board_col", oor.Kind)
}

func TestRegionCatalogBenchItemSynergyBounds(t *testing.T) {
	cat := NewRegionCatalog()
	_, err := cat.BenchSlot(8)
	assert.NoError(t, err)
	_, err = cat.BenchSlot(9)
	assert.Error(t, err)

	_, err = cat.ItemSlot(9)
	assert.NoError(t, err)
	_, err = cat.ItemSlot(10)
	assert.Error(t, err)

	_, err = cat.SynergyBadge(9)
	assert.NoError(t, err)
	_, err = cat.SynergyBadge(10)
	assert.Error(t, err)
}

func TestRegionCatalogRegionsDoNotOverlapAcrossSlots(t *testing.T) {
	cat := NewRegionCatalog()
	prevX := -1
	for i := 0; i <= 4; i++ {
		r, err := cat.ShopSlot(i)
		require.NoError(t, err)
		assert.Greater(t, r.X, prevX)
		prevX = r.X
	}
}

func TestUIRegionBBoxAndCenter(t *testing.T) {
	r := UIRegion{Name: "x", X: 10, Y: 20, W: 100, H: 50}
	x0, y0, x1, y1 := r.BBox()
	assert.Equal(t, [4]int{10, 20, 110, 70}, [4]int{x0, y0, x1, y1})
	assert.Equal(t, Point{X: 60, Y: 45}, r.Center())
}

func TestUIRegionScaleRoundTripsBaseBBox(t *testing.T) {
	cat := NewRegionCatalog()
	r, err := cat.ShopSlot(2)
	require.NoError(t, err)

	tr, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 1920, H: 1080}, nil)
	require.NoError(t, err)
	scaled := r.Scale(tr)
	assert.Equal(t, r.X, scaled.X)
	assert.Equal(t, r.Y, scaled.Y)
	assert.Equal(t, r.W, scaled.W)
	assert.Equal(t, r.H, scaled.H)

	trHalf, err := NewCoordinateTransform(Size{W: 1920, H: 1080}, Size{W: 960, H: 540}, nil)
	require.NoError(t, err)
	scaledHalf := r.Scale(trHalf)
	assert.InDelta(t, r.X/2, scaledHalf.X, 1)
	assert.InDelta(t, r.W/2, scaledHalf.W, 1)
}

func TestGoldAndLevelDisplaysAreFixed(t *testing.T) {
	cat := NewRegionCatalog()
	assert.Equal(t, "gold_display", cat.GoldDisplay().Name)
	assert.Equal(t, "level_display", cat.LevelDisplay().Name)
}

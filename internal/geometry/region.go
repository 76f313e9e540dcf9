package geometry

import "fmt"

// RegionIndexOutOfRangeError is raised by the indexed RegionCatalog
// accessors when the caller asks for a slot/cell outside its valid range.
type RegionIndexOutOfRangeError struct {
	Kind  string
	Index int
	Max   int
}

func (e *RegionIndexOutOfRangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0,%d]", e.Kind, e.Index, e.Max)
}

// UIRegion is a named rectangle in base coordinates. It is immutable;
// Scale produces a new UIRegion in the current window's coordinates.
type UIRegion struct {
	Name string
	X, Y, W, H int
}

// BBox returns (x, y, x+w, y+h).
func (r UIRegion) BBox() (int, int, int, int) {
	return r.X, r.Y, r.X + r.W, r.Y + r.H
}

// Center returns the region's center point in its own frame.
func (r UIRegion) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Scale maps r through t into current-window coordinates.
func (r UIRegion) Scale(t *CoordinateTransform) UIRegion {
	mapped := t.MapRect(Rect{X: r.X, Y: r.Y, W: r.W, H: r.H})
	return UIRegion{Name: r.Name, X: mapped.X, Y: mapped.Y, W: mapped.W, H: mapped.H}
}

// Base-resolution layout constants. These anchor the shop, board, bench,
// item, and synergy regions; changing the game's UI layout means editing
// only this block.
const (
	shopSlotX0     = 280
	shopSlotY      = 980
	shopSlotW      = 220
	shopSlotH      = 150
	shopSlotGap    = 30

	boardOriginX  = 360
	boardOriginY  = 260
	boardCellW    = 170
	boardCellH    = 150
	boardColGap   = 10
	boardRowGap   = 20

	benchX0   = 320
	benchY    = 830
	benchW    = 140
	benchH    = 120
	benchGap  = 18

	itemSlotX0  = 20
	itemSlotY   = 260
	itemSlotW   = 64
	itemSlotH   = 64
	itemSlotGap = 8

	synergyBadgeX  = 1700
	synergyBadgeY0 = 100
	synergyBadgeW  = 180
	synergyBadgeH  = 40
	synergyBadgeGap = 6
)

var (
	goldDisplay  = UIRegion{Name: "gold_display", X: 880, Y: 1010, W: 110, H: 44}
	levelDisplay = UIRegion{Name: "level_display", X: 40, Y: 980, W: 90, H: 60}
)

// RegionCatalog enumerates every named UI region at base resolution.
// Geometry is derived from fixed layout constants, not discovered at
// runtime; index-out-of-range calls fail with
// *RegionIndexOutOfRangeError rather than silently clamping.
type RegionCatalog struct{}

func NewRegionCatalog() *RegionCatalog { return &RegionCatalog{} }

// ShopSlot returns the i-th shop slot region, i in [0,4].
func (RegionCatalog) ShopSlot(i int) (UIRegion, error) {
	if i < 0 || i > 4 {
		return UIRegion{}, &RegionIndexOutOfRangeError{Kind: "shop_slot", Index: i, Max: 4}
	}
	x := shopSlotX0 + i*(shopSlotW+shopSlotGap)
	return UIRegion{Name: fmt.Sprintf("shop_slot_%d", i), X: x, Y: shopSlotY, W: shopSlotW, H: shopSlotH}, nil
}

// BoardCell returns the (row,col) board cell region, row in [0,3], col in [0,6].
func (RegionCatalog) BoardCell(row, col int) (UIRegion, error) {
	if row < 0 || row > 3 {
		return UIRegion{}, &RegionIndexOutOfRangeError{Kind: "board_row", Index: row, Max: 3}
	}
	if col < 0 || col > 6 {
		return UIRegion{}, &RegionIndexOutOfRangeError{Kind: "board_col", Index: col, Max: 6}
	}
	x := boardOriginX + col*(boardCellW+boardColGap)
	y := boardOriginY + row*(boardCellH+boardRowGap)
	return UIRegion{Name: fmt.Sprintf("board_cell_%d_%d", row, col), X: x, Y: y, W: boardCellW, H: boardCellH}, nil
}

// BenchSlot returns the i-th bench slot region, i in [0,8].
func (RegionCatalog) BenchSlot(i int) (UIRegion, error) {
	if i < 0 || i > 8 {
		return UIRegion{}, &RegionIndexOutOfRangeError{Kind: "bench_slot", Index: i, Max: 8}
	}
	x := benchX0 + i*(benchW+benchGap)
	return UIRegion{Name: fmt.Sprintf("bench_slot_%d", i), X: x, Y: benchY, W: benchW, H: benchH}, nil
}

// ItemSlot returns the i-th inventory item slot region, i in [0,9].
func (RegionCatalog) ItemSlot(i int) (UIRegion, error) {
	if i < 0 || i > 9 {
		return UIRegion{}, &RegionIndexOutOfRangeError{Kind: "item_slot", Index: i, Max: 9}
	}
	y := itemSlotY + i*(itemSlotH+itemSlotGap)
	return UIRegion{Name: fmt.Sprintf("item_slot_%d", i), X: itemSlotX0, Y: y, W: itemSlotW, H: itemSlotH}, nil
}

// SynergyBadge returns the i-th synergy badge region, i in [0,9].
func (RegionCatalog) SynergyBadge(i int) (UIRegion, error) {
	if i < 0 || i > 9 {
		return UIRegion{}, &RegionIndexOutOfRangeError{Kind: "synergy_badge", Index: i, Max: 9}
	}
	y := synergyBadgeY0 + i*(synergyBadgeH+synergyBadgeGap)
	return UIRegion{Name: fmt.Sprintf("synergy_badge_%d", i), X: synergyBadgeX, Y: y, W: synergyBadgeW, H: synergyBadgeH}, nil
}

// GoldDisplay returns the gold numeral region.
func (RegionCatalog) GoldDisplay() UIRegion { return goldDisplay }

// LevelDisplay returns the level numeral region.
func (RegionCatalog) LevelDisplay() UIRegion { return levelDisplay }

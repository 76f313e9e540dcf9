// Package domain holds the shared data model for boardpilot: the typed
// game state, action algebra, and recognized-entity types that every
// other package (template, vision, recognition, rules, validator, vlm,
// decision, executor, queue, session) reads or writes.
package domain

// EntityKind tags what a recognized or cataloged entity represents.
type EntityKind string

const (
	EntityHero    EntityKind = "hero"
	EntityItem    EntityKind = "item"
	EntitySynergy EntityKind = "synergy"
)

// Method records how a RecognizedEntity was produced.
type Method string

const (
	MethodTemplate Method = "template"
	MethodOCR      Method = "ocr"
	MethodHybrid   Method = "hybrid"
)

// BBox is an axis-aligned bounding box in some coordinate frame, expressed
// as (x, y, x+w, y+h).
type BBox struct {
	X0, Y0, X1, Y1 int
}

func NewBBox(x, y, w, h int) BBox {
	return BBox{X0: x, Y0: y, X1: x + w, Y1: y + h}
}

func (b BBox) Width() int  { return b.X1 - b.X0 }
func (b BBox) Height() int { return b.Y1 - b.Y0 }

// RecognizedEntity is the output of the recognition pipeline for a single
// UI region: which entity was seen there, how confidently, and by what
// fusion of template matching and OCR.
type RecognizedEntity struct {
	Kind       EntityKind
	ID         string
	Confidence float64
	Method     Method
	BBoxGlobal BBox
	SlotIndex  *int
}

// Package recognition implements the recognition engine: turning a
// screenshot into RecognizedEntity values per UI region by fusing
// template matching and OCR, and writing the results into a GameState.
package recognition

import (
	"image"
	"image/draw"
	"sync"

	"github.com/kestrelsoft/boardpilot/internal/domain"
	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
	"github.com/kestrelsoft/boardpilot/internal/geometry"
	"github.com/kestrelsoft/boardpilot/internal/template"
	"github.com/kestrelsoft/boardpilot/internal/vision"
)

const (
	DefaultTemplateThreshold = 0.75
	DefaultOCRThreshold      = 0.6
	DefaultFuzzyThreshold    = 0.8

	// fuzzyOCRConfidenceDecay discounts an id resolved through the fuzzy
	// alias lookup, so an inexact read never outranks an exact one.
	fuzzyOCRConfidenceDecay = 0.9
)

// Engine fuses template matching and OCR over the named UI regions to
// produce RecognizedEntity values, caching a CoordinateTransform that it
// refreshes whenever the incoming screenshot's size changes.
type Engine struct {
	Catalog  *geometry.RegionCatalog
	Matcher  *vision.Matcher
	OCR      *vision.Engine
	Registry *template.Registry

	TemplateThreshold float64
	OCRThreshold      float64
	FuzzyThreshold    float64

	mu        sync.Mutex
	lastSize  geometry.Size
	transform *geometry.CoordinateTransform
}

// NewEngine builds a recognition engine with default thresholds.
func NewEngine(catalog *geometry.RegionCatalog, matcher *vision.Matcher, ocr *vision.Engine, registry *template.Registry) *Engine {
	return &Engine{
		Catalog:           catalog,
		Matcher:           matcher,
		OCR:               ocr,
		Registry:          registry,
		TemplateThreshold: DefaultTemplateThreshold,
		OCRThreshold:      DefaultOCRThreshold,
		FuzzyThreshold:    DefaultFuzzyThreshold,
	}
}

// transformFor returns the cached CoordinateTransform for current,
// recomputing it only when the window size changed since the last call.
// Coordinate scaling here never mutates state visible to other
// components — the cache is private to this Engine.
func (e *Engine) transformFor(current geometry.Size) (*geometry.CoordinateTransform, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transform != nil && e.lastSize == current {
		return e.transform, nil
	}
	t, err := geometry.NewCoordinateTransform(geometry.BaseResolution, current, nil)
	if err != nil {
		return nil, bperr.NewRecognitionError("", "failed to build coordinate transform", err)
	}
	e.transform = t
	e.lastSize = current
	return t, nil
}

// recognizeRegion runs the per-region pipeline: scale the region into
// the current frame, crop, normalize back to base size, run
// template+OCR, and fuse.
func (e *Engine) recognizeRegion(shot image.Image, region geometry.UIRegion, kind domain.EntityKind, t *geometry.CoordinateTransform) (*domain.RecognizedEntity, error) {
	scaled := region.Scale(t)
	crop := cropRect(shot, scaled.X, scaled.Y, scaled.W, scaled.H)
	normalized := resize(crop, region.W, region.H)

	var (
		templateID   string
		templateConf float64
		templateOK   bool
	)
	for _, id := range e.Registry.ListIDs(kind) {
		path, ok := e.Registry.GetTemplatePath(kind, id)
		if !ok || path == "" {
			continue
		}
		m, matched, err := e.Matcher.Match(normalized, id, e.TemplateThreshold, nil)
		if err != nil {
			continue
		}
		if matched && m.Confidence > templateConf {
			templateID = id
			templateConf = m.Confidence
			templateOK = true
		}
	}

	var (
		ocrID   string
		ocrConf float64
		ocrOK   bool
	)
	if e.OCR != nil {
		results, err := e.OCR.Recognize(normalized, nil)
		if err == nil {
			for _, r := range results {
				if r.Confidence < e.OCRThreshold {
					continue
				}
				conf := r.Confidence
				_, id, found := e.Registry.LookupByOCR(r.Text)
				if !found {
					_, id, found = e.Registry.LookupByOCRFuzzy(r.Text, e.FuzzyThreshold)
					conf = r.Confidence * fuzzyOCRConfidenceDecay
				}
				if found && conf > ocrConf {
					ocrID = id
					ocrConf = conf
					ocrOK = true
				}
			}
		}
	}

	result := fuse(templateID, templateConf, templateOK, ocrID, ocrConf, ocrOK)
	if result == nil {
		return nil, nil
	}

	gx0, gy0, gx1, gy1 := t.MapBBox(region.X, region.Y, region.X+region.W, region.Y+region.H)
	entity := &domain.RecognizedEntity{
		Kind:       kind,
		ID:         result.id,
		Confidence: result.confidence,
		Method:     result.method,
		BBoxGlobal: domain.BBox{X0: gx0, Y0: gy0, X1: gx1, Y1: gy1},
	}
	return entity, nil
}

type fusedResult struct {
	id         string
	confidence float64
	method     domain.Method
}

// fuse merges the template and OCR passes: agreement promotes to hybrid
// with a confidence bonus; disagreement keeps the higher-confidence
// method; a single hit is used as-is.
func fuse(templateID string, templateConf float64, templateOK bool, ocrID string, ocrConf float64, ocrOK bool) *fusedResult {
	switch {
	case templateOK && ocrOK && templateID == ocrID:
		mean := (templateConf + ocrConf) / 2
		conf := mean + 0.1
		if conf > 1 {
			conf = 1
		}
		return &fusedResult{id: templateID, confidence: conf, method: domain.MethodHybrid}
	case templateOK && ocrOK:
		if templateConf >= ocrConf {
			return &fusedResult{id: templateID, confidence: templateConf, method: domain.MethodTemplate}
		}
		return &fusedResult{id: ocrID, confidence: ocrConf, method: domain.MethodOCR}
	case templateOK:
		return &fusedResult{id: templateID, confidence: templateConf, method: domain.MethodTemplate}
	case ocrOK:
		return &fusedResult{id: ocrID, confidence: ocrConf, method: domain.MethodOCR}
	default:
		return nil
	}
}

// RecognizeShop recognizes the 5 shop slots; an entry is nil where
// nothing was recognized.
func (e *Engine) RecognizeShop(shot image.Image) ([5]*domain.RecognizedEntity, error) {
	var out [5]*domain.RecognizedEntity
	size := imgSize(shot)
	t, err := e.transformFor(size)
	if err != nil {
		return out, err
	}
	for i := 0; i < 5; i++ {
		region, err := e.Catalog.ShopSlot(i)
		if err != nil {
			return out, err
		}
		entity, err := e.recognizeRegion(shot, region, domain.EntityHero, t)
		if err != nil {
			return out, bperr.NewRecognitionError(region.Name, "shop slot recognition failed", err)
		}
		if entity != nil {
			idx := i
			entity.SlotIndex = &idx
		}
		out[i] = entity
	}
	return out, nil
}

// RecognizeBench recognizes the 9 bench slots.
func (e *Engine) RecognizeBench(shot image.Image) ([9]*domain.RecognizedEntity, error) {
	var out [9]*domain.RecognizedEntity
	size := imgSize(shot)
	t, err := e.transformFor(size)
	if err != nil {
		return out, err
	}
	for i := 0; i < 9; i++ {
		region, err := e.Catalog.BenchSlot(i)
		if err != nil {
			return out, err
		}
		entity, err := e.recognizeRegion(shot, region, domain.EntityHero, t)
		if err != nil {
			return out, bperr.NewRecognitionError(region.Name, "bench slot recognition failed", err)
		}
		if entity != nil {
			idx := i
			entity.SlotIndex = &idx
		}
		out[i] = entity
	}
	return out, nil
}

// RecognizeBoard recognizes all 28 board cells independently. Cross-cell
// deduplication (the same hero recognized in two adjacent cells) is not
// performed: a duplicate is strong evidence of a cell misrecognition,
// and dropping one copy would hide that signal from threshold tuning.
func (e *Engine) RecognizeBoard(shot image.Image) ([]domain.RecognizedEntity, error) {
	var out []domain.RecognizedEntity
	size := imgSize(shot)
	t, err := e.transformFor(size)
	if err != nil {
		return nil, err
	}
	for row := 0; row < domain.BoardRows; row++ {
		for col := 0; col < domain.BoardCols; col++ {
			region, err := e.Catalog.BoardCell(row, col)
			if err != nil {
				return nil, err
			}
			entity, err := e.recognizeRegion(shot, region, domain.EntityHero, t)
			if err != nil {
				return nil, bperr.NewRecognitionError(region.Name, "board cell recognition failed", err)
			}
			if entity != nil {
				out = append(out, *entity)
			}
		}
	}
	return out, nil
}

// RecognizeSynergies recognizes the synergy badge tray.
func (e *Engine) RecognizeSynergies(shot image.Image) ([]domain.RecognizedEntity, error) {
	var out []domain.RecognizedEntity
	size := imgSize(shot)
	t, err := e.transformFor(size)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 10; i++ {
		region, err := e.Catalog.SynergyBadge(i)
		if err != nil {
			return nil, err
		}
		entity, err := e.recognizeRegion(shot, region, domain.EntitySynergy, t)
		if err != nil {
			return nil, bperr.NewRecognitionError(region.Name, "synergy badge recognition failed", err)
		}
		if entity != nil {
			out = append(out, *entity)
		}
	}
	return out, nil
}

// RecognizeItems recognizes the inventory item tray.
func (e *Engine) RecognizeItems(shot image.Image) ([]domain.RecognizedEntity, error) {
	var out []domain.RecognizedEntity
	size := imgSize(shot)
	t, err := e.transformFor(size)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 10; i++ {
		region, err := e.Catalog.ItemSlot(i)
		if err != nil {
			return nil, err
		}
		entity, err := e.recognizeRegion(shot, region, domain.EntityItem, t)
		if err != nil {
			return nil, bperr.NewRecognitionError(region.Name, "item slot recognition failed", err)
		}
		if entity != nil {
			out = append(out, *entity)
		}
	}
	return out, nil
}

// PlayerInfo is the gold/level pair extracted from OCR on the upscaled
// HUD crops; either field may be absent when OCR found no digit run.
type PlayerInfo struct {
	Gold  *int
	Level *int
}

// RecognizePlayerInfo OCRs the gold and level numerals.
func (e *Engine) RecognizePlayerInfo(shot image.Image) (PlayerInfo, error) {
	var info PlayerInfo
	if e.OCR == nil {
		return info, nil
	}
	size := imgSize(shot)
	t, err := e.transformFor(size)
	if err != nil {
		return info, err
	}

	goldRegion := e.Catalog.GoldDisplay().Scale(t)
	goldCrop := upscale(cropRect(shot, goldRegion.X, goldRegion.Y, goldRegion.W, goldRegion.H), 2)
	if n, ok, err := e.OCR.RecognizeNumber(goldCrop, nil); err == nil && ok {
		info.Gold = &n
	}

	levelRegion := e.Catalog.LevelDisplay().Scale(t)
	levelCrop := upscale(cropRect(shot, levelRegion.X, levelRegion.Y, levelRegion.W, levelRegion.H), 2)
	if n, ok, err := e.OCR.RecognizeNumber(levelCrop, nil); err == nil && ok {
		info.Level = &n
	}

	return info, nil
}

func imgSize(img image.Image) geometry.Size {
	b := img.Bounds()
	return geometry.Size{W: b.Dx(), H: b.Dy()}
}

func cropRect(img image.Image, x, y, w, h int) image.Image {
	b := img.Bounds()
	rect := image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+w, b.Min.Y+y+h).Intersect(b)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

func resize(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 {
		return out
	}
	for y := 0; y < h; y++ {
		sy := y * sh / h
		for x := 0; x < w; x++ {
			sx := x * sw / w
			out.Set(x, y, img.At(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return out
}

func upscale(img image.Image, factor int) image.Image {
	b := img.Bounds()
	return resize(img, b.Dx()*factor, b.Dy()*factor)
}

package vision

import (
	"image"
	"regexp"
	"strconv"
)

// OCRResult is one recognized text span: its text, confidence, and local
// bounding box (in the frame of the image/crop it was recognized from).
type OCRResult struct {
	Text       string
	Confidence float64
	BBox       [4]int // x0,y0,x1,y1, local frame
}

// Backend is the pluggable OCR contract. Concrete backends (platform
// vision frameworks, cloud OCR APIs, a local binary wrapper) live
// outside this module; Backend is the seam they plug into.
type Backend interface {
	Name() string
	// Available reports whether the backend can serve calls right now
	// (binary found, API key present, framework linked). Engine.Active
	// checks it afresh at the start of every Recognize call.
	Available() bool
	Recognize(img image.Image) ([]OCRResult, error)
}

var digitRun = regexp.MustCompile(`\d+`)

// Engine is a unified interface over multiple OCR backends. Construction
// never fails even with zero backends registered — recognition degrades
// to returning no results rather than blocking session startup.
type Engine struct {
	// backends is a fixed priority list; the first one whose
	// availability check passes is used for every call.
	backends []Backend
}

// NewEngine builds an Engine with backends in priority order (index 0
// tried first).
func NewEngine(backends ...Backend) *Engine {
	return &Engine{backends: backends}
}

// Active returns the first available backend in priority order, or nil
// when none are registered or none are available.
func (e *Engine) Active() Backend {
	for _, b := range e.backends {
		if b.Available() {
			return b
		}
	}
	return nil
}

// Region is a crop rectangle in the image's local frame, used by
// Recognize to crop-then-recognize-then-translate-back.
type Region struct {
	X0, Y0, X1, Y1 int
}

// Recognize runs OCR over img as a whole, or — when regions is non-empty
// — crops each region, recognizes it independently, and translates its
// local bboxes back into the image's frame.
func (e *Engine) Recognize(img image.Image, regions []Region) ([]OCRResult, error) {
	backend := e.Active()
	if backend == nil {
		return nil, nil
	}

	if len(regions) == 0 {
		return backend.Recognize(img)
	}

	var all []OCRResult
	for _, r := range regions {
		cropped := cropImage(img, r)
		results, err := backend.Recognize(cropped)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			res.BBox[0] += r.X0
			res.BBox[1] += r.Y0
			res.BBox[2] += r.X0
			res.BBox[3] += r.Y0
			all = append(all, res)
		}
	}
	return all, nil
}

// RecognizeNumber runs Recognize (optionally scoped to region) and
// returns the first digit run found in the combined text, or ok=false.
func (e *Engine) RecognizeNumber(img image.Image, region *Region) (int, bool, error) {
	var regions []Region
	if region != nil {
		regions = []Region{*region}
	}
	results, err := e.Recognize(img, regions)
	if err != nil {
		return 0, false, err
	}
	for _, r := range results {
		if m := digitRun.FindString(r.Text); m != "" {
			n, err := strconv.Atoi(m)
			if err == nil {
				return n, true, nil
			}
		}
	}
	return 0, false, nil
}

func cropImage(img image.Image, r Region) image.Image {
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	b := img.Bounds()
	rect := image.Rect(b.Min.X+r.X0, b.Min.Y+r.Y0, b.Min.X+r.X1, b.Min.Y+r.Y1)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	// Fallback: copy pixel-by-pixel into an RGBA buffer.
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			out.Set(x, y, img.At(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return out
}

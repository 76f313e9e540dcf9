// Package vision implements template matching and the pluggable OCR
// abstraction. Matching is normalized cross-correlation over grayscale
// pixel buffers, implemented directly over image.Image.
package vision

import (
	"image"
	"math"
	"sync"
)

// MatchResult is the best match for a template key found in an image.
type MatchResult struct {
	X, Y, W, H int
	Confidence float64
	Key        string
}

// grayBuffer is a flat grayscale pixel buffer used for correlation math.
type grayBuffer struct {
	W, H int
	Pix  []float64
}

func toGray(img image.Image) *grayBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := &grayBuffer{W: w, H: h, Pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bch, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Rec. 601 luma, normalized to [0,1].
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bch)) / 65535.0
			buf.Pix[y*w+x] = lum
		}
	}
	return buf
}

func (g *grayBuffer) at(x, y int) float64 {
	return g.Pix[y*g.W+x]
}

// scaled returns a nearest-neighbor resized copy of g at (w,h).
func (g *grayBuffer) scaled(w, h int) *grayBuffer {
	if w == g.W && h == g.H {
		return g
	}
	out := &grayBuffer{W: w, H: h, Pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		sy := y * g.H / h
		for x := 0; x < w; x++ {
			sx := x * g.W / w
			out.Pix[y*w+x] = g.at(sx, sy)
		}
	}
	return out
}

// Matcher loads raster templates lazily by key (file stem) and performs
// normalized cross-correlation matching over a supplied image. The
// template cache is write-once per key; concurrent insertion of the
// same key is idempotent.
type Matcher struct {
	mu        sync.RWMutex
	loader    func(key string) (image.Image, error)
	templates map[string]*grayBuffer
}

// NewMatcher builds a Matcher that lazily loads templates via loader,
// keyed by file stem (e.g. "ahri" for "ahri.png").
func NewMatcher(loader func(key string) (image.Image, error)) *Matcher {
	return &Matcher{loader: loader, templates: make(map[string]*grayBuffer)}
}

func (m *Matcher) template(key string) (*grayBuffer, error) {
	m.mu.RLock()
	t, ok := m.templates[key]
	m.mu.RUnlock()
	if ok {
		return t, nil
	}

	img, err := m.loader(key)
	if err != nil {
		return nil, err
	}
	gray := toGray(img)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.templates[key]; ok {
		return existing, nil
	}
	m.templates[key] = gray
	return gray, nil
}

// Match runs normalized cross-correlation for template key over image,
// returning the best match at or above threshold, or ok=false if none
// clears the bar. When scales is non-empty, the template is resized to
// each scale in turn and the global best match across scales is kept.
func (m *Matcher) Match(img image.Image, key string, threshold float64, scales []float64) (MatchResult, bool, error) {
	tmpl, err := m.template(key)
	if err != nil {
		return MatchResult{}, false, err
	}
	target := toGray(img)

	candidates := scales
	if len(candidates) == 0 {
		candidates = []float64{1.0}
	}

	best := MatchResult{Key: key}
	found := false
	for _, scale := range candidates {
		w := int(float64(tmpl.W) * scale)
		h := int(float64(tmpl.H) * scale)
		if w < 1 || h < 1 || w > target.W || h > target.H {
			continue
		}
		scaledTmpl := tmpl.scaled(w, h)
		x, y, conf := bestNCC(target, scaledTmpl)
		if conf > best.Confidence {
			best = MatchResult{X: x, Y: y, W: w, H: h, Confidence: conf, Key: key}
			found = true
		}
	}

	if !found || best.Confidence < threshold {
		return MatchResult{}, false, nil
	}
	return best, true, nil
}

// bestNCC slides tmpl over target and returns the top-left corner and
// peak normalized cross-correlation response.
func bestNCC(target, tmpl *grayBuffer) (int, int, float64) {
	tmplMean, tmplNorm := meanAndNorm(tmpl.Pix)
	if tmplNorm == 0 {
		return 0, 0, 0
	}

	bestX, bestY := 0, 0
	bestScore := -1.0

	for y := 0; y+tmpl.H <= target.H; y++ {
		for x := 0; x+tmpl.W <= target.W; x++ {
			patch := make([]float64, 0, tmpl.W*tmpl.H)
			for ty := 0; ty < tmpl.H; ty++ {
				for tx := 0; tx < tmpl.W; tx++ {
					patch = append(patch, target.at(x+tx, y+ty))
				}
			}
			patchMean, patchNorm := meanAndNorm(patch)
			if patchNorm == 0 {
				continue
			}
			var dot float64
			for i, v := range patch {
				dot += (v - patchMean) * (tmpl.Pix[i] - tmplMean)
			}
			score := dot / (patchNorm * tmplNorm)
			if score > bestScore {
				bestScore = score
				bestX, bestY = x, y
			}
		}
	}
	// NCC in [-1,1]; clamp into [0,1] confidence space.
	conf := (bestScore + 1) / 2
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return bestX, bestY, conf
}

func meanAndNorm(vals []float64) (mean, norm float64) {
	n := float64(len(vals))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / n
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq)
}

// FindAllOccurrences returns every match of key at or above threshold,
// suppressed by non-maximum suppression with Chebyshev distance
// minDistance: two candidate peaks closer than minDistance in both axes
// (Chebyshev distance below minDistance) are merged, keeping the
// higher-confidence one.
func (m *Matcher) FindAllOccurrences(img image.Image, key string, threshold float64, minDistance int) ([]MatchResult, error) {
	tmpl, err := m.template(key)
	if err != nil {
		return nil, err
	}
	target := toGray(img)

	var raw []MatchResult
	for y := 0; y+tmpl.H <= target.H; y++ {
		for x := 0; x+tmpl.W <= target.W; x++ {
			score := patchScore(target, tmpl, x, y)
			if score >= threshold {
				raw = append(raw, MatchResult{X: x, Y: y, W: tmpl.W, H: tmpl.H, Confidence: score, Key: key})
			}
		}
	}
	return nonMaxSuppress(raw, minDistance), nil
}

func patchScore(target, tmpl *grayBuffer, x, y int) float64 {
	tmplMean, tmplNorm := meanAndNorm(tmpl.Pix)
	if tmplNorm == 0 {
		return 0
	}
	patch := make([]float64, 0, tmpl.W*tmpl.H)
	for ty := 0; ty < tmpl.H; ty++ {
		for tx := 0; tx < tmpl.W; tx++ {
			patch = append(patch, target.at(x+tx, y+ty))
		}
	}
	patchMean, patchNorm := meanAndNorm(patch)
	if patchNorm == 0 {
		return 0
	}
	var dot float64
	for i, v := range patch {
		dot += (v - patchMean) * (tmpl.Pix[i] - tmplMean)
	}
	score := dot / (patchNorm * tmplNorm)
	conf := (score + 1) / 2
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

func nonMaxSuppress(matches []MatchResult, minDistance int) []MatchResult {
	// Highest confidence first.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Confidence > matches[j-1].Confidence; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}

	var kept []MatchResult
	for _, cand := range matches {
		suppressed := false
		for _, k := range kept {
			if chebyshev(cand.X, cand.Y, k.X, k.Y) < minDistance {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

func chebyshev(x1, y1, x2, y2 int) int {
	dx := x1 - x2
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y2
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

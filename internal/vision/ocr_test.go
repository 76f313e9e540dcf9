package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name      string
	available bool
	results   []OCRResult
	calls     int
}

func (f *fakeBackend) Name() string    { return f.name }
func (f *fakeBackend) Available() bool { return f.available }

func (f *fakeBackend) Recognize(img image.Image) ([]OCRResult, error) {
	f.calls++
	return f.results, nil
}

func blank(w, h int) image.Image { return image.NewRGBA(image.Rect(0, 0, w, h)) }

func TestRecognizeWithoutBackendsReturnsNothing(t *testing.T) {
	engine := NewEngine()
	results, err := engine.Recognize(blank(10, 10), nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, ok, err := engine.RecognizeNumber(blank(10, 10), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActiveSkipsUnavailableBackends(t *testing.T) {
	first := &fakeBackend{name: "first", available: false}
	second := &fakeBackend{name: "second", available: true}
	engine := NewEngine(first, second)

	active := engine.Active()
	require.NotNil(t, active)
	assert.Equal(t, "second", active.Name())
}

func TestActiveNilWhenNoBackendAvailable(t *testing.T) {
	engine := NewEngine(&fakeBackend{name: "down", available: false})
	assert.Nil(t, engine.Active())
}

func TestRecognizePrefersFirstAvailableBackend(t *testing.T) {
	first := &fakeBackend{name: "first", available: true, results: []OCRResult{{Text: "one", Confidence: 0.9}}}
	second := &fakeBackend{name: "second", available: true, results: []OCRResult{{Text: "two", Confidence: 0.9}}}
	engine := NewEngine(first, second)

	results, err := engine.Recognize(blank(10, 10), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "one", results[0].Text)
	assert.Equal(t, 0, second.calls)
}

func TestRecognizeWithRegionsTranslatesBBoxes(t *testing.T) {
	backend := &fakeBackend{
		name:      "fixed",
		available: true,
		results:   []OCRResult{{Text: "50", Confidence: 0.9, BBox: [4]int{2, 3, 10, 8}}},
	}
	engine := NewEngine(backend)

	results, err := engine.Recognize(blank(100, 100), []Region{{X0: 40, Y0: 20, X1: 80, Y1: 50}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, [4]int{42, 23, 50, 28}, results[0].BBox)
}

func TestRecognizeMultipleRegionsConcatenatesResults(t *testing.T) {
	backend := &fakeBackend{
		name:      "fixed",
		available: true,
		results:   []OCRResult{{Text: "x", Confidence: 0.9}},
	}
	engine := NewEngine(backend)

	results, err := engine.Recognize(blank(100, 100), []Region{
		{X0: 0, Y0: 0, X1: 10, Y1: 10},
		{X0: 50, Y0: 50, X1: 60, Y1: 60},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, backend.calls)
}

func TestRecognizeNumberPicksFirstDigitRun(t *testing.T) {
	backend := &fakeBackend{
		name:      "fixed",
		available: true,
		results: []OCRResult{
			{Text: "Gold: 42 / 50", Confidence: 0.9},
		},
	}
	engine := NewEngine(backend)

	n, ok, err := engine.RecognizeNumber(blank(10, 10), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, n)
}

func TestRecognizeNumberNoDigitsReturnsNotOK(t *testing.T) {
	backend := &fakeBackend{
		name:      "fixed",
		available: true,
		results:   []OCRResult{{Text: "no numerals here", Confidence: 0.9}},
	}
	engine := NewEngine(backend)

	_, ok, err := engine.RecognizeNumber(blank(10, 10), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

package template

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

func TestRegisterAndGetTemplatePath(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "ahri", "hero/mage/ahri.png", []string{"Ahri", " AHRI "})

	path, ok := r.GetTemplatePath(domain.EntityHero, "ahri")
	require.True(t, ok)
	assert.Equal(t, "hero/mage/ahri.png", path)

	_, ok = r.GetTemplatePath(domain.EntityHero, "garen")
	assert.False(t, ok)
}

func TestListIDsPreservesInsertionOrder(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "zed", "z.png", nil)
	r.Register(domain.EntityHero, "ahri", "a.png", nil)
	r.Register(domain.EntityHero, "garen", "g.png", nil)
	assert.Equal(t, []string{"zed", "ahri", "garen"}, r.ListIDs(domain.EntityHero))
}

func TestReregisterDoesNotDuplicateInOrderList(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "ahri", "a.png", nil)
	r.Register(domain.EntityHero, "ahri", "a2.png", []string{"Ahri2"})
	assert.Equal(t, []string{"ahri"}, r.ListIDs(domain.EntityHero))
	path, _ := r.GetTemplatePath(domain.EntityHero, "ahri")
	assert.Equal(t, "a2.png", path)
}

func TestLookupByOCRNormalizesBeforeIndexing(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "ahri", "a.png", []string{"  Ahri  "})

	kind, id, ok := r.LookupByOCR("ahri")
	require.True(t, ok)
	assert.Equal(t, domain.EntityHero, kind)
	assert.Equal(t, "ahri", id)

	// Same normalization applied on lookup as on registration.
	kind, id, ok = r.LookupByOCR("  AHRI ")
	require.True(t, ok)
	assert.Equal(t, domain.EntityHero, kind)
	assert.Equal(t, "ahri", id)

	_, _, ok = r.LookupByOCR("unknown")
	assert.False(t, ok)
}

func TestLookupByOCRIsIdempotent(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "ahri", "a.png", []string{"Ahri"})
	k1, i1, ok1 := r.LookupByOCR("ahri")
	k2, i2, ok2 := r.LookupByOCR("ahri")
	assert.Equal(t, k1, k2)
	assert.Equal(t, i1, i2)
	assert.Equal(t, ok1, ok2)
}

func TestOCRAliasCollisionIsWarnedNotFatal(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "ahri", "a.png", []string{"fox"})
	r.Register(domain.EntityHero, "garen", "g.png", []string{"fox"})

	// last-writer-wins
	kind, id, ok := r.LookupByOCR("fox")
	require.True(t, ok)
	assert.Equal(t, domain.EntityHero, kind)
	assert.Equal(t, "garen", id)
	assert.NotEmpty(t, r.Warnings())
}

func TestLookupByOCRFuzzyThresholdAndBestMatch(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "ahri", "a.png", []string{"ahri"})
	r.Register(domain.EntityHero, "garen", "g.png", []string{"garen"})

	kind, id, ok := r.LookupByOCRFuzzy("ahr", 0.5)
	require.True(t, ok)
	assert.Equal(t, domain.EntityHero, kind)
	assert.Equal(t, "ahri", id)

	_, _, ok = r.LookupByOCRFuzzy("xyz", 0.8)
	assert.False(t, ok)
}

func TestValidatePartitionsExistingAndMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "hero"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero", "ahri.png"), []byte("x"), 0o644))

	r := NewRegistry(dir)
	r.Register(domain.EntityHero, "ahri", "hero/ahri.png", nil)
	r.Register(domain.EntityHero, "garen", "hero/garen.png", nil)

	existing, missing := r.Validate()
	assert.Len(t, existing, 1)
	assert.Len(t, missing, 1)
}

func TestManifestSaveLoadRoundTrip(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "ahri", "hero/ahri.png", []string{"Ahri", "Fox"})
	r.Register(domain.EntityItem, "bf_sword", "item/bf_sword.png", nil)
	r.Register(domain.EntitySynergy, "mage", "synergy/mage.png", []string{"Mage"})

	data, err := r.Save("v1")
	require.NoError(t, err)

	loaded, err := LoadManifest("/templates", data)
	require.NoError(t, err)

	for _, kind := range []domain.EntityKind{domain.EntityHero, domain.EntityItem, domain.EntitySynergy} {
		for _, id := range r.ListIDs(kind) {
			wantPath, _ := r.GetTemplatePath(kind, id)
			gotPath, ok := loaded.GetTemplatePath(kind, id)
			require.True(t, ok)
			assert.Equal(t, wantPath, gotPath)
		}
	}
	// Normalized aliases round-trip too.
	kind, id, ok := loaded.LookupByOCR("fox")
	require.True(t, ok)
	assert.Equal(t, domain.EntityHero, kind)
	assert.Equal(t, "ahri", id)
}

func TestLoadManifestDefaultsMissingOCRVariantsToID(t *testing.T) {
	data := []byte(`{"version":"v1","heroes":{"ahri":{"template":"a.png"}},"items":{},"synergies":{}}`)
	r, err := LoadManifest("/templates", data)
	require.NoError(t, err)
	kind, id, ok := r.LookupByOCR("ahri")
	require.True(t, ok)
	assert.Equal(t, domain.EntityHero, kind)
	assert.Equal(t, "ahri", id)
}

func TestLoadManifestRejectsInvalidJSON(t *testing.T) {
	_, err := LoadManifest("/templates", []byte("not json"))
	require.Error(t, err)
}

func TestLoadFromGameDataUsesConventionPaths(t *testing.T) {
	r := LoadFromGameData("/templates", map[string][]string{"set1": {"ahri", "garen"}}, []string{"bf_sword"}, []string{"mage"})
	path, ok := r.GetTemplatePath(domain.EntityHero, "ahri")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("hero", "set1", "ahri.png"), path)

	path, ok = r.GetTemplatePath(domain.EntityItem, "bf_sword")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("item", "base", "bf_sword.png"), path)
}

func TestManifestJSONShapeMatchesSpec(t *testing.T) {
	r := NewRegistry("/templates")
	r.Register(domain.EntityHero, "ahri", "hero/ahri.png", []string{"Ahri"})
	data, err := r.Save("v1")
	require.NoError(t, err)

	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &generic))
	for _, key := range []string{"version", "heroes", "items", "synergies"} {
		_, ok := generic[key]
		assert.True(t, ok, "manifest missing key %q", key)
	}
}

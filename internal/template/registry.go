// Package template implements the template registry: the mapping
// from (entity kind, id) to a template image path and its recognized OCR
// aliases, with JSON manifest load/save and on-disk validation.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kestrelsoft/boardpilot/internal/domain"
	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
)

// Entry is one registered (kind, id) template mapping. For any (kind,
// id) pair there is at most one Entry in a Registry.
type Entry struct {
	Kind         domain.EntityKind
	ID           string
	TemplatePath string
	OCRAliases   map[string]struct{}
}

func key(kind domain.EntityKind, id string) string { return string(kind) + "/" + id }

// normalize trims and lowercases alias text; applied symmetrically at
// registration and lookup so the index stays consistent.
func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Registry maintains the primary (kind,id)->Entry map, an OCR alias index
// (normalized alias -> (kind,id), last-writer-wins), and per-kind id
// lists preserving insertion order.
type Registry struct {
	Root    string // filesystem root template paths are relative to
	primary map[string]*Entry
	byAlias map[string]string // normalized alias -> primary key
	order   map[domain.EntityKind][]string
	warnings []string
}

func NewRegistry(root string) *Registry {
	return &Registry{
		Root:    root,
		primary: make(map[string]*Entry),
		byAlias: make(map[string]string),
		order:   make(map[domain.EntityKind][]string),
	}
}

// Register adds or overwrites entry. Collisions on OCR aliases are
// tolerated (last-writer-wins) but surfaced via Warnings().
func (r *Registry) Register(kind domain.EntityKind, id, templatePath string, ocrAliases []string) {
	k := key(kind, id)
	if _, exists := r.primary[k]; !exists {
		r.order[kind] = append(r.order[kind], id)
	}

	aliases := make(map[string]struct{}, len(ocrAliases)+1)
	aliases[normalize(id)] = struct{}{}
	for _, a := range ocrAliases {
		aliases[normalize(a)] = struct{}{}
	}

	r.primary[k] = &Entry{Kind: kind, ID: id, TemplatePath: templatePath, OCRAliases: aliases}

	for a := range aliases {
		if existingKey, ok := r.byAlias[a]; ok && existingKey != k {
			r.warnings = append(r.warnings, fmt.Sprintf("ocr alias %q collides between %s and %s", a, existingKey, k))
		}
		r.byAlias[a] = k
	}
}

// GetTemplatePath returns the registered template path for (kind,id).
func (r *Registry) GetTemplatePath(kind domain.EntityKind, id string) (string, bool) {
	e, ok := r.primary[key(kind, id)]
	if !ok {
		return "", false
	}
	return e.TemplatePath, true
}

// ListIDs returns the ids registered for kind, in insertion order.
func (r *Registry) ListIDs(kind domain.EntityKind) []string {
	return append([]string(nil), r.order[kind]...)
}

// LookupByOCR resolves text to a (kind,id) pair via exact match after
// normalization.
func (r *Registry) LookupByOCR(text string) (domain.EntityKind, string, bool) {
	k, ok := r.byAlias[normalize(text)]
	if !ok {
		return "", "", false
	}
	e := r.primary[k]
	return e.Kind, e.ID, true
}

// LookupByOCRFuzzy resolves text to the best-matching (kind,id) pair
// whose similarity to any of its aliases is >= threshold. Similarity is
// the fraction of characters shared between the two normalized strings
// divided by the longer string's length; ties go to the entry scanned
// first: heroes, then items, then synergies, each kind in registration
// order.
func (r *Registry) LookupByOCRFuzzy(text string, threshold float64) (domain.EntityKind, string, bool) {
	if threshold <= 0 {
		threshold = 0.8
	}
	norm := normalize(text)
	if norm == "" {
		return "", "", false
	}

	bestScore := 0.0
	var bestKey string
	found := false

	// Iterate aliases in a stable order derived from kind/id insertion
	// order so ties break on first-seen, not map iteration order.
	for _, kind := range []domain.EntityKind{domain.EntityHero, domain.EntityItem, domain.EntitySynergy} {
		for _, id := range r.order[kind] {
			e := r.primary[key(kind, id)]
			for alias := range e.OCRAliases {
				score := charSimilarity(norm, alias)
				if score >= threshold && score > bestScore {
					bestScore = score
					bestKey = key(kind, id)
					found = true
				}
			}
		}
	}
	if !found {
		return "", "", false
	}
	e := r.primary[bestKey]
	return e.Kind, e.ID, true
}

// charSimilarity is the fraction of characters shared between a and b
// (by rune multiset intersection) divided by the longer string's length.
func charSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range a {
		counts[r]++
	}
	shared := 0
	for _, r := range b {
		if counts[r] > 0 {
			counts[r]--
			shared++
		}
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	return float64(shared) / float64(maxLen)
}

// Warnings returns alias collisions observed since construction.
func (r *Registry) Warnings() []string { return append([]string(nil), r.warnings...) }

// Validate partitions every registered template path into those present
// and those missing on disk (relative to Root).
func (r *Registry) Validate() (existing, missing []string) {
	for k, e := range r.primary {
		full := filepath.Join(r.Root, e.TemplatePath)
		if _, err := os.Stat(full); err == nil {
			existing = append(existing, k)
		} else {
			missing = append(missing, k)
		}
	}
	sort.Strings(existing)
	sort.Strings(missing)
	return existing, missing
}

// manifestFile mirrors the persisted JSON shape:
//   { "version": "...", "heroes": {...}, "items": {...}, "synergies": {...} }
type manifestFile struct {
	Version   string                      `json:"version"`
	Heroes    map[string]manifestEntry    `json:"heroes"`
	Items     map[string]manifestEntry    `json:"items"`
	Synergies map[string]manifestEntry    `json:"synergies"`
}

type manifestEntry struct {
	Template    string   `json:"template"`
	OCRVariants []string `json:"ocr_variants"`
}

// LoadManifest populates a Registry from JSON manifest bytes. Missing
// ocr_variants defaults to [id].
func LoadManifest(root string, data []byte) (*Registry, error) {
	var m manifestFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, bperr.NewConfigError("template.Registry", fmt.Sprintf("invalid manifest JSON: %v", err))
	}

	reg := NewRegistry(root)
	load := func(kind domain.EntityKind, entries map[string]manifestEntry) {
		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e := entries[id]
			aliases := e.OCRVariants
			if len(aliases) == 0 {
				aliases = []string{id}
			}
			reg.Register(kind, id, e.Template, aliases)
		}
	}
	load(domain.EntityHero, m.Heroes)
	load(domain.EntityItem, m.Items)
	load(domain.EntitySynergy, m.Synergies)
	return reg, nil
}

// Save serializes the registry back into the manifest JSON shape. A
// save-then-LoadManifest round trip reproduces a semantically identical
// registry (same (kind,id,path,normalized_aliases) tuples).
func (r *Registry) Save(version string) ([]byte, error) {
	m := manifestFile{
		Version:   version,
		Heroes:    make(map[string]manifestEntry),
		Items:     make(map[string]manifestEntry),
		Synergies: make(map[string]manifestEntry),
	}
	for k, e := range r.primary {
		aliases := make([]string, 0, len(e.OCRAliases))
		for a := range e.OCRAliases {
			aliases = append(aliases, a)
		}
		sort.Strings(aliases)
		entry := manifestEntry{Template: e.TemplatePath, OCRVariants: aliases}
		switch e.Kind {
		case domain.EntityHero:
			m.Heroes[e.ID] = entry
		case domain.EntityItem:
			m.Items[e.ID] = entry
		case domain.EntitySynergy:
			m.Synergies[e.ID] = entry
		}
		_ = k
	}
	return json.MarshalIndent(m, "", "  ")
}

// ConventionPath returns the by-convention path {kind}/{subcategory}/{id}.png
// used when generating a registry from game-data JSON rather than a manifest.
func ConventionPath(kind domain.EntityKind, subcategory, id string) string {
	return filepath.Join(string(kind), subcategory, id+".png")
}

// LoadFromGameData builds a Registry by convention from game-data id
// lists (heroes.json/items.json/synergies.json shape, pre-parsed by the
// caller into plain id slices grouped by subcategory).
func LoadFromGameData(root string, heroesBySet map[string][]string, items, synergies []string) *Registry {
	reg := NewRegistry(root)
	setNames := make([]string, 0, len(heroesBySet))
	for set := range heroesBySet {
		setNames = append(setNames, set)
	}
	sort.Strings(setNames)
	for _, set := range setNames {
		for _, id := range heroesBySet[set] {
			reg.Register(domain.EntityHero, id, ConventionPath(domain.EntityHero, set, id), []string{id})
		}
	}
	for _, id := range items {
		reg.Register(domain.EntityItem, id, ConventionPath(domain.EntityItem, "base", id), []string{id})
	}
	for _, id := range synergies {
		reg.Register(domain.EntitySynergy, id, ConventionPath(domain.EntitySynergy, "base", id), []string{id})
	}
	return reg
}

// Package decision implements the hybrid decision engine: evaluate the
// deterministic rule set first, fall back to a VLM when no rule fires,
// and otherwise degrade to a Wait action.
package decision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kestrelsoft/boardpilot/internal/domain"
	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
	"github.com/kestrelsoft/boardpilot/internal/geometry"
	"github.com/kestrelsoft/boardpilot/internal/rules"
	"github.com/kestrelsoft/boardpilot/internal/validator"
	"github.com/kestrelsoft/boardpilot/internal/vlm"
)

// PriorityProfile selects a prompt variant for the VLM path. Profiles
// never change rule evaluation — QuickActionEngine's rule table is
// profile-agnostic.
type PriorityProfile string

const (
	ProfileSaveGold  PriorityProfile = "save_gold"
	ProfileLevelUp   PriorityProfile = "level_up"
	ProfileChaseThree PriorityProfile = "chase_three"
	ProfileProtectHP PriorityProfile = "protect_hp"
	ProfileBalanced  PriorityProfile = "balanced"
)

// VLMBackend is the subset of vlm.Client's surface the decision engine
// needs, narrowed to an interface so tests can substitute a fake backend
// without a real OpenAI-compatible endpoint.
type VLMBackend interface {
	ChatWithImage(ctx context.Context, prompt string, img image.Image, systemPrompt string) (string, error)
}

// Stats is the engine's rolling session statistics.
type Stats struct {
	Total          int
	RuleCount      int
	LLMCount       int
	ErrorCount     int
	FallbackCount  int
	TotalLatencyMS int64
}

// AverageLatencyMS returns the mean decision latency across every Decide
// call so far, or 0 before the first call.
func (s Stats) AverageLatencyMS() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.TotalLatencyMS) / float64(s.Total)
}

// Engine is the hybrid rule-then-VLM decision maker.
type Engine struct {
	Rules   *rules.QuickActionEngine
	VLM     VLMBackend
	Catalog *geometry.RegionCatalog

	mu    sync.Mutex
	stats Stats
}

// New builds an Engine. vlmBackend may be nil, in which case the engine
// always degrades to a fallback Wait action when rules don't fire.
func New(ruleEngine *rules.QuickActionEngine, vlmBackend VLMBackend, catalog *geometry.RegionCatalog) *Engine {
	return &Engine{Rules: ruleEngine, VLM: vlmBackend, Catalog: catalog}
}

// Decide tries rules unless forceLLM is set, then calls the VLM if one
// is configured, and otherwise falls back to a one-second Wait with
// zero confidence. The chosen action is always validated against state
// before being returned.
func (e *Engine) Decide(ctx context.Context, screenshot image.Image, state *domain.GameState, profile PriorityProfile, forceLLM bool) domain.DecisionResult {
	start := time.Now()
	result := e.decide(ctx, screenshot, state, profile, forceLLM)
	result.LatencyMS = time.Since(start).Milliseconds()

	e.mu.Lock()
	e.stats.Total++
	e.stats.TotalLatencyMS += result.LatencyMS
	switch result.Source {
	case domain.SourceRule:
		e.stats.RuleCount++
	case domain.SourceLLM:
		e.stats.LLMCount++
	case domain.SourceFallback:
		e.stats.FallbackCount++
	}
	e.mu.Unlock()

	return result
}

func (e *Engine) decide(ctx context.Context, screenshot image.Image, state *domain.GameState, profile PriorityProfile, forceLLM bool) domain.DecisionResult {
	if !forceLLM {
		if action := e.Rules.CheckQuickActions(state); action != nil {
			logValidationWarnings(state, *action)
			validated := validator.ValidateAndFix(state, *action)
			return domain.DecisionResult{Action: validated, Source: domain.SourceRule, Confidence: 1.0}
		}
	}

	if e.VLM == nil {
		return e.fallback("no VLM client configured")
	}

	annotated := screenshot
	if e.Catalog != nil {
		annotated = Annotate(screenshot, e.Catalog)
	}

	prompt := BuildPrompt(state, profile)
	text, err := e.VLM.ChatWithImage(ctx, prompt, annotated, systemPrompt)
	if err != nil {
		e.mu.Lock()
		e.stats.ErrorCount++
		e.mu.Unlock()
		log.Warn().Err(err).Msg("vlm call failed, falling back to wait")
		return e.fallback(err.Error())
	}

	parsed := vlm.Parse(text)
	if parsed.Action == nil {
		return domain.DecisionResult{
			Action:      domain.ActionNoneWith("vlm did not propose an action"),
			Source:      domain.SourceLLM,
			LLMAnalysis: parsed.Analysis,
			Confidence:  parsed.Confidence,
		}
	}

	logValidationWarnings(state, *parsed.Action)
	validated := validator.ValidateAndFix(state, *parsed.Action)
	return domain.DecisionResult{
		Action:      validated,
		Source:      domain.SourceLLM,
		LLMAnalysis: parsed.Analysis,
		Confidence:  parsed.Confidence,
	}
}

// logValidationWarnings logs an action's non-fatal validation warnings;
// the action still executes as-is.
func logValidationWarnings(state *domain.GameState, action domain.Action) {
	for _, w := range validator.Validate(state, action).Warnings {
		log.Warn().Str("action", string(action.Kind)).Msg(w)
	}
}

func (e *Engine) fallback(reason string) domain.DecisionResult {
	action := domain.ActionWaitFor(time.Second, "fallback: "+reason)
	return domain.DecisionResult{Action: action, Source: domain.SourceFallback, Confidence: 0}
}

// Snapshot returns a copy of the engine's rolling statistics.
func (e *Engine) Snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

const systemPrompt = "You are an auto-battler assistant. Read the annotated screenshot and the " +
	"current game state, then propose exactly one action as a fenced json object matching the " +
	"documented action schema. Prefer board safety and resource efficiency."

// BuildPrompt renders a textual description of state plus the chosen
// priority profile's framing.
func BuildPrompt(state *domain.GameState, profile PriorityProfile) string {
	snap := state.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Priority profile: %s\n", profileGuidance(profile))
	fmt.Fprintf(&b, "Phase: %s, Stage: %d, Round: %d\n", snap.Phase, snap.Stage, snap.Round)
	fmt.Fprintf(&b, "Gold: %d, HP: %d, Level: %d (exp %d/%d)\n", snap.Gold, snap.HP, snap.Level, snap.Exp, snap.ExpToLevel)
	fmt.Fprintf(&b, "Board heroes (%d): %s\n", len(snap.Heroes), heroList(snap.Heroes))
	fmt.Fprintf(&b, "Bench heroes (%d): %s\n", len(snap.Bench), heroList(snap.Bench))
	fmt.Fprintf(&b, "Shop: %s\n", shopList(snap.ShopSlots))
	fmt.Fprintf(&b, "Active synergies: %s\n", strings.Join(activeSynergyNames(snap.Synergies), ", "))
	fmt.Fprintf(&b, "Shop locked: %v, can refresh: %v\n", snap.ShopLocked, snap.CanRefresh)
	return b.String()
}

func profileGuidance(p PriorityProfile) string {
	switch p {
	case ProfileSaveGold:
		return "save_gold: avoid spending unless a purchase is clearly worthwhile"
	case ProfileLevelUp:
		return "level_up: prioritize leveling over shop purchases"
	case ProfileChaseThree:
		return "chase_three: prioritize completing 3-star fusions"
	case ProfileProtectHP:
		return "protect_hp: prioritize actions that stabilize a low-HP board"
	default:
		return "balanced: weigh economy, board strength, and HP evenly"
	}
}

func heroList(heroes []domain.Hero) string {
	if len(heroes) == 0 {
		return "(none)"
	}
	names := make([]string, len(heroes))
	for i, h := range heroes {
		names[i] = fmt.Sprintf("%s*%d", h.Name, h.Stars)
	}
	return strings.Join(names, ", ")
}

func shopList(slots [domain.ShopSlotsLen]domain.ShopSlot) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		if s.Sold || s.HeroName == "" {
			parts = append(parts, fmt.Sprintf("[%d: empty]", s.Index))
			continue
		}
		parts = append(parts, fmt.Sprintf("[%d: %s (%dg)]", s.Index, s.HeroName, s.Cost))
	}
	return strings.Join(parts, " ")
}

func activeSynergyNames(synergies map[string]domain.Synergy) []string {
	var names []string
	for name, s := range synergies {
		if s.Active {
			names = append(names, name)
		}
	}
	return names
}

// Annotate draws region box outlines (shop slots, board cells, gold
// and level displays) at their base-resolution coordinates onto a copy
// of shot. The boxes carry no index numbers or other labels. Annotation
// never mutates the caller's image.
func Annotate(shot image.Image, catalog *geometry.RegionCatalog) image.Image {
	b := shot.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, shot, b.Min, draw.Src)

	boxColor := color.RGBA{R: 255, G: 64, B: 64, A: 255}
	for i := 0; i < domain.ShopSlotsLen; i++ {
		if r, err := catalog.ShopSlot(i); err == nil {
			drawBox(out, r.X, r.Y, r.W, r.H, boxColor)
		}
	}
	for row := 0; row < domain.BoardRows; row++ {
		for col := 0; col < domain.BoardCols; col++ {
			if r, err := catalog.BoardCell(row, col); err == nil {
				drawBox(out, r.X, r.Y, r.W, r.H, boxColor)
			}
		}
	}
	gold := catalog.GoldDisplay()
	drawBox(out, gold.X, gold.Y, gold.W, gold.H, boxColor)
	level := catalog.LevelDisplay()
	drawBox(out, level.X, level.Y, level.W, level.H, boxColor)
	return out
}

func drawBox(img *image.RGBA, x, y, w, h int, c color.Color) {
	b := img.Bounds()
	x0, y0, x1, y1 := x+b.Min.X, y+b.Min.Y, x+w+b.Min.X, y+h+b.Min.Y
	for px := x0; px < x1; px++ {
		setIfInBounds(img, px, y0, c)
		setIfInBounds(img, px, y1-1, c)
	}
	for py := y0; py < y1; py++ {
		setIfInBounds(img, x0, py, c)
		setIfInBounds(img, x1-1, py, c)
	}
}

func setIfInBounds(img *image.RGBA, x, y int, c color.Color) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.Set(x, y, c)
	}
}

// AsDecisionError adapts a non-nil error into the project-wide
// DecisionError family for callers that log at the design-level error
// taxonomy rather than a package-local type.
func AsDecisionError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return bperr.NewDecisionError(stage, err.Error(), err)
}

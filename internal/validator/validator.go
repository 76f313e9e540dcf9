// Package validator implements pure legality checks for an Action
// against the current GameState, plus a best-effort repair pass.
package validator

import (
	"fmt"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

const (
	RefreshCost = 2
	LevelUpCost = 4
	MaxLevel    = 9

	// RepairConfidenceDecay is applied once per repair step performed by
	// ValidateAndFix.
	RepairConfidenceDecay = 0.9
)

// Result is the outcome of Validate: either the action is legal, or
// Reason explains why not. Warnings carry non-fatal observations (a
// stale target name, a full bench) that callers should log but that
// never invalidate the action on their own.
type Result struct {
	Valid    bool
	Reason   string
	Warnings []string
}

func ok() Result                  { return Result{Valid: true} }
func reject(reason string) Result { return Result{Valid: false, Reason: reason} }

// Validate is a pure function: for the same (state, action) it always
// returns the same Result, and it never mutates state or action.
func Validate(state *domain.GameState, action domain.Action) Result {
	switch action.Kind {
	case domain.ActionBuyHero:
		return validateBuyHero(state, action)
	case domain.ActionSellHero:
		return validateSellHero(state, action)
	case domain.ActionMoveHero:
		return validateMoveHero(action)
	case domain.ActionRefreshShop:
		return validateRefreshShop(state)
	case domain.ActionLevelUp:
		return validateLevelUp(state)
	case domain.ActionEquipItem:
		return validateEquipItem(state, action)
	case domain.ActionWait, domain.ActionNone, domain.ActionLockShop,
		domain.ActionUnequipItem, domain.ActionCombineItem,
		domain.ActionDeployHero, domain.ActionRecallHero:
		return ok()
	default:
		return reject(fmt.Sprintf("unknown action kind %q", action.Kind))
	}
}

func validateBuyHero(state *domain.GameState, action domain.Action) Result {
	if action.Target == "" {
		return reject("buy_hero requires a target hero name")
	}
	if action.Position == nil {
		return reject("buy_hero requires a shop slot position")
	}
	slot := action.Position.Row
	if slot < 0 || slot > 4 {
		return reject("buy_hero slot out of range [0,4]")
	}
	s := state.ShopSlots[slot]
	if s.Sold {
		return reject("buy_hero targets a sold slot")
	}
	if s.HeroName == "" {
		return reject(fmt.Sprintf("buy_hero targets empty slot %d", slot))
	}
	if state.Gold < s.Cost {
		return reject("insufficient gold for buy_hero")
	}

	// Non-fatal observations: a recognizer-lagged target name or a full
	// bench don't make the purchase illegal, but the caller should know.
	var warnings []string
	if s.HeroName != action.Target {
		warnings = append(warnings, fmt.Sprintf("buy_hero slot %d holds %q, not %q", slot, s.HeroName, action.Target))
	}
	if len(state.Bench) >= domain.MaxBenchSize {
		warnings = append(warnings, "bench is full, the bought hero must be fielded or sold immediately")
	}
	return Result{Valid: true, Warnings: warnings}
}

func validateSellHero(state *domain.GameState, action domain.Action) Result {
	if action.Target == "" {
		return reject("sell_hero requires a target hero name")
	}
	for _, h := range state.Heroes {
		if h.Name == action.Target {
			return ok()
		}
	}
	for _, h := range state.Bench {
		if h.Name == action.Target {
			return ok()
		}
	}
	return reject(fmt.Sprintf("sell_hero target %q not found on board or bench", action.Target))
}

func validateMoveHero(action domain.Action) Result {
	if action.SourcePosition == nil || action.Position == nil {
		return reject("move_hero requires source and target positions")
	}
	if !inBoardBounds(*action.Position) {
		return reject("move_hero target out of board bounds")
	}
	return ok()
}

func validateRefreshShop(state *domain.GameState) Result {
	if state.ShopLocked {
		return reject("shop is locked")
	}
	if state.Gold < RefreshCost {
		return reject("insufficient gold to refresh shop")
	}
	return ok()
}

func validateLevelUp(state *domain.GameState) Result {
	if state.Level >= MaxLevel {
		return reject("already at max level")
	}
	if state.Gold < LevelUpCost {
		return reject("insufficient gold to level up")
	}
	return ok()
}

func validateEquipItem(state *domain.GameState, action domain.Action) Result {
	if action.Target == "" {
		return reject("equip_item requires a target hero")
	}
	for _, h := range state.Heroes {
		if h.Name == action.Target {
			return ok()
		}
	}
	return reject(fmt.Sprintf("equip_item target %q not found on board", action.Target))
}

func inBoardBounds(p domain.Position) bool {
	return p.Row >= 0 && p.Row <= 3 && p.Col >= 0 && p.Col <= 6
}

// ValidateAndFix attempts a single repair step for the common
// out-of-date-slot-index and out-of-bounds-position failure modes
// before giving up and degrading to None.
func ValidateAndFix(state *domain.GameState, action domain.Action) domain.Action {
	result := Validate(state, action)
	if result.Valid {
		return action
	}

	switch action.Kind {
	case domain.ActionBuyHero:
		if fixed, ok := repairBuyHeroSlot(state, action); ok {
			return fixed
		}
	case domain.ActionMoveHero:
		if fixed, ok := repairMoveHeroBounds(action); ok {
			return fixed
		}
	}

	return domain.ActionNoneWith("unrepairable action: " + result.Reason)
}

func repairBuyHeroSlot(state *domain.GameState, action domain.Action) (domain.Action, bool) {
	for i, slot := range state.ShopSlots {
		if slot.HeroName == action.Target && !slot.Sold {
			fixed := action
			fixed.Position = &domain.Position{Row: i, Col: 0}
			fixed.Confidence *= RepairConfidenceDecay
			fixed.Rationale = fixed.Rationale + " (slot repaired)"
			if Validate(state, fixed).Valid {
				return fixed, true
			}
		}
	}
	return domain.Action{}, false
}

func repairMoveHeroBounds(action domain.Action) (domain.Action, bool) {
	if action.SourcePosition == nil || action.Position == nil {
		return domain.Action{}, false
	}
	fixed := action
	clamped := clampToBoard(*action.Position)
	fixed.Position = &clamped
	fixed.Confidence *= RepairConfidenceDecay
	fixed.Rationale = fixed.Rationale + " (position clamped to board bounds)"
	return fixed, true
}

func clampToBoard(p domain.Position) domain.Position {
	return domain.Position{Row: clamp(p.Row, 0, 3), Col: clamp(p.Col, 0, 6)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

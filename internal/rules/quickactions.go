// Package rules implements the quick-action engine: a small, fixed
// rule table that handles obvious game decisions without invoking the
// VLM.
package rules

import (
	"sort"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

// QuickActionRule pairs a predicate over GameState with an Action
// factory, a priority, and a human-readable description.
type QuickActionRule struct {
	Name        string
	Condition   func(*domain.GameState) bool
	Factory     func(*domain.GameState) domain.Action
	Priority    domain.Priority
	Description string
}

// QuickActionEngine evaluates its rule table against a GameState
// snapshot and returns the first (or all) matching action(s).
type QuickActionEngine struct {
	rules   []QuickActionRule
	enabled map[string]bool
}

// NewQuickActionEngine registers the five default rules, all enabled.
func NewQuickActionEngine() *QuickActionEngine {
	e := &QuickActionEngine{enabled: make(map[string]bool)}
	e.registerDefaultRules()
	return e
}

func (e *QuickActionEngine) registerDefaultRules() {
	e.RegisterRule(QuickActionRule{
		Name: "auto_free_refresh",
		Condition: func(s *domain.GameState) bool {
			return s.CanRefresh && s.Gold >= 2 && shouldRefresh(s)
		},
		Factory:     func(s *domain.GameState) domain.Action { return domain.ActionRefreshShopNow("rule: shop needs a refresh") },
		Priority:    domain.PriorityNormal,
		Description: "auto-refresh the shop when nothing useful is on offer",
	})

	e.RegisterRule(QuickActionRule{
		Name:        "auto_buy_for_three_star",
		Condition:   canCompleteThreeStar,
		Factory:     createBuyActionForThreeStar,
		Priority:    domain.PriorityHigh,
		Description: "buy a shop hero that completes a 3-star fusion",
	})

	e.RegisterRule(QuickActionRule{
		Name: "emergency_level_up",
		Condition: func(s *domain.GameState) bool {
			return s.HP <= 30 && s.Gold >= 4 && s.Level < 9
		},
		Factory:     func(s *domain.GameState) domain.Action { return domain.ActionLevelUpNow("rule: HP critical, emergency level up") },
		Priority:    domain.PriorityCritical,
		Description: "level up under a low-HP threshold",
	})

	e.RegisterRule(QuickActionRule{
		Name: "auto_buy_needed_hero",
		Condition: func(s *domain.GameState) bool {
			return s.CanAddHero() && s.Gold >= 1 && hasAffordableHeroInShop(s)
		},
		Factory:     createBuyNeededHeroAction,
		Priority:    domain.PriorityHigh,
		Description: "buy any affordable shop hero when board/bench has room",
	})

	e.RegisterRule(QuickActionRule{
		Name: "auto_sell_extra_hero",
		Condition: func(s *domain.GameState) bool {
			return !s.HasBenchSpace() && hasSellableHero(s)
		},
		Factory:     createSellAction,
		Priority:    domain.PriorityLow,
		Description: "sell a singleton bench hero when the bench is full",
	})
}

// RegisterRule appends rule and enables it.
func (e *QuickActionEngine) RegisterRule(rule QuickActionRule) {
	e.rules = append(e.rules, rule)
	e.enabled[rule.Name] = true
}

// EnableRule / DisableRule toggle a rule by name without removing it
// from the table.
func (e *QuickActionEngine) EnableRule(name string)  { e.enabled[name] = true }
func (e *QuickActionEngine) DisableRule(name string) { delete(e.enabled, name) }

// CheckQuickActions evaluates enabled rules in priority order
// (descending, ties broken by registration order) and returns the first
// match, or nil. A panicking predicate or factory is treated as "rule
// did not match" and evaluation continues.
func (e *QuickActionEngine) CheckQuickActions(state *domain.GameState) *domain.Action {
	for _, rule := range e.activeRulesSorted() {
		action := e.tryRule(rule, state)
		if action != nil {
			return action
		}
	}
	return nil
}

// GetAllMatchingRules evaluates every enabled rule (not just the first
// match) and returns every produced action, sorted by priority descending.
func (e *QuickActionEngine) GetAllMatchingRules(state *domain.GameState) []domain.Action {
	var out []domain.Action
	for _, rule := range e.activeRulesSorted() {
		if action := e.tryRule(rule, state); action != nil {
			out = append(out, *action)
		}
	}
	return out
}

func (e *QuickActionEngine) activeRulesSorted() []QuickActionRule {
	active := make([]QuickActionRule, 0, len(e.rules))
	for _, r := range e.rules {
		if e.enabled[r.Name] {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })
	return active
}

func (e *QuickActionEngine) tryRule(rule QuickActionRule, state *domain.GameState) (result *domain.Action) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
		}
	}()
	if !rule.Condition(state) {
		return nil
	}
	action := rule.Factory(state)
	action.Priority = rule.Priority
	if action.Metadata == nil {
		action.Metadata = map[string]any{}
	}
	action.Metadata["rule_name"] = rule.Name
	return &action
}

func shouldRefresh(s *domain.GameState) bool {
	if s.Gold < 4 {
		return false
	}
	for _, slot := range s.ShopSlots {
		if slot.HeroName == "" || slot.Sold {
			continue
		}
		for _, h := range append(append([]domain.Hero(nil), s.Heroes...), s.Bench...) {
			if h.Name == slot.HeroName {
				return false
			}
		}
	}
	return true
}

func canCompleteThreeStar(s *domain.GameState) bool {
	for _, slot := range s.ShopSlots {
		if slot.HeroName == "" || slot.Sold {
			continue
		}
		if s.HeroCount(slot.HeroName) == 2 && slot.Cost <= 3 {
			return s.Gold >= slot.Cost
		}
	}
	return false
}

func createBuyActionForThreeStar(s *domain.GameState) domain.Action {
	for i, slot := range s.ShopSlots {
		if slot.HeroName == "" || slot.Sold {
			continue
		}
		if s.HeroCount(slot.HeroName) == 2 && slot.Cost <= 3 {
			return domain.ActionBuyHeroAt(slot.HeroName, i, "buy "+slot.HeroName+" to complete 3-star")
		}
	}
	return domain.ActionNoneWith("no 3-star-completing hero available")
}

func hasAffordableHeroInShop(s *domain.GameState) bool {
	for _, slot := range s.ShopSlots {
		if slot.HeroName != "" && !slot.Sold && slot.Cost <= s.Gold {
			return true
		}
	}
	return false
}

func createBuyNeededHeroAction(s *domain.GameState) domain.Action {
	for i, slot := range s.ShopSlots {
		if slot.HeroName != "" && !slot.Sold && slot.Cost <= s.Gold {
			return domain.ActionBuyHeroAt(slot.HeroName, i, "buy "+slot.HeroName+" to strengthen the board")
		}
	}
	return domain.ActionNoneWith("no affordable hero available")
}

func hasSellableHero(s *domain.GameState) bool {
	counts := map[string]int{}
	for _, h := range s.Bench {
		counts[h.Name]++
	}
	for _, n := range counts {
		if n == 1 {
			return true
		}
	}
	return false
}

func createSellAction(s *domain.GameState) domain.Action {
	counts := map[string]int{}
	for i, h := range s.Bench {
		counts[h.Name]++
		if counts[h.Name] == 1 {
			pos := domain.Position{Row: i, Col: -1}
			return domain.ActionSellHeroAt(h.Name, pos, "sell singleton "+h.Name+" to free bench space")
		}
	}
	return domain.ActionNoneWith("no sellable hero available")
}

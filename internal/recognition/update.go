package recognition

import (
	"github.com/kestrelsoft/boardpilot/internal/domain"
)

// CostLookup resolves a hero id to its shop cost. The caller supplies
// the table behind it; cmd/boardpilot loads no game data and passes a
// lookup that returns 0 for every id.
type CostLookup func(heroID string) int

// BuildUpdate assembles a domain.RecognitionUpdate from one tick's worth
// of recognized entities, ready to hand to GameState.UpdateFromRecognition.
// A nil entity in shop/bench leaves that slot/position empty rather than
// stale: recognition failure on a slot means "nothing seen", not "no
// change", since every tick re-derives the full region set.
func BuildUpdate(shop [5]*domain.RecognizedEntity, board []domain.RecognizedEntity, bench [9]*domain.RecognizedEntity, synergies []domain.RecognizedEntity, items []domain.RecognizedEntity, info PlayerInfo, cost CostLookup) domain.RecognitionUpdate {
	u := domain.RecognitionUpdate{
		Shop:  make([]domain.ShopSlot, 5),
		Items: make(map[string]bool),
	}
	for i, e := range shop {
		slot := domain.ShopSlot{Index: i}
		if e != nil {
			slot.HeroName = e.ID
			slot.Cost = cost(e.ID)
		}
		u.Shop[i] = slot
	}

	for i, e := range bench {
		if e == nil {
			continue
		}
		h := heroFromEntity(*e, cost)
		h.Position = &domain.Position{Row: i, Col: -1}
		u.Bench = append(u.Bench, h)
	}
	if u.Bench == nil {
		u.Bench = []domain.Hero{}
	}

	for _, e := range board {
		u.Board = append(u.Board, heroFromEntity(e, cost))
	}
	if u.Board == nil {
		u.Board = []domain.Hero{}
	}

	if len(synergies) > 0 {
		u.Synergies = make(map[string]domain.Synergy, len(synergies))
		for _, e := range synergies {
			u.Synergies[e.ID] = domain.Synergy{Active: true}
		}
	}

	for _, e := range items {
		u.Items[e.ID] = true
	}

	u.Gold = info.Gold
	u.Level = info.Level
	return u
}

func heroFromEntity(e domain.RecognizedEntity, cost CostLookup) domain.Hero {
	return domain.Hero{Name: e.ID, Cost: cost(e.ID), Stars: 1}
}

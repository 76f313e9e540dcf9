package vlm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

// ParsedResponse is a VLM reply turned into structured data: an analysis
// string, an optional Action, and whatever numeric state the model
// claimed to have read off the screenshot.
type ParsedResponse struct {
	RawText       string
	Analysis      string
	Action        *domain.Action
	DetectedGold  *int
	DetectedLevel *int
	DetectedHP    *int
	Confidence    float64
}

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bracePattern      = regexp.MustCompile(`(?s)\{.*\}`)
)

// keywordToKind is the bilingual action-keyword table; English and
// Chinese keywords both resolve to the same ActionKind.
var keywordToKind = []struct {
	keyword string
	kind    domain.ActionKind
}{
	{"buy_hero", domain.ActionBuyHero},
	{"buy", domain.ActionBuyHero},
	{"购买", domain.ActionBuyHero},
	{"sell_hero", domain.ActionSellHero},
	{"sell", domain.ActionSellHero},
	{"出售", domain.ActionSellHero},
	{"move_hero", domain.ActionMoveHero},
	{"move", domain.ActionMoveHero},
	{"移动", domain.ActionMoveHero},
	{"refresh_shop", domain.ActionRefreshShop},
	{"refresh", domain.ActionRefreshShop},
	{"刷新", domain.ActionRefreshShop},
	{"level_up", domain.ActionLevelUp},
	{"level", domain.ActionLevelUp},
	{"升级", domain.ActionLevelUp},
	{"equip_item", domain.ActionEquipItem},
	{"equip", domain.ActionEquipItem},
	{"装备", domain.ActionEquipItem},
	{"wait", domain.ActionWait},
	{"等待", domain.ActionWait},
	{"none", domain.ActionNone},
	{"无操作", domain.ActionNone},
}

// rawAction is the JSON shape a well-behaved VLM reply is expected to
// produce.
type rawAction struct {
	Analysis             string    `json:"analysis"`
	DetectedGold         *int      `json:"detected_gold"`
	DetectedLevel        *int      `json:"detected_level"`
	DetectedHP           *int      `json:"detected_hp"`
	ActionType           string    `json:"action_type"`
	ActionTarget         string    `json:"action_target"`
	ActionPosition       []int     `json:"action_position"`
	ActionSourcePosition []int     `json:"action_source_position"`
	Reasoning            string    `json:"reasoning"`
	Confidence           *float64  `json:"confidence"`
}

// Parse extracts a structured decision from free-form VLM text: first a
// fenced ```json block, then the first balanced {...} span, and
// finally a bilingual keyword scan with a confidence of 0.5.
func Parse(text string) ParsedResponse {
	if block := extractJSON(text); block != "" {
		var raw rawAction
		if err := json.Unmarshal([]byte(block), &raw); err == nil {
			return parseStructured(text, raw)
		}
	}
	return parseUnstructured(text)
}

func extractJSON(text string) string {
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	depth, start := 0, strings.IndexByte(text, '{')
	for i := start; start >= 0 && i < len(text); i++ {
		if text[i] == '{' {
			depth++
		} else if text[i] == '}' {
			if depth--; depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func parseStructured(raw string, ra rawAction) ParsedResponse {
	confidence := 1.0
	if ra.Confidence != nil {
		confidence = *ra.Confidence
	}
	resp := ParsedResponse{
		RawText:       raw,
		Analysis:      ra.Analysis,
		DetectedGold:  ra.DetectedGold,
		DetectedLevel: ra.DetectedLevel,
		DetectedHP:    ra.DetectedHP,
		Confidence:    confidence,
	}

	if ra.ActionType == "" || ra.ActionType == "none" {
		return resp
	}

	kind := kindForKeyword(strings.ToLower(ra.ActionType))
	if kind == "" || kind == domain.ActionNone {
		return resp
	}

	action := domain.Action{
		Kind:       kind,
		Target:     ra.ActionTarget,
		Rationale:  ra.Reasoning,
		Priority:   domain.PriorityNormal,
		Confidence: confidence,
		Metadata:   map[string]any{},
	}
	if p := positionFromPair(ra.ActionPosition); p != nil {
		action.Position = p
	}
	if p := positionFromPair(ra.ActionSourcePosition); p != nil {
		action.SourcePosition = p
	}
	resp.Action = &action
	return resp
}

// positionFromPair accepts either a single-element array (the shop-slot
// convention, where the column is implicitly 0) or a two-element
// [row, col] pair.
func positionFromPair(pair []int) *domain.Position {
	switch len(pair) {
	case 1:
		return &domain.Position{Row: pair[0], Col: 0}
	case 2:
		return &domain.Position{Row: pair[0], Col: pair[1]}
	default:
		return nil
	}
}

func kindForKeyword(lowered string) domain.ActionKind {
	for _, entry := range keywordToKind {
		if entry.keyword == lowered {
			return entry.kind
		}
	}
	return ""
}

var targetAfterKeyword = regexp.MustCompile(`["'\s]+([^"'，。\n]+)`)

// parseUnstructured falls back to scanning for the first keyword hit in
// raw, unfenced model text, taking whatever follows it as the target and
// the first 200 characters as the rationale. Confidence is fixed at 0.5.
func parseUnstructured(text string) ParsedResponse {
	lowered := strings.ToLower(text)
	resp := ParsedResponse{RawText: text, Analysis: text, Confidence: 0.5}

	for _, entry := range keywordToKind {
		idx := strings.Index(lowered, entry.keyword)
		if idx < 0 {
			continue
		}
		rationale := text
		if r := []rune(rationale); len(r) > 200 {
			rationale = string(r[:200])
		}
		action := domain.Action{
			Kind:       entry.kind,
			Rationale:  rationale,
			Priority:   domain.PriorityNormal,
			Confidence: 0.5,
			Metadata:   map[string]any{},
		}
		if target := extractTarget(text, idx+len(entry.keyword)); target != "" {
			action.Target = target
		}
		resp.Action = &action
		break
	}
	return resp
}

func extractTarget(text string, from int) string {
	if from >= len(text) {
		return ""
	}
	tail := text[from:]
	m := targetAfterKeyword.FindStringSubmatch(tail)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

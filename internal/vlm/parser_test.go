package vlm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

func TestParseFencedJSONBlock(t *testing.T) {
	text := "Here's my analysis:\n```json\n" + `{
  "analysis": "shop has a good hero",
  "detected_gold": 50,
  "detected_level": 7,
  "detected_hp": 65,
  "action_type": "buy_hero",
  "action_target": "ahri",
  "action_position": [0],
  "confidence": 0.9
}` + "\n```\n"

	resp := Parse(text)
	require.NotNil(t, resp.Action)
	assert.Equal(t, domain.ActionBuyHero, resp.Action.Kind)
	assert.Equal(t, "ahri", resp.Action.Target)
	require.NotNil(t, resp.Action.Position)
	assert.Equal(t, 0, resp.Action.Position.Row)
	assert.Equal(t, 0, resp.Action.Position.Col)
	require.NotNil(t, resp.DetectedGold)
	assert.Equal(t, 50, *resp.DetectedGold)
	assert.Equal(t, 0.9, resp.Confidence)
}

func TestParseBalancedBraceWithoutFence(t *testing.T) {
	text := `some preamble {"analysis":"ok","action_type":"wait","confidence":0.8} trailing text`
	resp := Parse(text)
	require.NotNil(t, resp.Action)
	assert.Equal(t, domain.ActionWait, resp.Action.Kind)
	assert.Equal(t, 0.8, resp.Confidence)
}

func TestParseActionTypeNoneYieldsNilAction(t *testing.T) {
	text := `{"analysis":"nothing to do","action_type":"none"}`
	resp := Parse(text)
	assert.Nil(t, resp.Action)
}

func TestParseUnstructuredKeywordFallback(t *testing.T) {
	text := "I think we should buy \"ahri\" now since she is cheap."
	resp := Parse(text)
	require.NotNil(t, resp.Action)
	assert.Equal(t, domain.ActionBuyHero, resp.Action.Kind)
	assert.Equal(t, 0.5, resp.Action.Confidence)
	assert.Equal(t, 0.5, resp.Confidence)
}

func TestParseUnstructuredChineseKeyword(t *testing.T) {
	text := "建议购买 ahri 来补强阵容"
	resp := Parse(text)
	require.NotNil(t, resp.Action)
	assert.Equal(t, domain.ActionBuyHero, resp.Action.Kind)
}

func TestParseNoKeywordYieldsNoAction(t *testing.T) {
	text := "this text has nothing actionable in it"
	resp := Parse(text)
	assert.Nil(t, resp.Action)
	assert.Equal(t, 0.5, resp.Confidence)
}

func TestParseMalformedJSONFallsBackToUnstructured(t *testing.T) {
	text := "```json\n{not valid json at all\n```\nso let's wait instead"
	resp := Parse(text)
	require.NotNil(t, resp.Action)
	assert.Equal(t, domain.ActionWait, resp.Action.Kind)
	assert.Equal(t, 0.5, resp.Confidence)
}

func TestParseTwoElementPositionPair(t *testing.T) {
	text := `{"action_type":"move_hero","action_target":"ahri","action_position":[1,2],"action_source_position":[0,3]}`
	resp := Parse(text)
	require.NotNil(t, resp.Action)
	require.NotNil(t, resp.Action.Position)
	require.NotNil(t, resp.Action.SourcePosition)
	assert.Equal(t, domain.Position{Row: 1, Col: 2}, *resp.Action.Position)
	assert.Equal(t, domain.Position{Row: 0, Col: 3}, *resp.Action.SourcePosition)
}

func TestParseDefaultsConfidenceToOneWhenAbsent(t *testing.T) {
	text := `{"action_type":"wait"}`
	resp := Parse(text)
	assert.Equal(t, 1.0, resp.Confidence)
}

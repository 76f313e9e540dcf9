package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

func TestEvaluateBooleanExpression(t *testing.T) {
	ee := NewExprEvaluator()
	vars := map[string]any{"gold": 10, "hp": 40}

	ok, err := ee.Evaluate("gold >= 8 && hp < 50", vars)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ee.Evaluate("gold > 50", vars)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateEmptyExpressionFails(t *testing.T) {
	ee := NewExprEvaluator()
	_, err := ee.Evaluate("", nil)
	assert.Error(t, err)
}

func TestEvaluateCompileErrorSurfaces(t *testing.T) {
	ee := NewExprEvaluator()
	_, err := ee.Evaluate("gold >=", map[string]any{"gold": 1})
	assert.Error(t, err)
}

func TestEvaluateCachesCompiledPrograms(t *testing.T) {
	ee := NewExprEvaluator()
	vars := map[string]any{"gold": 10}

	_, err := ee.Evaluate("gold > 5", vars)
	require.NoError(t, err)
	require.Len(t, ee.cache, 1)

	_, err = ee.Evaluate("gold > 5", vars)
	require.NoError(t, err)
	assert.Len(t, ee.cache, 1, "re-evaluating the same expression must reuse the cached program")
}

func TestGameStateVarsFlattensSnapshot(t *testing.T) {
	gs := domain.NewGameState()
	gs.UpdateFromRecognition(domain.RecognitionUpdate{
		Gold:  intPtr(12),
		HP:    intPtr(55),
		Level: intPtr(6),
		Bench: []domain.Hero{{Name: "ahri"}},
	})

	vars := GameStateVars(gs)
	assert.Equal(t, 12, vars["gold"])
	assert.Equal(t, 55, vars["hp"])
	assert.Equal(t, 6, vars["level"])
	assert.Equal(t, 1, vars["benchCount"])
	assert.Equal(t, string(domain.PhaseUnknown), vars["phase"])
}

func TestRegisterExprRuleFiresThroughQuickActions(t *testing.T) {
	gs := domain.NewGameState()
	gs.UpdateFromRecognition(domain.RecognitionUpdate{Gold: intPtr(60), HP: intPtr(80), Level: intPtr(7)})

	engine := NewQuickActionEngine()
	engine.RegisterExprRule(ExprRule{
		Name:       "hoard_interest",
		Expression: "gold >= 50",
		ActionKind: string(domain.ActionLockShop),
		Rationale:  "sit on interest gold",
	}, NewExprEvaluator(), domain.PriorityCritical)

	action := engine.CheckQuickActions(gs)
	require.NotNil(t, action)
	assert.Equal(t, domain.ActionLockShop, action.Kind)
	assert.Equal(t, "hoard_interest", action.Metadata["rule_name"])
}

func TestExprRuleEvaluationErrorDegradesToNoMatch(t *testing.T) {
	gs := domain.NewGameState()
	gs.UpdateFromRecognition(domain.RecognitionUpdate{Gold: intPtr(0), HP: intPtr(100), Level: intPtr(1)})

	engine := NewQuickActionEngine()
	engine.RegisterExprRule(ExprRule{
		Name:       "broken",
		Expression: "gold >=",
		ActionKind: string(domain.ActionLockShop),
	}, NewExprEvaluator(), domain.PriorityCritical)

	assert.Nil(t, engine.CheckQuickActions(gs))
}

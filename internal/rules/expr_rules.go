package rules

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/kestrelsoft/boardpilot/internal/domain"
	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
)

// ExprRule is a user-registered condition expressed as an expr-lang
// boolean expression over a GameState snapshot's fields (gold, hp,
// level, benchCount, ...).
type ExprRule struct {
	Name       string
	Expression string
	ActionKind string
	Rationale  string
}

// ExprEvaluator compiles and caches expr-lang programs so repeated
// per-tick evaluation of the same expression string doesn't recompile it.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate runs expression against vars, expecting a boolean result.
func (ee *ExprEvaluator) Evaluate(expression string, vars map[string]any) (bool, error) {
	if expression == "" {
		return false, bperr.NewDecisionError("rule_expr", "expression cannot be empty", nil)
	}

	program, err := ee.compiled(expression)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(program, vars)
	if err != nil {
		// Missing fields in a partially populated GameState snapshot are
		// treated as "condition not satisfied", not an error.
		return false, nil
	}

	b, ok := result.(bool)
	if !ok {
		return false, bperr.NewDecisionError("rule_expr", fmt.Sprintf("expression %q did not return a boolean, got %T", expression, result), nil)
	}
	return b, nil
}

func (ee *ExprEvaluator) compiled(expression string) (*vm.Program, error) {
	ee.mu.RLock()
	p, ok := ee.cache[expression]
	ee.mu.RUnlock()
	if ok {
		return p, nil
	}

	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, bperr.NewDecisionError("rule_expr", fmt.Sprintf("failed to compile expression %q", expression), err)
	}

	ee.mu.Lock()
	ee.cache[expression] = program
	ee.mu.Unlock()
	return program, nil
}

// GameStateVars flattens the fields an expr-lang rule expression can
// reference into a plain variable map. A still-cold recognition pass
// that hasn't populated a field yet just reads as its zero value, not a
// missing variable, so expressions don't need nil-guards.
func GameStateVars(s *domain.GameState) map[string]any {
	snap := s.Snapshot()
	return map[string]any{
		"gold":        snap.Gold,
		"hp":          snap.HP,
		"level":       snap.Level,
		"stage":       snap.Stage,
		"round":       snap.Round,
		"exp":         snap.Exp,
		"expToLevel":  snap.ExpToLevel,
		"heroCount":   len(snap.Heroes),
		"benchCount":  len(snap.Bench),
		"shopLocked":  snap.ShopLocked,
		"canRefresh":  snap.CanRefresh,
		"phase":       string(snap.Phase),
	}
}

// RegisterExprRule compiles rule.Expression once (via evaluator's cache)
// and registers it as a QuickActionRule: the condition evaluates the
// expression against GameStateVars, the factory emits rule.ActionKind
// with rule.Rationale at priority. An expression that fails to evaluate
// degrades to "condition not satisfied", matching ExprEvaluator.Evaluate's
// own degrade-to-false behavior on an undefined variable.
func (e *QuickActionEngine) RegisterExprRule(rule ExprRule, evaluator *ExprEvaluator, priority domain.Priority) {
	e.RegisterRule(QuickActionRule{
		Name: rule.Name,
		Condition: func(s *domain.GameState) bool {
			ok, err := evaluator.Evaluate(rule.Expression, GameStateVars(s))
			if err != nil {
				return false
			}
			return ok
		},
		Factory: func(s *domain.GameState) domain.Action {
			kind := domain.ActionKind(rule.ActionKind)
			a := domain.Action{
				Kind:       kind,
				Priority:   priority,
				Rationale:  rule.Rationale,
				Confidence: 1.0,
				Metadata:   map[string]any{},
			}
			return a
		},
		Priority:    priority,
		Description: "user-registered expr rule: " + rule.Expression,
	})
}

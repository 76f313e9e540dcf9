package session

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/boardpilot/internal/decision"
	"github.com/kestrelsoft/boardpilot/internal/domain"
	"github.com/kestrelsoft/boardpilot/internal/executor"
	"github.com/kestrelsoft/boardpilot/internal/geometry"
	"github.com/kestrelsoft/boardpilot/internal/platform"
	"github.com/kestrelsoft/boardpilot/internal/recognition"
	"github.com/kestrelsoft/boardpilot/internal/rules"
	"github.com/kestrelsoft/boardpilot/internal/template"
	"github.com/kestrelsoft/boardpilot/internal/vision"
)

// errNoTemplates is returned by the test matcher's loader so recognition
// always yields zero entities, keeping the loop's decisions deterministic
// (rule engine sees an empty GameState every tick).
var errNoTemplates = errors.New("no templates registered")

type stubAdapter struct{}

func (stubAdapter) Screenshot(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1920, 1080)), nil
}
func (stubAdapter) Click(ctx context.Context, x, y int, button platform.MouseButton, clicks int, interval time.Duration) error {
	return nil
}
func (stubAdapter) Drag(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return nil
}
func (stubAdapter) Scroll(ctx context.Context, x, y, clicks int) error { return nil }
func (stubAdapter) TypeText(ctx context.Context, text string, interval time.Duration) error {
	return nil
}
func (stubAdapter) PressKey(ctx context.Context, key string) error { return nil }
func (stubAdapter) WindowInfo(ctx context.Context) (platform.WindowInfo, bool, error) {
	return platform.WindowInfo{}, true, nil
}
func (stubAdapter) IsActive(ctx context.Context) (bool, error)       { return true, nil }
func (stubAdapter) Activate(ctx context.Context) error               { return nil }
func (stubAdapter) ScaleFactor(ctx context.Context) (float64, error) { return 1.0, nil }

func newTestLoop(t *testing.T, safety Safety) *Loop {
	t.Helper()
	catalog := geometry.NewRegionCatalog()
	matcher := vision.NewMatcher(func(key string) (image.Image, error) {
		return nil, errNoTemplates
	})
	ocr := vision.NewEngine()
	registry := template.NewRegistry(t.TempDir())
	recEngine := recognition.NewEngine(catalog, matcher, ocr, registry)

	exec, err := executor.New(stubAdapter{}, catalog, geometry.BaseResolution, executor.Humanization{Enabled: false})
	require.NoError(t, err)

	decEngine := decision.New(rules.NewQuickActionEngine(), nil, catalog)

	cost := func(heroID string) int { return 0 }

	return New(stubAdapter{}, exec, recEngine, decEngine, cost, catalog, safety)
}

func TestRunInDryRunCompletesWithoutExecuting(t *testing.T) {
	safety := DefaultSafety()
	safety.SessionTimeout = 50 * time.Millisecond
	safety.DecisionInterval = 5 * time.Millisecond
	safety.DryRun = true

	loop := newTestLoop(t, safety)
	summary := loop.Run(context.Background())
	assert.Greater(t, summary.Decisions, 0)
	assert.Equal(t, 0, summary.Executed, "dry run must never execute")
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	safety := DefaultSafety()
	safety.SessionTimeout = time.Hour
	safety.DecisionInterval = 5 * time.Millisecond

	loop := newTestLoop(t, safety)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	summary := loop.Run(ctx)
	assert.Greater(t, summary.Decisions, 0)
}

func TestCheckSafetyGatesEnforcesClickCap(t *testing.T) {
	loop := newTestLoop(t, Safety{MaxClicks: 2, MaxActionsPerMin: 100})
	loop.clickCount = 2
	blocked, reason := loop.checkSafetyGates()
	assert.True(t, blocked)
	assert.Equal(t, "max_clicks", reason)
}

func TestCheckSafetyGatesEnforcesRateLimitSlidingWindow(t *testing.T) {
	loop := newTestLoop(t, Safety{MaxClicks: 1000, MaxActionsPerMin: 2})
	now := time.Now()
	loop.actionTimes = []time.Time{now, now}
	blocked, reason := loop.checkSafetyGates()
	assert.True(t, blocked)
	assert.Equal(t, "rate_limit", reason)
}

func TestCheckSafetyGatesPrunesOldActionsOutsideWindow(t *testing.T) {
	loop := newTestLoop(t, Safety{MaxClicks: 1000, MaxActionsPerMin: 2})
	old := time.Now().Add(-2 * time.Minute)
	loop.actionTimes = []time.Time{old, old}
	blocked, _ := loop.checkSafetyGates()
	assert.False(t, blocked, "actions older than 60s must not count against the rate limit")
	assert.Empty(t, loop.actionTimes, "pruned entries must actually be removed from the window")
}

func TestCheckSafetyGatesAllowsWithinLimits(t *testing.T) {
	loop := newTestLoop(t, Safety{MaxClicks: 1000, MaxActionsPerMin: 30})
	blocked, _ := loop.checkSafetyGates()
	assert.False(t, blocked)
}

func TestRecordExecutionOnlyCountsClickingActions(t *testing.T) {
	loop := newTestLoop(t, DefaultSafety())
	loop.recordExecution(executor.Result{Success: true}, domain.ActionWait)
	assert.Equal(t, 0, loop.clickCount)

	loop.recordExecution(executor.Result{Success: true}, domain.ActionBuyHero)
	assert.Equal(t, 1, loop.clickCount)
}

func TestCountsAsClickExemptsWaitAndNone(t *testing.T) {
	assert.False(t, countsAsClick(domain.ActionWait))
	assert.False(t, countsAsClick(domain.ActionNone))
	assert.True(t, countsAsClick(domain.ActionBuyHero))
	assert.True(t, countsAsClick(domain.ActionMoveHero))
}

func TestDryRunCompletesQueueItems(t *testing.T) {
	safety := DefaultSafety()
	safety.SessionTimeout = 50 * time.Millisecond
	safety.DecisionInterval = 5 * time.Millisecond
	safety.DryRun = true

	loop := newTestLoop(t, safety)
	loop.Run(context.Background())

	stats := loop.Queue.Stats()
	assert.Greater(t, stats.CompletedCount, 0, "dry run must still complete each queued action")
	assert.Zero(t, stats.PendingCount, "each tick enqueues exactly one action and drains it")
	assert.False(t, stats.HasCurrent, "no action may be left checked out between ticks")
}

func TestSafetyBlockedActionCompletesAsFailed(t *testing.T) {
	safety := DefaultSafety()
	safety.DryRun = false
	safety.MaxClicks = 1
	loop := newTestLoop(t, safety)
	loop.clickCount = 1 // cap already spent

	// Gold/HP/level chosen so emergency_level_up fires: the decided
	// action is a clicking kind and must hit the click-cap gate.
	gold, hp, level := 10, 20, 4
	loop.State.UpdateFromRecognition(domain.RecognitionUpdate{Gold: &gold, HP: &hp, Level: &level})

	loop.runTick(context.Background())

	assert.Equal(t, 1, loop.Summary().SafetyBlocks)
	history := loop.Queue.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusFailed, history[0].Status)
	assert.Contains(t, history[0].Error, "max_clicks")
}

func TestLiveExecutionRecordsQueueCompletion(t *testing.T) {
	safety := DefaultSafety()
	safety.DryRun = false
	loop := newTestLoop(t, safety)

	gold, hp, level := 10, 20, 4
	loop.State.UpdateFromRecognition(domain.RecognitionUpdate{Gold: &gold, HP: &hp, Level: &level})

	loop.runTick(context.Background())

	assert.Equal(t, 1, loop.Summary().Executed)
	assert.Equal(t, 1, loop.clickCount)
	stats := loop.Queue.Stats()
	assert.Equal(t, 1, stats.CompletedCount)
}

func TestSummaryReflectsRunningTotals(t *testing.T) {
	safety := DefaultSafety()
	safety.SessionTimeout = 30 * time.Millisecond
	safety.DecisionInterval = 5 * time.Millisecond
	loop := newTestLoop(t, safety)
	loop.Run(context.Background())
	summary := loop.Summary()
	assert.Greater(t, summary.Decisions, 0)
	assert.Greater(t, summary.Duration, time.Duration(0))
}

// Package session implements the session loop: the cooperative,
// single-goroutine tick driver that ties capture, recognition,
// decision, validation, and execution together under runtime safety
// gates.
package session

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kestrelsoft/boardpilot/internal/decision"
	"github.com/kestrelsoft/boardpilot/internal/domain"
	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
	"github.com/kestrelsoft/boardpilot/internal/executor"
	"github.com/kestrelsoft/boardpilot/internal/geometry"
	"github.com/kestrelsoft/boardpilot/internal/platform"
	"github.com/kestrelsoft/boardpilot/internal/queue"
	"github.com/kestrelsoft/boardpilot/internal/recognition"
	"github.com/kestrelsoft/boardpilot/internal/utils"
)

// TelemetryPublisher is the narrow surface SessionLoop needs from a
// telemetry.Hub, so tests can substitute a recording fake.
type TelemetryPublisher interface {
	Publish(obs domain.TickObservation)
}

// TickAppender is the narrow surface SessionLoop needs from a
// storage.TickStore.
type TickAppender interface {
	Append(ctx context.Context, obs domain.TickObservation) error
}

// Safety holds the runtime execution gates. A zero Safety value (DryRun
// left false, limits left 0) would permit unlimited live input, so
// build one from DefaultSafety instead of a bare literal.
type Safety struct {
	DryRun           bool
	MaxActionsPerMin int
	MaxClicks        int
	SessionTimeout   time.Duration
	DecisionInterval time.Duration
}

// DefaultSafety returns the stock gate values: dry-run on, 30
// actions/min, 300 total clicks, a 300s session cap, and a 2 second
// tick interval.
func DefaultSafety() Safety {
	return Safety{
		DryRun:           true,
		MaxActionsPerMin: 30,
		MaxClicks:        300,
		SessionTimeout:   300 * time.Second,
		DecisionInterval: 2 * time.Second,
	}
}

// countsAsClick reports whether kind counts against the rate limit and
// click cap; Wait and None never touch the game and are exempt.
func countsAsClick(kind domain.ActionKind) bool {
	return kind != domain.ActionWait && kind != domain.ActionNone
}

// Loop is the session tick driver.
type Loop struct {
	Adapter     platform.Adapter
	Executor    *executor.Executor
	Recognition *recognition.Engine
	Decision    *decision.Engine
	Cost        recognition.CostLookup
	Catalog     *geometry.RegionCatalog
	Queue       *queue.ActionQueue
	Telemetry   TelemetryPublisher // optional
	Store       TickAppender       // optional
	Safety      Safety
	Profile     decision.PriorityProfile

	State *domain.GameState

	mu               sync.Mutex
	tick             int
	clickCount       int
	actionTimes      []time.Time
	startedAt        time.Time
	summary          domain.SessionSummary
}

// New builds a Loop ready to Run, starting from a fresh GameState and
// the balanced priority profile.
func New(adapter platform.Adapter, exec *executor.Executor, rec *recognition.Engine, dec *decision.Engine, cost recognition.CostLookup, catalog *geometry.RegionCatalog, safety Safety) *Loop {
	return &Loop{
		Adapter:     adapter,
		Executor:    exec,
		Recognition: rec,
		Decision:    dec,
		Cost:        cost,
		Catalog:     catalog,
		Queue:       queue.New(0),
		Safety:      safety,
		Profile:     decision.ProfileBalanced,
		State:       domain.NewGameState(),
	}
}

// Run drives ticks at Safety.DecisionInterval until ctx is cancelled or
// the session timeout elapses, returning the final SessionSummary.
func (l *Loop) Run(ctx context.Context) domain.SessionSummary {
	if l.Queue == nil {
		l.Queue = queue.New(0)
	}
	l.startedAt = time.Now()
	for {
		if time.Since(l.startedAt) >= l.Safety.SessionTimeout {
			log.Info().Msg("session timeout reached, stopping")
			return l.finalize()
		}

		select {
		case <-ctx.Done():
			return l.finalize()
		default:
		}

		l.runTick(ctx)

		select {
		case <-ctx.Done():
			return l.finalize()
		case <-time.After(l.Safety.DecisionInterval):
		}
	}
}

func (l *Loop) finalize() domain.SessionSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary.Duration = time.Since(l.startedAt)
	return l.summary
}

// runTick performs one capture→recognize→decide→validate→execute cycle.
// Any single-tick failure is logged and counted; it never aborts the
// loop (the loop only stops on ctx cancellation or session timeout).
func (l *Loop) runTick(ctx context.Context) {
	l.mu.Lock()
	l.tick++
	tickNum := l.tick
	l.mu.Unlock()

	shot, err := l.Adapter.Screenshot(ctx)
	if err != nil {
		log.Warn().Err(err).Int("tick", tickNum).Msg("screenshot capture failed, skipping tick")
		l.incrementErrors()
		return
	}

	size := imageSize(shot)
	if err := l.Executor.Resize(size); err != nil {
		log.Warn().Err(err).Int("tick", tickNum).Msg("failed to resize executor transform")
	}

	l.recognizeInto(shot, tickNum)

	// A Loop built by struct literal rather than New leaves Profile at
	// its zero value; fall back to balanced rather than handing the
	// decision engine an unrecognized profile string.
	profile := utils.DefaultValue(l.Profile, decision.ProfileBalanced)
	result := l.Decision.Decide(ctx, shot, l.State, profile, false)

	obs := l.buildObservation(tickNum, size, result)

	l.mu.Lock()
	l.summary.Decisions++
	l.mu.Unlock()

	l.Queue.Enqueue(result.Action)
	queued := l.Queue.Dequeue()
	if queued == nil {
		l.publish(ctx, obs)
		return
	}

	if countsAsClick(queued.Action.Kind) {
		if blocked, reason := l.checkSafetyGates(); blocked {
			obs.SafetyBlock = reason
			l.mu.Lock()
			l.summary.SafetyBlocks++
			l.mu.Unlock()
			log.Warn().Str("gate", reason).Int("tick", tickNum).Msg("action blocked by safety gate")
			l.Queue.CompleteCurrent(false, "safety block: "+reason)
			l.publish(ctx, obs)
			return
		}
	}

	if l.Safety.DryRun {
		log.Info().Int("tick", tickNum).Str("action", string(queued.Action.Kind)).
			Str("source", string(result.Source)).Msg("dry run: action would execute")
		l.Queue.CompleteCurrent(true, "")
		l.publish(ctx, obs)
		return
	}

	execResult := l.Executor.Execute(ctx, queued.Action)
	l.recordExecution(execResult, queued.Action.Kind)

	if execResult.Success {
		l.Queue.CompleteCurrent(true, "")
		l.mu.Lock()
		l.summary.Executed++
		l.mu.Unlock()
	} else {
		errMsg := ""
		if execResult.Error != nil {
			errMsg = execResult.Error.Error()
			log.Warn().Err(execResult.Error).Int("tick", tickNum).Msg("action execution failed")
			l.incrementErrors()
		}
		l.Queue.CompleteCurrent(false, errMsg)
	}

	l.publish(ctx, obs)
}

func (l *Loop) recognizeInto(shot image.Image, tickNum int) {
	shop, err := l.Recognition.RecognizeShop(shot)
	if err != nil {
		l.logRecognitionFailure(err, tickNum, "shop")
	}
	bench, err := l.Recognition.RecognizeBench(shot)
	if err != nil {
		l.logRecognitionFailure(err, tickNum, "bench")
	}
	board, err := l.Recognition.RecognizeBoard(shot)
	if err != nil {
		l.logRecognitionFailure(err, tickNum, "board")
	}
	synergies, err := l.Recognition.RecognizeSynergies(shot)
	if err != nil {
		l.logRecognitionFailure(err, tickNum, "synergies")
	}
	items, err := l.Recognition.RecognizeItems(shot)
	if err != nil {
		l.logRecognitionFailure(err, tickNum, "items")
	}
	info, err := l.Recognition.RecognizePlayerInfo(shot)
	if err != nil {
		l.logRecognitionFailure(err, tickNum, "player_info")
	}

	update := recognition.BuildUpdate(shop, board, bench, synergies, items, info, l.Cost)
	l.State.UpdateFromRecognition(update)
}

func (l *Loop) logRecognitionFailure(err error, tickNum int, facet string) {
	log.Warn().Err(bperr.NewRecognitionError(facet, "recognition failed for tick facet", err)).
		Int("tick", tickNum).Msg("recognition facet failed, state left stale for this facet")
	l.mu.Lock()
	l.summary.RecognitionFailures++
	l.mu.Unlock()
}

func (l *Loop) buildObservation(tickNum int, size geometry.Size, result domain.DecisionResult) domain.TickObservation {
	snap := l.State.Snapshot()
	var gold, lvl *int
	g, lv := snap.Gold, snap.Level
	gold, lvl = &g, &lv

	shopCount := 0
	for _, s := range snap.ShopSlots {
		if s.HeroName != "" && !s.Sold {
			shopCount++
		}
	}

	obs := domain.TickObservation{
		Tick:            tickNum,
		Timestamp:       time.Now(),
		WindowWidth:     size.W,
		WindowHeight:    size.H,
		ShopCount:       shopCount,
		RecognizedGold:  gold,
		RecognizedLevel: lvl,
		ActionKind:      result.Action.Kind,
		DecisionSource:  result.Source,
		Confidence:      result.Confidence,
	}
	if t := l.Executor.Transform(); t != nil {
		obs.ScaleX = t.ScaleX
		obs.ScaleY = t.ScaleY
		obs.OffsetX = t.ContentRect.X
		obs.OffsetY = t.ContentRect.Y
	}
	return obs
}

// checkSafetyGates reports whether the next clicking action must be
// blocked, and why. It evaluates the click cap first, then the sliding
// 60-second rate-limit window; both are cheaper and more decisive than
// re-deriving the session timeout here (the Run loop already owns that
// check).
func (l *Loop) checkSafetyGates() (blocked bool, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Safety.MaxClicks > 0 && l.clickCount >= l.Safety.MaxClicks {
		return true, "max_clicks"
	}

	cutoff := time.Now().Add(-time.Minute)
	kept := l.actionTimes[:0]
	for _, t := range l.actionTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.actionTimes = kept

	if l.Safety.MaxActionsPerMin > 0 && len(l.actionTimes) >= l.Safety.MaxActionsPerMin {
		return true, "rate_limit"
	}
	return false, ""
}

func (l *Loop) recordExecution(result executor.Result, kind domain.ActionKind) {
	if !countsAsClick(kind) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clickCount++
	l.actionTimes = append(l.actionTimes, time.Now())
}

func (l *Loop) incrementErrors() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary.Errors++
}

func (l *Loop) publish(ctx context.Context, obs domain.TickObservation) {
	if l.Telemetry != nil {
		l.Telemetry.Publish(obs)
	}
	if l.Store != nil {
		if err := l.Store.Append(ctx, obs); err != nil {
			log.Warn().Err(err).Int("tick", obs.Tick).Msg("failed to append tick observation to store")
		}
	}
}

// Summary returns a snapshot of the running totals without waiting for
// Run to return.
func (l *Loop) Summary() domain.SessionSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.summary
	if !l.startedAt.IsZero() {
		s.Duration = time.Since(l.startedAt)
	}
	return s
}

func imageSize(img image.Image) geometry.Size {
	b := img.Bounds()
	return geometry.Size{W: b.Dx(), H: b.Dy()}
}

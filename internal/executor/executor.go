// Package executor translates a validated Action into platform.Adapter
// calls at the current window resolution, with humanized delays and
// click jitter: compute a base point or delay, then perturb it by a
// bounded random amount before dispatch.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kestrelsoft/boardpilot/internal/domain"
	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
	"github.com/kestrelsoft/boardpilot/internal/geometry"
	"github.com/kestrelsoft/boardpilot/internal/platform"
)

// Base-resolution anchors for UI elements RegionCatalog doesn't cover
// (single buttons, not indexed slots/cells).
var (
	RefreshButtonBase = geometry.Point{X: 1050, Y: 930}
	LevelUpButtonBase = geometry.Point{X: 200, Y: 930}
	LockButtonBase    = geometry.Point{X: 1180, Y: 930}
)

// Humanization controls the randomized delay/jitter applied to executed
// inputs so mechanical inputs don't read as a perfectly periodic script.
// RNG is injected by the session so tests can run with a seeded,
// deterministic source.
type Humanization struct {
	Enabled    bool
	RNG        *rand.Rand
	MaxDelay   time.Duration // uniform random delay in [0, MaxDelay] before each action
	JitterX    int           // uniform random offset in [-JitterX, JitterX] px
	JitterY    int           // uniform random offset in [-JitterY, JitterY] px
}

// DefaultHumanization returns the default jitter bounds (±10px
// horizontal, ±5px vertical) with humanization enabled.
func DefaultHumanization() Humanization {
	return Humanization{
		Enabled:  true,
		RNG:      rand.New(rand.NewSource(1)),
		MaxDelay: 150 * time.Millisecond,
		JitterX:  10,
		JitterY:  5,
	}
}

func (h Humanization) jitter(p geometry.Point) geometry.Point {
	if !h.Enabled || h.RNG == nil {
		return p
	}
	dx := 0
	dy := 0
	if h.JitterX > 0 {
		dx = h.RNG.Intn(2*h.JitterX+1) - h.JitterX
	}
	if h.JitterY > 0 {
		dy = h.RNG.Intn(2*h.JitterY+1) - h.JitterY
	}
	return geometry.Point{X: p.X + dx, Y: p.Y + dy}
}

func (h Humanization) delay(ctx context.Context) error {
	if !h.Enabled || h.MaxDelay <= 0 || h.RNG == nil {
		return nil
	}
	d := time.Duration(h.RNG.Int63n(int64(h.MaxDelay) + 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Result is what one Execute call returns: success/failure, the action
// that was attempted, an error when it failed, and wall-clock latency.
type Result struct {
	Success   bool
	Action    domain.Action
	Error     error
	LatencyMS int64
}

// Counters is the executor's lifetime success/failure tally.
type Counters struct {
	Succeeded int
	Failed    int
}

// Executor drives a platform.Adapter with humanized input, rebuilding
// its coordinate transform whenever the window resolution changes.
type Executor struct {
	Adapter      platform.Adapter
	Catalog      *geometry.RegionCatalog
	Humanization Humanization

	mu        sync.Mutex
	current   geometry.Size
	transform *geometry.CoordinateTransform
	counters  Counters
}

// New builds an Executor at the given starting window resolution.
func New(adapter platform.Adapter, catalog *geometry.RegionCatalog, current geometry.Size, humanization Humanization) (*Executor, error) {
	t, err := geometry.NewCoordinateTransform(geometry.BaseResolution, current, nil)
	if err != nil {
		return nil, bperr.NewConfigError("executor.Executor", err.Error())
	}
	return &Executor{Adapter: adapter, Catalog: catalog, Humanization: humanization, current: current, transform: t}, nil
}

// Resize recomputes every anchor for a new window size. Called by the
// session loop whenever the adapter reports a changed resolution.
func (ex *Executor) Resize(current geometry.Size) error {
	t, err := geometry.NewCoordinateTransform(geometry.BaseResolution, current, nil)
	if err != nil {
		return bperr.NewConfigError("executor.Executor", err.Error())
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.current = current
	ex.transform = t
	return nil
}

// Transform returns the active base-to-window coordinate transform.
func (ex *Executor) Transform() *geometry.CoordinateTransform {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.transform
}

func (ex *Executor) mapPoint(p geometry.Point) geometry.Point {
	ex.mu.Lock()
	t := ex.transform
	ex.mu.Unlock()
	return t.MapPoint(p)
}

// Execute dispatches action to the platform adapter by kind. Wait
// sleeps for its metadata duration and None is a no-op; every other
// kind is humanized. Unknown kinds fail with UnknownActionError.
func (ex *Executor) Execute(ctx context.Context, action domain.Action) Result {
	start := time.Now()
	err := ex.dispatch(ctx, action)
	latency := time.Since(start).Milliseconds()

	ex.mu.Lock()
	if err == nil {
		ex.counters.Succeeded++
	} else {
		ex.counters.Failed++
	}
	ex.mu.Unlock()

	return Result{Success: err == nil, Action: action, Error: err, LatencyMS: latency}
}

func (ex *Executor) dispatch(ctx context.Context, action domain.Action) error {
	switch action.Kind {
	case domain.ActionWait:
		return ex.executeWait(ctx, action)
	case domain.ActionBuyHero:
		return ex.clickShopSlot(ctx, action)
	case domain.ActionSellHero, domain.ActionEquipItem, domain.ActionUnequipItem,
		domain.ActionCombineItem, domain.ActionDeployHero, domain.ActionRecallHero:
		return ex.clickPosition(ctx, action)
	case domain.ActionMoveHero:
		return ex.dragHero(ctx, action)
	case domain.ActionRefreshShop:
		return ex.clickAnchor(ctx, RefreshButtonBase)
	case domain.ActionLevelUp:
		return ex.clickAnchor(ctx, LevelUpButtonBase)
	case domain.ActionLockShop:
		return ex.clickAnchor(ctx, LockButtonBase)
	case domain.ActionNone:
		return nil
	default:
		return &UnknownActionError{Kind: action.Kind}
	}
}

// UnknownActionError is raised when Execute is asked to run an
// ActionKind Executor has no dispatch case for.
type UnknownActionError struct {
	Kind domain.ActionKind
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("executor: unknown action kind %q", e.Kind)
}

func (ex *Executor) executeWait(ctx context.Context, action domain.Action) error {
	d := time.Second
	if v, ok := action.Metadata["duration"].(time.Duration); ok {
		d = v
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (ex *Executor) clickShopSlot(ctx context.Context, action domain.Action) error {
	if action.Position == nil {
		return fmt.Errorf("executor: buy_hero action missing shop slot position")
	}
	region, err := ex.Catalog.ShopSlot(action.Position.Row)
	if err != nil {
		return err
	}
	return ex.clickRegionCenter(ctx, region)
}

func (ex *Executor) clickPosition(ctx context.Context, action domain.Action) error {
	if action.Position == nil {
		return fmt.Errorf("executor: %s action missing position", action.Kind)
	}
	region, err := ex.regionForPosition(*action.Position)
	if err != nil {
		return err
	}
	return ex.clickRegionCenter(ctx, region)
}

// regionForPosition resolves a Position to its UIRegion: Col == -1
// means bench, otherwise board.
func (ex *Executor) regionForPosition(p domain.Position) (geometry.UIRegion, error) {
	if p.Col == -1 {
		return ex.Catalog.BenchSlot(p.Row)
	}
	return ex.Catalog.BoardCell(p.Row, p.Col)
}

func (ex *Executor) clickRegionCenter(ctx context.Context, region geometry.UIRegion) error {
	center := region.Center()
	return ex.clickAnchor(ctx, center)
}

func (ex *Executor) clickAnchor(ctx context.Context, base geometry.Point) error {
	if err := ex.Humanization.delay(ctx); err != nil {
		return err
	}
	mapped := ex.mapPoint(base)
	jittered := ex.Humanization.jitter(mapped)
	return ex.Adapter.Click(ctx, jittered.X, jittered.Y, platform.ButtonLeft, 1, 0)
}

func (ex *Executor) dragHero(ctx context.Context, action domain.Action) error {
	if action.SourcePosition == nil || action.Position == nil {
		return fmt.Errorf("executor: move_hero action missing source or target position")
	}
	fromRegion, err := ex.regionForPosition(*action.SourcePosition)
	if err != nil {
		return err
	}
	toRegion, err := ex.regionForPosition(*action.Position)
	if err != nil {
		return err
	}
	if err := ex.Humanization.delay(ctx); err != nil {
		return err
	}
	from := ex.Humanization.jitter(ex.mapPoint(fromRegion.Center()))
	to := ex.Humanization.jitter(ex.mapPoint(toRegion.Center()))
	return ex.Adapter.Drag(ctx, from.X, from.Y, to.X, to.Y, 300*time.Millisecond)
}

// Counters returns the executor's lifetime success/failure tally.
func (ex *Executor) Counters() Counters {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.counters
}

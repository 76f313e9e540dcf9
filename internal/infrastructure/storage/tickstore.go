// Package storage implements TickStore: a write-only append sink of
// per-tick observations to Postgres via bun. There is no Load/Restore
// path at all — session state never persists across runs; TickStore
// exists purely to let an external analysis dashboard query tick
// history after the fact.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

// TickEventModel is the bun row shape for one appended TickObservation.
type TickEventModel struct {
	bun.BaseModel `bun:"table:tick_events,alias:t"`

	ID              uuid.UUID `bun:"id,pk"`
	SessionID       uuid.UUID `bun:"session_id"`
	Tick            int       `bun:"tick"`
	Timestamp       time.Time `bun:"timestamp"`
	WindowWidth     int       `bun:"window_width"`
	WindowHeight    int       `bun:"window_height"`
	ScaleX          float64   `bun:"scale_x"`
	ScaleY          float64   `bun:"scale_y"`
	OffsetX         int       `bun:"offset_x"`
	OffsetY         int       `bun:"offset_y"`
	RecognizedGold  *int      `bun:"recognized_gold"`
	RecognizedLevel *int      `bun:"recognized_level"`
	ShopCount       int       `bun:"shop_count"`
	ActionKind      string    `bun:"action_kind"`
	DecisionSource  string    `bun:"decision_source"`
	Confidence      float64   `bun:"confidence"`
	SafetyBlock     string    `bun:"safety_block"`
}

func newTickEventModel(sessionID uuid.UUID, obs domain.TickObservation) *TickEventModel {
	return &TickEventModel{
		ID:              uuid.New(),
		SessionID:       sessionID,
		Tick:            obs.Tick,
		Timestamp:       obs.Timestamp,
		WindowWidth:     obs.WindowWidth,
		WindowHeight:    obs.WindowHeight,
		ScaleX:          obs.ScaleX,
		ScaleY:          obs.ScaleY,
		OffsetX:         obs.OffsetX,
		OffsetY:         obs.OffsetY,
		RecognizedGold:  obs.RecognizedGold,
		RecognizedLevel: obs.RecognizedLevel,
		ShopCount:       obs.ShopCount,
		ActionKind:      string(obs.ActionKind),
		DecisionSource:  string(obs.DecisionSource),
		Confidence:      obs.Confidence,
		SafetyBlock:     obs.SafetyBlock,
	}
}

// TickStore is a bun-backed Postgres sink for tick observations.
// Constructing a SessionLoop without one (nil) is valid and is the
// default; wiring a TickStore is opt-in.
type TickStore struct {
	db        *bun.DB
	sessionID uuid.UUID
}

// NewTickStore opens a bun connection over dsn for a single session run,
// identified by sessionID (the session's own uuid, so every appended row
// can be grouped back into one run by an offline query).
func NewTickStore(dsn string, sessionID uuid.UUID) *TickStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &TickStore{db: db, sessionID: sessionID}
}

// InitSchema creates the tick_events table if it doesn't already exist.
func (s *TickStore) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*TickEventModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Append writes one tick observation. It is the only write path this
// store exposes; there is deliberately no corresponding Load/Restore —
// TickStore is for post-hoc analysis, not session-state recovery.
func (s *TickStore) Append(ctx context.Context, obs domain.TickObservation) error {
	model := newTickEventModel(s.sessionID, obs)
	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	return err
}

// Close releases the underlying database connection.
func (s *TickStore) Close() error {
	return s.db.Close()
}

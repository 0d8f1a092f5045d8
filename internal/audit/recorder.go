// Package audit writes the append-only trade trail. Recording is strictly
// best-effort: the analytics store being down must never block or fail a
// trade, so errors are logged and dropped.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// Recorder appends trade events to the audit store.
type Recorder struct {
	store storage.TradeEventStore
	log   zerolog.Logger
}

// NewRecorder creates a Recorder. A nil store disables recording.
func NewRecorder(store storage.TradeEventStore, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   logger.With().Str("component", "audit").Logger(),
	}
}

// RecordBuy appends a buy leg.
func (r *Recorder) RecordBuy(ctx context.Context, key domain.PositionKey, outcome string, fill *domain.Fill) {
	e := &domain.TradeEvent{
		EventTime:    time.Now().UTC(),
		UserID:       key.UserID,
		TokenAddress: key.TokenAddress,
		CycleID:      key.CycleID,
		Side:         domain.TradeBuy,
		Outcome:      outcome,
	}
	if fill != nil {
		e.Price = fill.Price
		e.TokenAmount = fill.TokenAmount
		e.SOLAmount = fill.SOLAmount
		e.Signature = fill.Signature
	}
	r.record(ctx, e)
}

// RecordSell appends a sell leg with realized profit.
func (r *Recorder) RecordSell(ctx context.Context, key domain.PositionKey, outcome string, fill *domain.Fill, profitPct *decimal.Decimal) {
	e := &domain.TradeEvent{
		EventTime:    time.Now().UTC(),
		UserID:       key.UserID,
		TokenAddress: key.TokenAddress,
		CycleID:      key.CycleID,
		Side:         domain.TradeSell,
		Outcome:      outcome,
		ProfitPct:    profitPct,
	}
	if fill != nil {
		e.Price = fill.Price
		e.TokenAmount = fill.TokenAmount
		e.SOLAmount = fill.SOLAmount
		e.Signature = fill.Signature
	}
	r.record(ctx, e)
}

func (r *Recorder) record(ctx context.Context, e *domain.TradeEvent) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Insert(ctx, e); err != nil {
		r.log.Warn().Err(err).
			Str("user_id", e.UserID).
			Str("token", e.TokenAddress).
			Str("side", string(e.Side)).
			Msg("drop audit event")
	}
}

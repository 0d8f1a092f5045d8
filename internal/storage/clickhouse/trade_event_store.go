package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
// Events are an append-only audit trail; writes go through async insert so
// the hot path never waits on analytics storage.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// Insert appends one trade event.
func (s *TradeEventStore) Insert(ctx context.Context, e *domain.TradeEvent) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	// NULL profit for buy legs; ClickHouse Nullable(Float64).
	var profit *float64
	if e.ProfitPct != nil {
		v := e.ProfitPct.InexactFloat64()
		profit = &v
	}

	query := `
		INSERT INTO trade_events (
			event_time, user_id, token_address, cycle_id, side, outcome,
			price, token_amount, sol_amount, profit_pct, signature
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	err := s.conn.AsyncInsert(ctx, query, false,
		e.EventTime,
		e.UserID,
		e.TokenAddress,
		uint64(e.CycleID),
		string(e.Side),
		e.Outcome,
		e.Price.InexactFloat64(),
		e.TokenAmount.InexactFloat64(),
		e.SOLAmount.InexactFloat64(),
		profit,
		e.Signature,
	)
	if err != nil {
		return fmt.Errorf("insert trade event: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves events within [start, end], event_time ASC.
// Used by reporting queries, not by the execution path.
func (s *TradeEventStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.TradeEvent, error) {
	query := `
		SELECT event_time, user_id, token_address, cycle_id, side, outcome,
		       price, token_amount, sol_amount, profit_pct, signature
		FROM trade_events
		WHERE event_time >= $1 AND event_time <= $2
		ORDER BY event_time ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trade events: %w", err)
	}
	defer rows.Close()

	var events []*domain.TradeEvent
	for rows.Next() {
		var e domain.TradeEvent
		var cycleID uint64
		var side, outcome string
		var price, tokenAmount, solAmount float64
		var profit *float64

		err := rows.Scan(
			&e.EventTime, &e.UserID, &e.TokenAddress, &cycleID, &side, &outcome,
			&price, &tokenAmount, &solAmount, &profit, &e.Signature,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade event row: %w", err)
		}

		e.CycleID = int64(cycleID)
		e.Side = domain.TradeSide(side)
		e.Outcome = outcome
		e.Price = decimal.NewFromFloat(price)
		e.TokenAmount = decimal.NewFromFloat(tokenAmount)
		e.SOLAmount = decimal.NewFromFloat(solAmount)
		if profit != nil {
			p := decimal.NewFromFloat(*profit)
			e.ProfitPct = &p
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade event rows: %w", err)
	}
	return events, nil
}

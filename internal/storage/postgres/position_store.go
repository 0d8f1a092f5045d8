package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
//
// The single-active-position invariant is enforced by the partial unique
// index idx_positions_single_active, so reservation races are resolved by
// the database regardless of how many processes run concurrently.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Reserve inserts a PENDING record for the pair, allocating the next cycle
// ID in the same statement. Returns ErrDuplicateKey while a non-terminal
// cycle exists.
func (s *PositionStore) Reserve(ctx context.Context, p *domain.PositionRecord) error {
	if p == nil || p.UserID == "" || p.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (user_id, token_address, cycle_id, state)
		SELECT $1, $2, COALESCE(MAX(cycle_id), 0) + 1, $3
		FROM positions
		WHERE user_id = $1 AND token_address = $2
		RETURNING cycle_id, created_at, updated_at
	`

	row := s.pool.QueryRow(ctx, query, p.UserID, p.TokenAddress, string(domain.PositionPending))
	if err := row.Scan(&p.CycleID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("reserve position: %w", err)
	}

	p.State = domain.PositionPending
	return nil
}

// Get retrieves one cycle. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, key domain.PositionKey) (*domain.PositionRecord, error) {
	query := positionSelect + ` WHERE user_id = $1 AND token_address = $2 AND cycle_id = $3`

	row := s.pool.QueryRow(ctx, query, key.UserID, key.TokenAddress, key.CycleID)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// GetActive retrieves the single non-terminal cycle for a pair, if any.
func (s *PositionStore) GetActive(ctx context.Context, userID, tokenAddress string) (*domain.PositionRecord, error) {
	query := positionSelect + `
		WHERE user_id = $1 AND token_address = $2 AND state IN ($3, $4, $5)
	`

	row := s.pool.QueryRow(ctx, query, userID, tokenAddress,
		string(domain.PositionPending),
		string(domain.PositionBought),
		string(domain.PositionSellScheduled),
	)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active position: %w", err)
	}
	return p, nil
}

// MarkBought transitions PENDING → BOUGHT and records the entry fill.
func (s *PositionStore) MarkBought(ctx context.Context, key domain.PositionKey, fill domain.Fill) error {
	query := `
		UPDATE positions
		SET state = $4, purchase_price = $5, token_amount = $6, purchase_amount_sol = $7, updated_at = now()
		WHERE user_id = $1 AND token_address = $2 AND cycle_id = $3 AND state = $8
	`

	tag, err := s.pool.Exec(ctx, query,
		key.UserID, key.TokenAddress, key.CycleID,
		string(domain.PositionBought),
		fill.Price, fill.TokenAmount, fill.SOLAmount,
		string(domain.PositionPending),
	)
	if err != nil {
		return fmt.Errorf("mark position bought: %w", err)
	}
	return s.resolveCAS(ctx, key, tag.RowsAffected())
}

// MarkSellScheduled transitions BOUGHT → SELL_SCHEDULED.
func (s *PositionStore) MarkSellScheduled(ctx context.Context, key domain.PositionKey) error {
	query := `
		UPDATE positions
		SET state = $4, updated_at = now()
		WHERE user_id = $1 AND token_address = $2 AND cycle_id = $3 AND state = $5
	`

	tag, err := s.pool.Exec(ctx, query,
		key.UserID, key.TokenAddress, key.CycleID,
		string(domain.PositionSellScheduled),
		string(domain.PositionBought),
	)
	if err != nil {
		return fmt.Errorf("mark position sell scheduled: %w", err)
	}
	return s.resolveCAS(ctx, key, tag.RowsAffected())
}

// MarkSold transitions SELL_SCHEDULED → SOLD and records the exit leg.
func (s *PositionStore) MarkSold(ctx context.Context, key domain.PositionKey, fill storage.SellFill) error {
	query := `
		UPDATE positions
		SET state = $4, sell_price = $5, profit_percentage = $6, updated_at = now()
		WHERE user_id = $1 AND token_address = $2 AND cycle_id = $3 AND state = $7
	`

	tag, err := s.pool.Exec(ctx, query,
		key.UserID, key.TokenAddress, key.CycleID,
		string(domain.PositionSold),
		fill.SellPrice, fill.ProfitPct,
		string(domain.PositionSellScheduled),
	)
	if err != nil {
		return fmt.Errorf("mark position sold: %w", err)
	}
	return s.resolveCAS(ctx, key, tag.RowsAffected())
}

// MarkFailed transitions the expected non-terminal state to FAILED.
func (s *PositionStore) MarkFailed(ctx context.Context, key domain.PositionKey, from domain.PositionState) error {
	if !from.CanTransitionTo(domain.PositionFailed) {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE positions
		SET state = $4, updated_at = now()
		WHERE user_id = $1 AND token_address = $2 AND cycle_id = $3 AND state = $5
	`

	tag, err := s.pool.Exec(ctx, query,
		key.UserID, key.TokenAddress, key.CycleID,
		string(domain.PositionFailed),
		string(from),
	)
	if err != nil {
		return fmt.Errorf("mark position failed: %w", err)
	}
	return s.resolveCAS(ctx, key, tag.RowsAffected())
}

// resolveCAS maps a zero-row conditional update to ErrNotFound or
// ErrConflict depending on whether the row exists at all.
func (s *PositionStore) resolveCAS(ctx context.Context, key domain.PositionKey, affected int64) error {
	if affected == 1 {
		return nil
	}
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	return storage.ErrConflict
}

// ListByUser retrieves all cycles for a user, newest first.
func (s *PositionStore) ListByUser(ctx context.Context, userID string) ([]*domain.PositionRecord, error) {
	query := positionSelect + `
		WHERE user_id = $1
		ORDER BY created_at DESC, token_address ASC, cycle_id DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions by user: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListStale retrieves positions in `state` last updated before cutoff.
func (s *PositionStore) ListStale(ctx context.Context, state domain.PositionState, cutoff time.Time) ([]*domain.PositionRecord, error) {
	query := positionSelect + `
		WHERE state = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`

	rows, err := s.pool.Query(ctx, query, string(state), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

const positionSelect = `
	SELECT user_id, token_address, cycle_id, state,
	       purchase_price, purchase_amount_sol, token_amount,
	       sell_price, profit_percentage, created_at, updated_at
	FROM positions
`

// scanPosition scans a single row into a PositionRecord.
func scanPosition(row pgx.Row) (*domain.PositionRecord, error) {
	var p domain.PositionRecord
	var state string

	err := row.Scan(
		&p.UserID,
		&p.TokenAddress,
		&p.CycleID,
		&state,
		&p.PurchasePrice,
		&p.PurchaseAmountSOL,
		&p.TokenAmount,
		&p.SellPrice,
		&p.ProfitPercentage,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.State = domain.PositionState(state)
	return &p, nil
}

// scanPositions scans multiple rows into a slice of PositionRecord.
func scanPositions(rows pgx.Rows) ([]*domain.PositionRecord, error) {
	var positions []*domain.PositionRecord

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}

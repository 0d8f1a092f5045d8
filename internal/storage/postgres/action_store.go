package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// ActionStore implements storage.ActionStore using PostgreSQL.
type ActionStore struct {
	pool *Pool
}

// NewActionStore creates a new ActionStore.
func NewActionStore(pool *Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ActionStore = (*ActionStore)(nil)

// Insert persists a new action. Returns ErrDuplicateKey if the ID exists.
func (s *ActionStore) Insert(ctx context.Context, a *domain.ScheduledAction) error {
	if a == nil || a.ActionID == "" {
		return storage.ErrInvalidInput
	}

	status := a.Status
	if status == "" {
		status = domain.ActionArmed
	}

	query := `
		INSERT INTO scheduled_actions (
			action_id, kind, user_id, token_address, cycle_id,
			not_before, min_profit_pct, attempts, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		a.ActionID,
		string(a.Kind),
		a.Target.UserID,
		a.Target.TokenAddress,
		a.Target.CycleID,
		a.NotBefore,
		a.MinProfitPct,
		a.Attempts,
		string(status),
		a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert scheduled action: %w", err)
	}
	return nil
}

// Get retrieves an action by ID. Returns ErrNotFound if not exists.
func (s *ActionStore) Get(ctx context.Context, actionID string) (*domain.ScheduledAction, error) {
	query := actionSelect + ` WHERE action_id = $1`

	row := s.pool.QueryRow(ctx, query, actionID)
	a, err := scanAction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get scheduled action: %w", err)
	}
	return a, nil
}

// ListDue retrieves ARMED actions with not_before <= now, not_before ASC.
// Past-due actions left over from a previous process are included, which is
// what makes the firing loop restart-safe.
func (s *ActionStore) ListDue(ctx context.Context, now time.Time) ([]*domain.ScheduledAction, error) {
	query := actionSelect + `
		WHERE status = $1 AND not_before <= $2
		ORDER BY not_before ASC, action_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(domain.ActionArmed), now)
	if err != nil {
		return nil, fmt.Errorf("list due actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// MarkFired performs the CAS ARMED → FIRED and increments attempts.
func (s *ActionStore) MarkFired(ctx context.Context, actionID string, firedAt time.Time) error {
	query := `
		UPDATE scheduled_actions
		SET status = $2, fired_at = $3, attempts = attempts + 1
		WHERE action_id = $1 AND status = $4
	`

	tag, err := s.pool.Exec(ctx, query, actionID, string(domain.ActionFired), firedAt, string(domain.ActionArmed))
	if err != nil {
		return fmt.Errorf("mark action fired: %w", err)
	}
	return s.resolveCAS(ctx, actionID, tag.RowsAffected())
}

// MarkResolved performs the CAS FIRED → RESOLVED.
func (s *ActionStore) MarkResolved(ctx context.Context, actionID string) error {
	query := `
		UPDATE scheduled_actions
		SET status = $2
		WHERE action_id = $1 AND status = $3
	`

	tag, err := s.pool.Exec(ctx, query, actionID, string(domain.ActionResolved), string(domain.ActionFired))
	if err != nil {
		return fmt.Errorf("mark action resolved: %w", err)
	}
	return s.resolveCAS(ctx, actionID, tag.RowsAffected())
}

// Cancel performs the CAS ARMED → CANCELLED; refused once fired.
func (s *ActionStore) Cancel(ctx context.Context, actionID string) error {
	query := `
		UPDATE scheduled_actions
		SET status = $2
		WHERE action_id = $1 AND status = $3
	`

	tag, err := s.pool.Exec(ctx, query, actionID, string(domain.ActionCancelled), string(domain.ActionArmed))
	if err != nil {
		return fmt.Errorf("cancel action: %w", err)
	}
	return s.resolveCAS(ctx, actionID, tag.RowsAffected())
}

// ListFiredBefore retrieves FIRED actions older than cutoff, fired_at ASC.
func (s *ActionStore) ListFiredBefore(ctx context.Context, cutoff time.Time) ([]*domain.ScheduledAction, error) {
	query := actionSelect + `
		WHERE status = $1 AND fired_at < $2
		ORDER BY fired_at ASC, action_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(domain.ActionFired), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list fired actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// ListArmedByTarget retrieves ARMED actions aimed at target, not_before ASC.
func (s *ActionStore) ListArmedByTarget(ctx context.Context, target domain.PositionKey) ([]*domain.ScheduledAction, error) {
	query := actionSelect + `
		WHERE status = $1 AND user_id = $2 AND token_address = $3 AND cycle_id = $4
		ORDER BY not_before ASC, action_id ASC
	`

	rows, err := s.pool.Query(ctx, query,
		string(domain.ActionArmed), target.UserID, target.TokenAddress, target.CycleID)
	if err != nil {
		return nil, fmt.Errorf("list armed actions by target: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// resolveCAS maps a zero-row conditional update to ErrNotFound or ErrConflict.
func (s *ActionStore) resolveCAS(ctx context.Context, actionID string, affected int64) error {
	if affected == 1 {
		return nil
	}
	if _, err := s.Get(ctx, actionID); err != nil {
		return err
	}
	return storage.ErrConflict
}

const actionSelect = `
	SELECT action_id, kind, user_id, token_address, cycle_id,
	       not_before, min_profit_pct, attempts, status, created_at, fired_at
	FROM scheduled_actions
`

// scanAction scans a single row into a ScheduledAction.
func scanAction(row pgx.Row) (*domain.ScheduledAction, error) {
	var a domain.ScheduledAction
	var kind, status string

	err := row.Scan(
		&a.ActionID,
		&kind,
		&a.Target.UserID,
		&a.Target.TokenAddress,
		&a.Target.CycleID,
		&a.NotBefore,
		&a.MinProfitPct,
		&a.Attempts,
		&status,
		&a.CreatedAt,
		&a.FiredAt,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = domain.ActionKind(kind)
	a.Status = domain.ActionStatus(status)
	return &a, nil
}

// scanActions scans multiple rows into a slice of ScheduledAction.
func scanActions(rows pgx.Rows) ([]*domain.ScheduledAction, error) {
	var actions []*domain.ScheduledAction

	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}

	return actions, nil
}

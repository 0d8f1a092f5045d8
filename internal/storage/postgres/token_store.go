package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts the token in TRACKING state if the address is unseen.
// An existing row is left untouched. Returns true when a row was created.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.TokenRecord) (bool, error) {
	if t == nil || t.Address == "" {
		return false, storage.ErrInvalidInput
	}

	state := t.LifecycleState
	if state == "" {
		state = domain.LifecycleTracking
	}

	query := `
		INSERT INTO tokens (
			address, name, symbol, platform, migration_percentage, lifecycle_state, discovered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		t.Address,
		t.Name,
		t.Symbol,
		string(t.Platform),
		t.MigrationPercentage,
		string(state),
		t.DiscoveredAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (*domain.TokenRecord, error) {
	query := tokenSelect + ` WHERE address = $1`

	row := s.pool.QueryRow(ctx, query, address)
	t, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return t, nil
}

// ListByState retrieves all tokens in the given state, discovery order ASC.
func (s *TokenStore) ListByState(ctx context.Context, state domain.LifecycleState) ([]*domain.TokenRecord, error) {
	query := tokenSelect + `
		WHERE lifecycle_state = $1
		ORDER BY discovered_at ASC, address ASC
	`

	rows, err := s.pool.Query(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("list tokens by state: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// UpdateMigration records a fresh percentage for a token still in TRACKING
// state. An advanced token is left unchanged without error.
func (s *TokenStore) UpdateMigration(ctx context.Context, address string, pct float64, checkedAt time.Time) error {
	query := `
		UPDATE tokens
		SET migration_percentage = $2, last_checked_at = $3
		WHERE address = $1 AND lifecycle_state = $4
	`

	tag, err := s.pool.Exec(ctx, query, address, pct, checkedAt, string(domain.LifecycleTracking))
	if err != nil {
		return fmt.Errorf("update migration: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Either the token is unknown or it already advanced; only the former
	// is an error.
	if _, err := s.GetByAddress(ctx, address); err != nil {
		return err
	}
	return nil
}

// TransitionState performs the CAS lifecycle transition from → to: the
// update applies only while the stored state still equals `from`.
func (s *TokenStore) TransitionState(ctx context.Context, address string, from, to domain.LifecycleState) error {
	if !from.CanTransitionTo(to) {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE tokens
		SET lifecycle_state = $3
		WHERE address = $1 AND lifecycle_state = $2
	`

	tag, err := s.pool.Exec(ctx, query, address, string(from), string(to))
	if err != nil {
		return fmt.Errorf("transition token state: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetByAddress(ctx, address); err != nil {
		return err
	}
	return storage.ErrConflict
}

const tokenSelect = `
	SELECT address, name, symbol, platform, migration_percentage, lifecycle_state, discovered_at, last_checked_at
	FROM tokens
`

// scanToken scans a single row into a TokenRecord.
func scanToken(row pgx.Row) (*domain.TokenRecord, error) {
	var t domain.TokenRecord
	var platform, state string

	err := row.Scan(
		&t.Address,
		&t.Name,
		&t.Symbol,
		&platform,
		&t.MigrationPercentage,
		&state,
		&t.DiscoveredAt,
		&t.LastCheckedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Platform = domain.Platform(platform)
	t.LifecycleState = domain.LifecycleState(state)
	return &t, nil
}

// scanTokens scans multiple rows into a slice of TokenRecord.
func scanTokens(rows pgx.Rows) ([]*domain.TokenRecord, error) {
	var tokens []*domain.TokenRecord

	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}

	return tokens, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

// Insert adds a new account. Returns ErrDuplicateKey on ID or username collision.
func (s *UserStore) Insert(ctx context.Context, u *domain.UserAccount) error {
	if u == nil || u.UserID == "" || u.Username == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO users (user_id, username, wallet_ref, active, telegram_chat_id, language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		u.UserID,
		u.Username,
		u.WalletRef,
		u.Active,
		u.TelegramChatID,
		u.Language,
		u.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves an account. Returns ErrNotFound if not exists.
func (s *UserStore) GetByID(ctx context.Context, userID string) (*domain.UserAccount, error) {
	query := userSelect + ` WHERE user_id = $1`

	row := s.pool.QueryRow(ctx, query, userID)
	u, err := scanUser(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// ListActive retrieves all active accounts, creation order ASC.
func (s *UserStore) ListActive(ctx context.Context) ([]*domain.UserAccount, error) {
	query := userSelect + `
		WHERE active
		ORDER BY created_at ASC, user_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// ListAll retrieves every account, creation order ASC.
func (s *UserStore) ListAll(ctx context.Context) ([]*domain.UserAccount, error) {
	query := userSelect + ` ORDER BY created_at ASC, user_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// SetActive toggles the active flag.
func (s *UserStore) SetActive(ctx context.Context, userID string, active bool) error {
	query := `UPDATE users SET active = $2 WHERE user_id = $1`

	tag, err := s.pool.Exec(ctx, query, userID, active)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const userSelect = `
	SELECT user_id, username, wallet_ref, active, telegram_chat_id, language, created_at
	FROM users
`

// scanUser scans a single row into a UserAccount.
func scanUser(row pgx.Row) (*domain.UserAccount, error) {
	var u domain.UserAccount

	err := row.Scan(
		&u.UserID,
		&u.Username,
		&u.WalletRef,
		&u.Active,
		&u.TelegramChatID,
		&u.Language,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// scanUsers scans multiple rows into a slice of UserAccount.
func scanUsers(rows pgx.Rows) ([]*domain.UserAccount, error) {
	var users []*domain.UserAccount

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}

	return users, nil
}

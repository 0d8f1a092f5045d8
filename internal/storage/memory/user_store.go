package memory

import (
	"context"
	"sort"
	"sync"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu   sync.Mutex
	data map[string]*domain.UserAccount // keyed by user_id
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{data: make(map[string]*domain.UserAccount)}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

// Insert adds a new account. Returns ErrDuplicateKey on ID or username collision.
func (s *UserStore) Insert(_ context.Context, u *domain.UserAccount) error {
	if u == nil || u.UserID == "" || u.Username == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[u.UserID]; exists {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.data {
		if existing.Username == u.Username {
			return storage.ErrDuplicateKey
		}
	}

	copy := *u
	s.data[u.UserID] = &copy
	return nil
}

// GetByID retrieves an account. Returns ErrNotFound if not exists.
func (s *UserStore) GetByID(_ context.Context, userID string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.data[userID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *u
	return &copy, nil
}

// ListActive retrieves all active accounts, creation order ASC.
func (s *UserStore) ListActive(_ context.Context) ([]*domain.UserAccount, error) {
	return s.list(func(u *domain.UserAccount) bool { return u.Active })
}

// ListAll retrieves every account, creation order ASC.
func (s *UserStore) ListAll(_ context.Context) ([]*domain.UserAccount, error) {
	return s.list(func(*domain.UserAccount) bool { return true })
}

func (s *UserStore) list(keep func(*domain.UserAccount) bool) ([]*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.UserAccount
	for _, u := range s.data {
		if keep(u) {
			copy := *u
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].UserID < result[j].UserID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SetActive toggles the active flag.
func (s *UserStore) SetActive(_ context.Context, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.data[userID]
	if !exists {
		return storage.ErrNotFound
	}

	u.Active = active
	return nil
}

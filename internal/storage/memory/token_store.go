package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
// It mirrors the conditional-update semantics of the Postgres store so the
// poller and scheduler can be unit-tested against it.
type TokenStore struct {
	mu   sync.Mutex
	data map[string]*domain.TokenRecord // keyed by address
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{data: make(map[string]*domain.TokenRecord)}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts the token if the address is unseen; an existing record is
// left untouched. Returns true when a row was created.
func (s *TokenStore) Upsert(_ context.Context, t *domain.TokenRecord) (bool, error) {
	if t == nil || t.Address == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Address]; exists {
		return false, nil
	}

	copy := *t
	if copy.LifecycleState == "" {
		copy.LifecycleState = domain.LifecycleTracking
	}
	s.data[t.Address] = &copy
	return true, nil
}

// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, address string) (*domain.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// ListByState retrieves all tokens in the given state, discovery order ASC.
func (s *TokenStore) ListByState(_ context.Context, state domain.LifecycleState) ([]*domain.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.TokenRecord
	for _, t := range s.data {
		if t.LifecycleState == state {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DiscoveredAt.Equal(result[j].DiscoveredAt) {
			return result[i].Address < result[j].Address
		}
		return result[i].DiscoveredAt.Before(result[j].DiscoveredAt)
	})
	return result, nil
}

// UpdateMigration records a fresh percentage for a token still TRACKING.
func (s *TokenStore) UpdateMigration(_ context.Context, address string, pct float64, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[address]
	if !exists {
		return storage.ErrNotFound
	}
	if t.LifecycleState != domain.LifecycleTracking {
		return nil // stale poll result for an advanced token
	}

	t.MigrationPercentage = pct
	t.LastCheckedAt = checkedAt
	return nil
}

// TransitionState performs the CAS lifecycle transition from → to.
func (s *TokenStore) TransitionState(_ context.Context, address string, from, to domain.LifecycleState) error {
	if !from.CanTransitionTo(to) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[address]
	if !exists {
		return storage.ErrNotFound
	}
	if t.LifecycleState != from {
		return storage.ErrConflict
	}

	t.LifecycleState = to
	return nil
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// ActionStore is an in-memory implementation of storage.ActionStore.
type ActionStore struct {
	mu   sync.Mutex
	data map[string]*domain.ScheduledAction // keyed by action_id
}

// NewActionStore creates a new in-memory action store.
func NewActionStore() *ActionStore {
	return &ActionStore{data: make(map[string]*domain.ScheduledAction)}
}

// Compile-time interface check.
var _ storage.ActionStore = (*ActionStore)(nil)

// Insert persists a new action. Returns ErrDuplicateKey if the ID exists.
func (s *ActionStore) Insert(_ context.Context, a *domain.ScheduledAction) error {
	if a == nil || a.ActionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ActionID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	if copy.Status == "" {
		copy.Status = domain.ActionArmed
	}
	s.data[a.ActionID] = &copy
	return nil
}

// Get retrieves an action by ID. Returns ErrNotFound if not exists.
func (s *ActionStore) Get(_ context.Context, actionID string) (*domain.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[actionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *a
	return &copy, nil
}

// ListDue retrieves ARMED actions with not_before <= now, not_before ASC.
func (s *ActionStore) ListDue(_ context.Context, now time.Time) ([]*domain.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.ScheduledAction
	for _, a := range s.data {
		if a.Status == domain.ActionArmed && !a.NotBefore.After(now) {
			copy := *a
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].NotBefore.Before(result[j].NotBefore)
	})
	return result, nil
}

// MarkFired performs the CAS ARMED → FIRED and increments attempts.
func (s *ActionStore) MarkFired(_ context.Context, actionID string, firedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[actionID]
	if !exists {
		return storage.ErrNotFound
	}
	if a.Status != domain.ActionArmed {
		return storage.ErrConflict
	}

	a.Status = domain.ActionFired
	a.Attempts++
	t := firedAt
	a.FiredAt = &t
	return nil
}

// MarkResolved performs the CAS FIRED → RESOLVED.
func (s *ActionStore) MarkResolved(_ context.Context, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[actionID]
	if !exists {
		return storage.ErrNotFound
	}
	if a.Status != domain.ActionFired {
		return storage.ErrConflict
	}

	a.Status = domain.ActionResolved
	return nil
}

// Cancel performs the CAS ARMED → CANCELLED.
func (s *ActionStore) Cancel(_ context.Context, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[actionID]
	if !exists {
		return storage.ErrNotFound
	}
	if a.Status != domain.ActionArmed {
		return storage.ErrConflict
	}

	a.Status = domain.ActionCancelled
	return nil
}

// ListFiredBefore retrieves FIRED actions older than cutoff, fired_at ASC.
func (s *ActionStore) ListFiredBefore(_ context.Context, cutoff time.Time) ([]*domain.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.ScheduledAction
	for _, a := range s.data {
		if a.Status == domain.ActionFired && a.FiredAt != nil && a.FiredAt.Before(cutoff) {
			copy := *a
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FiredAt.Before(*result[j].FiredAt)
	})
	return result, nil
}

// ListArmedByTarget retrieves ARMED actions aimed at target, not_before ASC.
func (s *ActionStore) ListArmedByTarget(_ context.Context, target domain.PositionKey) ([]*domain.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.ScheduledAction
	for _, a := range s.data {
		if a.Status == domain.ActionArmed && a.Target == target {
			copy := *a
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].NotBefore.Before(result[j].NotBefore)
	})
	return result, nil
}

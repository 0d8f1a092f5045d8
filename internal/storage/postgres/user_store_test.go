package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
	"solana-migration-sniper/internal/storage/postgres"
)

func TestUserStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewUserStore(pool)
	ctx := context.Background()

	u := &domain.UserAccount{
		UserID:         "user-001",
		Username:       "alice",
		WalletRef:      "wallet-ref-1",
		Active:         true,
		TelegramChatID: 123456,
		Language:       "en",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Insert(ctx, u))

	retrieved, err := store.GetByID(ctx, "user-001")
	require.NoError(t, err)
	assert.Equal(t, u.Username, retrieved.Username)
	assert.Equal(t, u.WalletRef, retrieved.WalletRef)
	assert.True(t, retrieved.Active)
	assert.Equal(t, int64(123456), retrieved.TelegramChatID)
	assert.Equal(t, "en", retrieved.Language)

	_, err = store.GetByID(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUserStore_InsertDuplicateUsername(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewUserStore(pool)
	ctx := context.Background()

	u := &domain.UserAccount{UserID: "user-001", Username: "alice", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Insert(ctx, u))

	dup := &domain.UserAccount{UserID: "user-002", Username: "alice", CreatedAt: time.Now().UTC()}
	err := store.Insert(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestUserStore_SetActiveAndListActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewUserStore(pool)
	ctx := context.Background()

	for _, u := range []*domain.UserAccount{
		{UserID: "user-001", Username: "alice", Active: true, CreatedAt: time.Now().UTC()},
		{UserID: "user-002", Username: "bob", Active: true, CreatedAt: time.Now().UTC()},
	} {
		require.NoError(t, store.Insert(ctx, u))
	}

	require.NoError(t, store.SetActive(ctx, "user-002", false))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "user-001", active[0].UserID)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = store.SetActive(ctx, "nonexistent", true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

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

func TestTokenStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTokenStore(pool)
	ctx := context.Background()

	token := &domain.TokenRecord{
		Address:             "So11111111111111111111111111111111111111112",
		Name:                "Test Token",
		Symbol:              "TST",
		Platform:            domain.PlatformPumpFun,
		MigrationPercentage: 42.5,
		DiscoveredAt:        time.Now().UTC().Truncate(time.Millisecond),
	}

	created, err := store.Upsert(ctx, token)
	require.NoError(t, err)
	assert.True(t, created)

	retrieved, err := store.GetByAddress(ctx, token.Address)
	require.NoError(t, err)

	assert.Equal(t, token.Address, retrieved.Address)
	assert.Equal(t, token.Name, retrieved.Name)
	assert.Equal(t, token.Symbol, retrieved.Symbol)
	assert.Equal(t, token.Platform, retrieved.Platform)
	assert.Equal(t, token.MigrationPercentage, retrieved.MigrationPercentage)
	assert.Equal(t, domain.LifecycleTracking, retrieved.LifecycleState)
}

func TestTokenStore_UpsertExistingIsNoOp(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTokenStore(pool)
	ctx := context.Background()

	token := &domain.TokenRecord{
		Address:             "TokenAddr1",
		Platform:            domain.PlatformPumpFun,
		MigrationPercentage: 90,
		DiscoveredAt:        time.Now().UTC(),
	}

	created, err := store.Upsert(ctx, token)
	require.NoError(t, err)
	require.True(t, created)

	// Re-discovery on another platform must not touch the existing row.
	dup := &domain.TokenRecord{
		Address:             "TokenAddr1",
		Platform:            domain.PlatformRaydium,
		MigrationPercentage: 5,
		DiscoveredAt:        time.Now().UTC(),
	}
	created, err = store.Upsert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	retrieved, err := store.GetByAddress(ctx, "TokenAddr1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformPumpFun, retrieved.Platform)
	assert.Equal(t, 90.0, retrieved.MigrationPercentage)
}

func TestTokenStore_GetByAddressNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTokenStore(pool)

	_, err := store.GetByAddress(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenStore_UpdateMigration(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTokenStore(pool)
	ctx := context.Background()

	token := &domain.TokenRecord{
		Address:      "TokenAddr2",
		Platform:     domain.PlatformPumpFun,
		DiscoveredAt: time.Now().UTC(),
	}
	_, err := store.Upsert(ctx, token)
	require.NoError(t, err)

	checkedAt := time.Now().UTC().Truncate(time.Millisecond)
	err = store.UpdateMigration(ctx, "TokenAddr2", 77.3, checkedAt)
	require.NoError(t, err)

	retrieved, err := store.GetByAddress(ctx, "TokenAddr2")
	require.NoError(t, err)
	assert.Equal(t, 77.3, retrieved.MigrationPercentage)
	assert.WithinDuration(t, checkedAt, retrieved.LastCheckedAt, time.Millisecond)

	// Unknown address is an error.
	err = store.UpdateMigration(ctx, "nonexistent", 10, checkedAt)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenStore_UpdateMigrationIgnoredAfterCrossing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTokenStore(pool)
	ctx := context.Background()

	token := &domain.TokenRecord{
		Address:             "TokenAddr3",
		Platform:            domain.PlatformPumpFun,
		MigrationPercentage: 99,
		DiscoveredAt:        time.Now().UTC(),
	}
	_, err := store.Upsert(ctx, token)
	require.NoError(t, err)

	err = store.TransitionState(ctx, "TokenAddr3", domain.LifecycleTracking, domain.LifecycleThresholdCrossed)
	require.NoError(t, err)

	// A stale poll landing after the crossing is a silent no-op.
	err = store.UpdateMigration(ctx, "TokenAddr3", 50, time.Now().UTC())
	require.NoError(t, err)

	retrieved, err := store.GetByAddress(ctx, "TokenAddr3")
	require.NoError(t, err)
	assert.Equal(t, 99.0, retrieved.MigrationPercentage)
	assert.Equal(t, domain.LifecycleThresholdCrossed, retrieved.LifecycleState)
}

func TestTokenStore_TransitionStateCAS(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTokenStore(pool)
	ctx := context.Background()

	token := &domain.TokenRecord{
		Address:      "TokenAddr4",
		Platform:     domain.PlatformPumpFun,
		DiscoveredAt: time.Now().UTC(),
	}
	_, err := store.Upsert(ctx, token)
	require.NoError(t, err)

	// First crossing wins.
	err = store.TransitionState(ctx, "TokenAddr4", domain.LifecycleTracking, domain.LifecycleThresholdCrossed)
	require.NoError(t, err)

	// Second attempt loses the CAS.
	err = store.TransitionState(ctx, "TokenAddr4", domain.LifecycleTracking, domain.LifecycleThresholdCrossed)
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Regression edges are rejected before touching the database.
	err = store.TransitionState(ctx, "TokenAddr4", domain.LifecycleThresholdCrossed, domain.LifecycleTracking)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// Unknown token.
	err = store.TransitionState(ctx, "nonexistent", domain.LifecycleTracking, domain.LifecycleThresholdCrossed)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenStore_ListByState(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTokenStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, addr := range []string{"AddrA", "AddrB", "AddrC"} {
		_, err := store.Upsert(ctx, &domain.TokenRecord{
			Address:      addr,
			Platform:     domain.PlatformPumpFun,
			DiscoveredAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	require.NoError(t, store.TransitionState(ctx, "AddrB", domain.LifecycleTracking, domain.LifecycleThresholdCrossed))

	tracking, err := store.ListByState(ctx, domain.LifecycleTracking)
	require.NoError(t, err)
	require.Len(t, tracking, 2)
	assert.Equal(t, "AddrA", tracking[0].Address)
	assert.Equal(t, "AddrC", tracking[1].Address)

	crossed, err := store.ListByState(ctx, domain.LifecycleThresholdCrossed)
	require.NoError(t, err)
	require.Len(t, crossed, 1)
	assert.Equal(t, "AddrB", crossed[0].Address)
}

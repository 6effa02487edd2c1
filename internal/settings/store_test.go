package settings

import (
	"context"
	"testing"

	"trade-settlement-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) *Store {
	// Use a new, non-shared in-memory database for each test to ensure isolation.
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Setting{}, &models.UserSetting{})
	require.NoError(t, err)

	return NewStore(db, zap.NewNop())
}

func TestGlobalMode_DefaultsToAuto(t *testing.T) {
	store := setupStore(t)

	mode, err := store.GetGlobalMode(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.ModeAuto, mode)
}

func TestGlobalMode_SetAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.SetGlobalMode(ctx, models.ModeForceWin, "admin-1")
	require.NoError(t, err)

	mode, err := store.GetGlobalMode(ctx)
	assert.NoError(t, err)
	assert.Equal(t, models.ModeForceWin, mode)

	// Overwrite, not append.
	err = store.SetGlobalMode(ctx, models.ModeAuto, "admin-2")
	require.NoError(t, err)

	mode, err = store.GetGlobalMode(ctx)
	assert.NoError(t, err)
	assert.Equal(t, models.ModeAuto, mode)
}

func TestGlobalMode_RejectsInvalidMode(t *testing.T) {
	store := setupStore(t)

	err := store.SetGlobalMode(context.Background(), "always_win", "admin-1")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestUserMode_DefaultsToAuto(t *testing.T) {
	store := setupStore(t)

	mode, err := store.GetUserMode(context.Background(), "user-1")
	assert.NoError(t, err)
	assert.Equal(t, models.ModeAuto, mode)
}

func TestUserMode_SetAndReplace(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.SetUserMode(ctx, "user-1", models.ModeForceLoss)
	require.NoError(t, err)

	mode, err := store.GetUserMode(ctx, "user-1")
	assert.NoError(t, err)
	assert.Equal(t, models.ModeForceLoss, mode)

	// Another user is unaffected.
	mode, err = store.GetUserMode(ctx, "user-2")
	assert.NoError(t, err)
	assert.Equal(t, models.ModeAuto, mode)

	// Replacing the override updates the existing row.
	err = store.SetUserMode(ctx, "user-1", models.ModeForceWin)
	require.NoError(t, err)

	mode, err = store.GetUserMode(ctx, "user-1")
	assert.NoError(t, err)
	assert.Equal(t, models.ModeForceWin, mode)
}

func TestUserMode_RejectsInvalidMode(t *testing.T) {
	store := setupStore(t)

	err := store.SetUserMode(context.Background(), "user-1", "rigged")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

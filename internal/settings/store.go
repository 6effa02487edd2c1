package settings

import (
	"context"
	"errors"
	"fmt"

	"trade-settlement-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidMode is returned when a caller supplies an unknown
// settlement mode string.
var ErrInvalidMode = errors.New("invalid settlement mode")

// Store persists the global and per-user settlement modes.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a new settings store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("settings")}
}

// GetGlobalMode returns the global settlement mode, defaulting to auto
// when no row has ever been written.
func (s *Store) GetGlobalMode(ctx context.Context) (string, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ModeAuto, nil
	}
	if err != nil {
		return "", fmt.Errorf("could not read global settlement mode: %w", err)
	}
	if !models.ValidMode(setting.SettlementMode) {
		return models.ModeAuto, nil
	}
	return setting.SettlementMode, nil
}

// SetGlobalMode updates the global settlement mode, recording the actor
// who changed it.
func (s *Store) SetGlobalMode(ctx context.Context, mode, actorID string) error {
	if !models.ValidMode(mode) {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var setting models.Setting
		if err := tx.First(&setting).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			setting = models.Setting{SettlementMode: mode, UpdatedBy: actorID}
			return tx.Create(&setting).Error
		} else if err != nil {
			return err
		}
		return tx.Model(&setting).Updates(map[string]interface{}{
			"settlement_mode": mode,
			"updated_by":      actorID,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("could not update global settlement mode: %w", err)
	}

	s.logger.Info("Global settlement mode updated",
		zap.String("mode", mode),
		zap.String("actor_id", actorID))
	return nil
}

// GetUserMode returns the settlement mode override for a user, or auto
// when the user has none.
func (s *Store) GetUserMode(ctx context.Context, userID string) (string, error) {
	var setting models.UserSetting
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ModeAuto, nil
	}
	if err != nil {
		return "", fmt.Errorf("could not read settlement mode for user %s: %w", userID, err)
	}
	if !models.ValidMode(setting.SettlementMode) {
		return models.ModeAuto, nil
	}
	return setting.SettlementMode, nil
}

// SetUserMode sets or replaces a user's settlement mode override.
func (s *Store) SetUserMode(ctx context.Context, userID, mode string) error {
	if !models.ValidMode(mode) {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var setting models.UserSetting
		if err := tx.Where("user_id = ?", userID).First(&setting).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			setting = models.UserSetting{UserID: userID, SettlementMode: mode}
			return tx.Create(&setting).Error
		} else if err != nil {
			return err
		}
		return tx.Model(&setting).Update("settlement_mode", mode).Error
	})
	if err != nil {
		return fmt.Errorf("could not update settlement mode for user %s: %w", userID, err)
	}

	s.logger.Info("User settlement mode updated",
		zap.String("user_id", userID),
		zap.String("mode", mode))
	return nil
}

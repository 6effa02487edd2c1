package database

import (
	"errors"
	"fmt"

	"trade-settlement-go/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A single connection makes concurrent transactions serialize through
	// sqlite instead of failing with SQLITE_BUSY under write contention.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the schema and seeds the singleton settings row.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Trade{},
		&models.Wallet{},
		&models.Setting{},
		&models.UserSetting{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Seed the global settlement mode if it has never been set.
	var setting models.Setting
	if err := db.First(&setting).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		setting = models.Setting{SettlementMode: models.ModeAuto}
		if err := db.Create(&setting).Error; err != nil {
			return fmt.Errorf("failed to seed settings: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	return nil
}

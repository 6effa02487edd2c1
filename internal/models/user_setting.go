package models

import "gorm.io/gorm"

// UserSetting holds a per-user settlement mode override.
// A missing row means the user follows the global mode.
type UserSetting struct {
	gorm.Model
	UserID         string `gorm:"uniqueIndex;not null"`
	SettlementMode string `gorm:"not null"`
}

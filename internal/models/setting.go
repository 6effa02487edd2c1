package models

import "gorm.io/gorm"

// Settlement modes. A non-auto per-user mode takes precedence over the
// global mode, which takes precedence over price-based resolution.
const (
	ModeAuto      = "auto"
	ModeForceWin  = "force_win"
	ModeForceLoss = "force_loss"
)

// ValidMode reports whether s is a recognized settlement mode.
func ValidMode(s string) bool {
	return s == ModeAuto || s == ModeForceWin || s == ModeForceLoss
}

// Setting holds the global settlement mode.
// There should only ever be one row in this table.
type Setting struct {
	gorm.Model
	SettlementMode string `gorm:"not null"`
	UpdatedBy      string
}

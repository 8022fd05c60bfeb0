package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleEditor     = "editor"
)

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleEditor:
		return true
	}
	return false
}

// Account stores an admin dashboard account. PasswordHash holds the salted
// digest in "salt:digestHex" form and is never logged or returned to clients.
type Account struct {
	ID                  uint64 `gorm:"primarykey"`
	Email               string `gorm:"uniqueIndex;size:256;not null"`
	PasswordHash        string `gorm:"size:256;not null"`
	Role                string `gorm:"size:32;not null;default:editor"`
	Disabled            bool   `gorm:"default:false;not null"`
	EmailVerified       bool   `gorm:"default:false;not null"`
	FailedLoginCount    int    `gorm:"default:0;not null"`
	LockedUntil         *time.Time
	ResetToken          string `gorm:"size:64;index"`
	ResetTokenExpiresAt *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           gorm.DeletedAt `gorm:"index"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == 0 {
		a.ID = GenerateID()
	}
	return nil
}

// IsLocked reports whether the account-level lock is still in effect.
// A lock expiring exactly now counts as expired.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

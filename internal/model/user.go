// Package model defines database models
package model

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Role string

const (
	RoleSponsor Role = "sponsor"
	RoleChild   Role = "child"
	RoleNGO     Role = "ngo"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSponsor, RoleChild, RoleNGO, RoleAdmin:
		return true
	}

	return false
}

type Status string

const (
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusSuspended   Status = "suspended"
	StatusDeactivated Status = "deactivated"
)

type User struct {
	ID           string `gorm:"primaryKey;size:21"`
	Email        string `gorm:"uniqueIndex;not null"` // Always stored lowercase
	PasswordHash string `gorm:"not null"`
	Role         Role   `gorm:"type:varchar(16);not null;<-:create"` // Immutable after creation
	Status       Status `gorm:"type:varchar(16);not null;default:pending"`

	// One-time tokens are stored as sha256 digests, the plaintext only
	// ever leaves through the mailer
	EmailVerified            bool    `gorm:"not null;default:false"`
	EmailVerificationHash    *string `gorm:"index;size:64"`
	EmailVerificationExpires *time.Time
	PasswordResetHash        *string `gorm:"index;size:64"`
	PasswordResetExpires     *time.Time

	LastLogin           *time.Time
	FailedLoginAttempts int `gorm:"not null;default:0"`
	LockedUntil         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID != "" {
		return nil
	}

	id, err := gonanoid.Generate(idCharset, 21)
	if err != nil {
		return err
	}

	u.ID = id
	return nil
}

// IsLocked reports whether the account is locked out at the given time
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// IsActive reports whether the account can use authenticated endpoints
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// PublicUser is the only user representation that leaves the service.
// It never carries hashes or tokens.
type PublicUser struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Role          Role       `json:"role"`
	Status        Status     `json:"status"`
	EmailVerified bool       `json:"emailVerified"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RefreshToken struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `gorm:"index;not null;size:21"`
	TokenHash string    `gorm:"uniqueIndex;not null;size:64"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time

	// Plaintext, only set on the record returned by Create
	Token string `gorm:"-"`

	// Filled by lookups that join the owning user
	User *User `gorm:"foreignKey:UserID"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	return nil
}

// IsExpired reports whether the token can no longer be exchanged at the given time
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TokenPurpose string

const (
	PurposeVerification  TokenPurpose = "verification"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// Token is the shape shared by both token tables. UserID is unique so a
// user holds at most one row per purpose.
type Token struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Token     string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	ExpiredAt time.Time `gorm:"index;not null"`
	Valid     bool      `gorm:"index;not null"`
	CreatedAt time.Time
}

// IsValidAt reports whether the token can still be redeemed at now.
func (t Token) IsValidAt(now time.Time) bool {
	return t.Valid && now.Before(t.ExpiredAt)
}

func (t *Token) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type VerificationToken struct {
	Token
}

func (t *VerificationToken) Record() *Token { return &t.Token }

type ResetPasswordToken struct {
	Token
}

func (t *ResetPasswordToken) Record() *Token { return &t.Token }

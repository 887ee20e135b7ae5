package service

import (
	"context"
	"time"

	"bookstore/internal/entity"

	"golang.org/x/crypto/bcrypt"
)

type AccountConfig struct {
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	VerificationRateWait time.Duration
	// AppBaseURL is the public origin used in email links.
	AppBaseURL string
}

// Notifier delivers a message to one recipient.
type Notifier interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) bool
}

type AccessTokenIssuer interface {
	IssueAccessToken(user entity.User) (string, time.Duration, error)
}

// Principal is the authenticated caller, passed explicitly into calls that
// act on the caller's own account.
type Principal struct {
	UserID string
	Email  string
	Role   entity.UserRole
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

type BcryptPasswordHasher struct {
	Cost int
}

func (h BcryptPasswordHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h BcryptPasswordHasher) Verify(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

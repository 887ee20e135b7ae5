package service

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/entity"
	"bookstore/internal/metrics"
	"bookstore/internal/repository"
	"bookstore/internal/utils"

	"github.com/google/uuid"
)

// TokenService issues and redeems single-use, time-bounded tokens. A user
// holds at most one token per purpose; issuing a new one deletes the old row.
type TokenService struct {
	users   repository.UserRepository
	stores  map[entity.TokenPurpose]repository.TokenRepository
	clock   Clock
	metrics *metrics.Metrics
}

func NewTokenService(
	users repository.UserRepository,
	verifications repository.TokenRepository,
	resets repository.TokenRepository,
	clock Clock,
	m *metrics.Metrics,
) *TokenService {
	return &TokenService{
		users: users,
		stores: map[entity.TokenPurpose]repository.TokenRepository{
			entity.PurposeVerification:  verifications,
			entity.PurposePasswordReset: resets,
		},
		clock:   clock,
		metrics: m,
	}
}

func (s *TokenService) Purposes() []entity.TokenPurpose {
	return []entity.TokenPurpose{entity.PurposeVerification, entity.PurposePasswordReset}
}

func (s *TokenService) CreateToken(ctx context.Context, user *entity.User, purpose entity.TokenPurpose, ttl time.Duration) (*entity.Token, error) {
	store, err := s.store(purpose)
	if err != nil {
		return nil, err
	}
	if err := store.DeleteByUserID(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("delete previous %s token: %w", purpose, err)
	}
	token := &entity.Token{
		Token:     utils.NewOpaqueToken(),
		UserID:    user.ID,
		ExpiredAt: s.now().Add(ttl),
		Valid:     true,
	}
	if err := store.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("create %s token: %w", purpose, err)
	}
	s.metrics.TokenIssued(string(purpose))
	return token, nil
}

// VerifyToken returns the token and its owner when the token is usable.
// Expired rows are left in place for the cleanup job.
func (s *TokenService) VerifyToken(ctx context.Context, purpose entity.TokenPurpose, value string) (*entity.Token, *entity.User, error) {
	store, err := s.store(purpose)
	if err != nil {
		return nil, nil, err
	}
	token, err := store.FindByToken(ctx, value)
	if err != nil {
		return nil, nil, err
	}
	if token == nil {
		return nil, nil, ErrTokenNotFound
	}
	if !token.IsValidAt(s.now()) {
		return nil, nil, ErrTokenExpired
	}
	user, err := s.users.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrUserNotFound
	}
	return token, user, nil
}

func (s *TokenService) InvalidateToken(ctx context.Context, purpose entity.TokenPurpose, token *entity.Token) error {
	store, err := s.store(purpose)
	if err != nil {
		return err
	}
	if err := store.Invalidate(ctx, token.ID); err != nil {
		return err
	}
	token.Valid = false
	return nil
}

// RedeemToken runs apply and deletes token in one transaction, so the token
// stays usable if apply fails and cannot be reused once apply has committed.
func (s *TokenService) RedeemToken(
	ctx context.Context,
	purpose entity.TokenPurpose,
	token *entity.Token,
	apply func(ctx context.Context, users repository.UserRepository) error,
) error {
	store, err := s.store(purpose)
	if err != nil {
		return err
	}
	err = store.WithTransaction(ctx, func(ctx context.Context, users repository.UserRepository, tokens repository.TokenRepository) error {
		if err := apply(ctx, users); err != nil {
			return err
		}
		return tokens.Delete(ctx, token.ID)
	})
	if err != nil {
		return err
	}
	s.metrics.TokenConsumed(string(purpose))
	return nil
}

// RevokeUserToken runs apply and marks the user's outstanding token of
// purpose invalid in one transaction. Revoked rows are removed by the
// invalid-token sweep.
func (s *TokenService) RevokeUserToken(
	ctx context.Context,
	purpose entity.TokenPurpose,
	userID uuid.UUID,
	apply func(ctx context.Context, users repository.UserRepository) error,
) error {
	store, err := s.store(purpose)
	if err != nil {
		return err
	}
	return store.WithTransaction(ctx, func(ctx context.Context, users repository.UserRepository, tokens repository.TokenRepository) error {
		if err := apply(ctx, users); err != nil {
			return err
		}
		return tokens.InvalidateByUserID(ctx, userID)
	})
}

func (s *TokenService) DeleteExpiredTokens(ctx context.Context, purpose entity.TokenPurpose) (int64, error) {
	store, err := s.store(purpose)
	if err != nil {
		return 0, err
	}
	deleted, err := store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.TokensSwept(string(purpose), "expired", deleted)
	return deleted, nil
}

func (s *TokenService) DeleteInvalidTokens(ctx context.Context, purpose entity.TokenPurpose) (int64, error) {
	store, err := s.store(purpose)
	if err != nil {
		return 0, err
	}
	deleted, err := store.DeleteInvalid(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.TokensSwept(string(purpose), "invalid", deleted)
	return deleted, nil
}

func (s *TokenService) store(purpose entity.TokenPurpose) (repository.TokenRepository, error) {
	store, ok := s.stores[purpose]
	if !ok || store == nil {
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}
	return store, nil
}

func (s *TokenService) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

package repository

import (
	"context"
	"errors"
	"time"

	"bookstore/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenRepository persists one kind of token. Each purpose has its own table,
// so callers hold one repository per purpose.
type TokenRepository interface {
	Create(ctx context.Context, token *entity.Token) error
	FindByToken(ctx context.Context, token string) (*entity.Token, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Token, error)
	Invalidate(ctx context.Context, id uuid.UUID) error
	InvalidateByUserID(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteInvalid(ctx context.Context) (int64, error)
	// WithTransaction runs fn with user and token repositories bound to one
	// transaction. Returning an error rolls both back.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, users UserRepository, tokens TokenRepository) error) error
}

type tokenRow interface {
	Record() *entity.Token
}

type tokenRepository struct {
	db     *gorm.DB
	newRow func() tokenRow
}

func NewVerificationTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db, newRow: func() tokenRow { return &entity.VerificationToken{} }}
}

func NewResetPasswordTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db, newRow: func() tokenRow { return &entity.ResetPasswordToken{} }}
}

func (r *tokenRepository) Create(ctx context.Context, token *entity.Token) error {
	row := r.newRow()
	*row.Record() = *token
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	*token = *row.Record()
	return nil
}

func (r *tokenRepository) FindByToken(ctx context.Context, token string) (*entity.Token, error) {
	return r.findOne(ctx, "token = ?", token)
}

func (r *tokenRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Token, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *tokenRepository) findOne(ctx context.Context, query string, arg any) (*entity.Token, error) {
	row := r.newRow()
	err := r.db.WithContext(ctx).
		Where(query, arg).
		Take(row).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := *row.Record()
	return &record, nil
}

func (r *tokenRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(r.newRow()).
		Where("id = ?", id).
		Update("valid", false).
		Error
}

func (r *tokenRepository) InvalidateByUserID(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(r.newRow()).
		Where("user_id = ? AND valid = ?", userID, true).
		Update("valid", false).
		Error
}

func (r *tokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(r.newRow()).
		Error
}

func (r *tokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(r.newRow()).
		Error
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expired_at < ?", now).
		Delete(r.newRow())
	return result.RowsAffected, result.Error
}

func (r *tokenRepository) DeleteInvalid(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("valid = ?", false).
		Delete(r.newRow())
	return result.RowsAffected, result.Error
}

func (r *tokenRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, users UserRepository, tokens TokenRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txTokens := &tokenRepository{db: tx, newRow: r.newRow}
		return fn(ctx, NewUserRepository(tx), txTokens)
	})
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bookstore/internal/entity"
	"bookstore/internal/event"
	"bookstore/internal/metrics"
	"bookstore/internal/repository"
	"bookstore/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const dummyPasswordHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8yQbWc1x9uxw2sQ2sXUNx5x9xJ9F2S"

type AccountService struct {
	users        repository.UserRepository
	securityLogs repository.SecurityLogRepository
	tokens       *TokenService
	publisher    event.Publisher

	passwordHash PasswordHasher
	accessTokens AccessTokenIssuer
	clock        Clock
	config       AccountConfig
	logger       logrus.FieldLogger
	metrics      *metrics.Metrics
}

func NewAccountService(
	users repository.UserRepository,
	securityLogs repository.SecurityLogRepository,
	tokens *TokenService,
	publisher event.Publisher,
	passwordHash PasswordHasher,
	accessTokens AccessTokenIssuer,
	clock Clock,
	config AccountConfig,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) *AccountService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AccountService{
		users:        users,
		securityLogs: securityLogs,
		tokens:       tokens,
		publisher:    publisher,
		passwordHash: passwordHash,
		accessTokens: accessTokens,
		clock:        clock,
		config:       config,
		logger:       logger,
		metrics:      m,
	}
}

func (s *AccountService) RegisterUser(ctx context.Context, input RegisterInput) (*entity.User, error) {
	if strings.TrimSpace(input.Email) == "" || strings.TrimSpace(input.FirstName) == "" {
		return nil, validationError(fmt.Errorf("first name and email are required"))
	}
	if err := utils.ValidateNewPassword(input.Password, input.ConfirmPassword); err != nil {
		return nil, validationError(err)
	}

	email := utils.NormalizeEmail(input.Email)
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hash, err := s.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	// Registration counts as the first verification send for rate limiting.
	now := s.now()
	user := &entity.User{
		FirstName:                 strings.TrimSpace(input.FirstName),
		LastName:                  strings.TrimSpace(input.LastName),
		Email:                     email,
		PasswordHash:              hash,
		Role:                      entity.UserRoleUser,
		Enabled:                   false,
		LastVerificationEmailSent: &now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	s.publisher.Publish(ctx, event.RegistrationCompleted{
		UserID:  user.ID,
		Email:   user.Email,
		BaseURL: s.baseURL(),
	})
	s.audit(ctx, &user.ID, nil, entity.UserRegistered, nil)
	return user, nil
}

func (s *AccountService) ResendVerificationToken(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return validationError(fmt.Errorf("email is required"))
	}
	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.Enabled {
		return ErrUserAlreadyEnabled
	}

	// Read-then-write: two concurrent resends may both pass.
	now := s.now()
	if user.LastVerificationEmailSent != nil {
		wait := s.verificationRateWait()
		elapsed := now.Sub(*user.LastVerificationEmailSent)
		if elapsed < wait {
			s.metrics.RateLimited()
			return &RateLimitError{SecondsRemaining: int64(math.Ceil((wait - elapsed).Seconds()))}
		}
	}
	user.LastVerificationEmailSent = &now
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.publisher.Publish(ctx, event.RegistrationCompleted{
		UserID:  user.ID,
		Email:   user.Email,
		BaseURL: s.baseURL(),
	})
	s.audit(ctx, &user.ID, nil, entity.VerificationResent, nil)
	return nil
}

func (s *AccountService) VerifyRegistration(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return validationError(fmt.Errorf("token is required"))
	}
	record, user, err := s.tokens.VerifyToken(ctx, entity.PurposeVerification, token)
	if err != nil {
		return err
	}

	err = s.tokens.RedeemToken(ctx, entity.PurposeVerification, record, func(ctx context.Context, users repository.UserRepository) error {
		return users.Enable(ctx, user.ID)
	})
	if err != nil {
		return err
	}
	user.Enabled = true
	s.audit(ctx, &user.ID, nil, entity.EmailVerified, nil)
	return nil
}

// RequestPasswordReset never reveals whether email belongs to an account:
// unknown addresses are a silent no-op.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return validationError(fmt.Errorf("email is required"))
	}
	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		s.logger.Debug("password reset requested for unknown email")
		return nil
	}

	s.publisher.Publish(ctx, event.PasswordResetRequested{
		UserID:  user.ID,
		Email:   user.Email,
		BaseURL: s.baseURL(),
	})
	s.audit(ctx, &user.ID, nil, entity.PasswordResetRequested, nil)
	return nil
}

// ValidateResetToken checks a reset token without consuming it.
func (s *AccountService) ValidateResetToken(ctx context.Context, token string) (*ResetTokenDetails, error) {
	if strings.TrimSpace(token) == "" {
		return nil, validationError(fmt.Errorf("token is required"))
	}
	record, user, err := s.tokens.VerifyToken(ctx, entity.PurposePasswordReset, token)
	if err != nil {
		return nil, err
	}
	return &ResetTokenDetails{Email: user.Email, ExpiredAt: record.ExpiredAt}, nil
}

func (s *AccountService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	token := strings.TrimSpace(input.QueryToken)
	if token == "" {
		token = strings.TrimSpace(input.BodyToken)
	}
	if token == "" {
		return validationError(fmt.Errorf("token is required"))
	}
	if err := utils.ValidateNewPassword(input.Password, input.ConfirmPassword); err != nil {
		return validationError(err)
	}

	record, user, err := s.tokens.VerifyToken(ctx, entity.PurposePasswordReset, token)
	if err != nil {
		return err
	}

	hash, err := s.passwordHash.Hash(input.Password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	err = s.tokens.RedeemToken(ctx, entity.PurposePasswordReset, record, func(ctx context.Context, users repository.UserRepository) error {
		return users.Update(ctx, user)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, &user.ID, nil, entity.PasswordReset, nil)
	return nil
}

func (s *AccountService) ChangePassword(ctx context.Context, principal Principal, input ChangePasswordInput) error {
	user, err := s.userForPrincipal(ctx, principal)
	if err != nil {
		return err
	}
	if !s.passwordHash.Verify(user.PasswordHash, input.CurrentPassword) {
		return fmt.Errorf("%w: current password is incorrect", ErrInvalidPassword)
	}
	if input.NewPassword == input.CurrentPassword {
		return fmt.Errorf("%w: new password must differ from current password", ErrInvalidPassword)
	}
	if err := utils.ValidateNewPassword(input.NewPassword, input.ConfirmPassword); err != nil {
		return validationError(err)
	}

	hash, err := s.passwordHash.Hash(input.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	// A reset link requested before the change must not undo it.
	err = s.tokens.RevokeUserToken(ctx, entity.PurposePasswordReset, user.ID, func(ctx context.Context, users repository.UserRepository) error {
		return users.Update(ctx, user)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, &user.ID, nil, entity.PasswordChanged, nil)
	return nil
}

func (s *AccountService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, validationError(fmt.Errorf("email and password are required"))
	}

	email := utils.NormalizeEmail(input.Email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = s.passwordHash.Verify(dummyPasswordHash, input.Password)
		s.audit(ctx, nil, input.IPAddress, entity.LoginFailed, map[string]any{"email": email})
		return nil, ErrInvalidCredentials
	}
	if !s.passwordHash.Verify(user.PasswordHash, input.Password) {
		s.audit(ctx, &user.ID, input.IPAddress, entity.LoginFailed, map[string]any{"email": email})
		return nil, ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, ErrUserNotEnabled
	}

	accessToken, expiresIn, err := s.accessTokens.IssueAccessToken(*user)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, &user.ID, input.IPAddress, entity.LoginSuccess, nil)
	return &LoginResult{AccessToken: accessToken, ExpiresIn: int64(expiresIn.Seconds())}, nil
}

func (s *AccountService) GetCurrentUser(ctx context.Context, principal Principal) (*entity.User, error) {
	return s.userForPrincipal(ctx, principal)
}

func (s *AccountService) userForPrincipal(ctx context.Context, principal Principal) (*entity.User, error) {
	userID, err := uuid.Parse(principal.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// audit records a security log row. Failures are logged, never returned.
func (s *AccountService) audit(
	ctx context.Context,
	userID *uuid.UUID,
	ipAddress *string,
	action entity.SecurityAction,
	metadata map[string]any,
) {
	if s.securityLogs == nil {
		return
	}
	var payload datatypes.JSON
	if metadata != nil {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			s.logger.WithError(err).Warn("marshal security log metadata")
			return
		}
		payload = datatypes.JSON(bytes)
	}
	log := &entity.SecurityLog{
		UserID:    userID,
		IPAddress: ipAddress,
		Action:    action,
		Metadata:  payload,
	}
	if err := s.securityLogs.Log(ctx, log); err != nil {
		s.logger.WithError(err).WithField("action", action).Warn("write security log")
	}
}

// baseURL is the public origin for email links. It never comes from the
// request: the Host header is client controlled.
func (s *AccountService) baseURL() string {
	return strings.TrimRight(strings.TrimSpace(s.config.AppBaseURL), "/")
}

func (s *AccountService) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func (s *AccountService) verificationRateWait() time.Duration {
	if s.config.VerificationRateWait > 0 {
		return s.config.VerificationRateWait
	}
	return 60 * time.Second
}

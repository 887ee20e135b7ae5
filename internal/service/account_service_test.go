package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bookstore/internal/entity"
	"bookstore/internal/event"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_RegisterUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.register(t, "  A@Test.com ")

	assert.Equal(t, "a@test.com", user.Email)
	assert.False(t, user.Enabled)
	assert.Equal(t, entity.UserRoleUser, user.Role)
	assert.NotEqual(t, testPassword, user.PasswordHash)
	require.NotNil(t, user.LastVerificationEmailSent)
	assert.True(t, user.LastVerificationEmailSent.Equal(env.clock.Now()))

	require.Len(t, env.events, 1)
	registered, ok := env.events[0].(event.RegistrationCompleted)
	require.True(t, ok)
	assert.Equal(t, user.ID, registered.UserID)
	assert.Equal(t, "http://shop.test", registered.BaseURL)

	token := env.verificationToken(t, user)
	sent := env.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@test.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "http://shop.test"+VerifyRegistrationPath+"?token="+token.Token)

	logs, err := env.securityLogs.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entity.UserRegistered, logs[0].Action)
}

func TestAccountService_RegisterUser_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{
			name:  "confirmation mismatch",
			input: RegisterInput{FirstName: "Ada", Email: "a@test.com", Password: testPassword, ConfirmPassword: "Passw0rd?"},
		},
		{
			name:  "weak password",
			input: RegisterInput{FirstName: "Ada", Email: "a@test.com", Password: "password", ConfirmPassword: "password"},
		},
		{
			name:  "missing email",
			input: RegisterInput{FirstName: "Ada", Password: testPassword, ConfirmPassword: testPassword},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.accounts.RegisterUser(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrValidationFailed)
			assert.Empty(t, env.events)
		})
	}
}

func TestAccountService_RegisterUser_DuplicateEmailIgnoresCase(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@test.com")

	_, err := env.accounts.RegisterUser(context.Background(), RegisterInput{
		FirstName:       "Other",
		Email:           "A@TEST.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	assert.Len(t, env.events, 1)
}

func TestAccountService_VerifyRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "a@test.com")
	token := env.verificationToken(t, user)

	require.NoError(t, env.accounts.VerifyRegistration(ctx, token.Token))

	stored, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
	assert.Equal(t, int64(0), env.countRows(t, &entity.VerificationToken{}, user.ID))

	err = env.accounts.VerifyRegistration(ctx, token.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestAccountService_VerifyRegistration_ExpiredTokenLeavesUserPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "a@test.com")
	token := env.verificationToken(t, user)

	env.clock.Advance(11 * time.Minute)
	err := env.accounts.VerifyRegistration(ctx, token.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	stored, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.Equal(t, int64(1), env.countRows(t, &entity.VerificationToken{}, user.ID))
}

func TestAccountService_VerifyRegistration_UnknownToken(t *testing.T) {
	env := newTestEnv(t)
	err := env.accounts.VerifyRegistration(context.Background(), "9b2f6c1e-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	err = env.accounts.VerifyRegistration(context.Background(), " ")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestAccountService_ResendVerificationToken_RateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "a@test.com")
	first := env.verificationToken(t, user)

	env.clock.Advance(10 * time.Second)
	err := env.accounts.ResendVerificationToken(ctx, "a@test.com")
	require.ErrorIs(t, err, ErrRateLimited)
	var rateLimit *RateLimitError
	require.True(t, errors.As(err, &rateLimit))
	assert.Equal(t, int64(50), rateLimit.SecondsRemaining)
	assert.Len(t, env.notifier.Sent(), 1)

	env.clock.Advance(60 * time.Second)
	require.NoError(t, env.accounts.ResendVerificationToken(ctx, "A@test.com"))

	second := env.verificationToken(t, user)
	assert.NotEqual(t, first.Token, second.Token)
	assert.Len(t, env.notifier.Sent(), 2)
	assert.Equal(t, int64(1), env.countRows(t, &entity.VerificationToken{}, user.ID))

	assert.ErrorIs(t, env.accounts.VerifyRegistration(ctx, first.Token), ErrTokenNotFound)
	require.NoError(t, env.accounts.VerifyRegistration(ctx, second.Token))

	stored, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastVerificationEmailSent.Equal(env.clock.Now()))
}

func TestAccountService_ResendVerificationToken_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.accounts.ResendVerificationToken(ctx, "nobody@test.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	user := env.register(t, "a@test.com")
	require.NoError(t, env.accounts.VerifyRegistration(ctx, env.verificationToken(t, user).Token))

	env.clock.Advance(2 * time.Minute)
	err = env.accounts.ResendVerificationToken(ctx, "a@test.com")
	assert.ErrorIs(t, err, ErrUserAlreadyEnabled)
}

func TestAccountService_PasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "a@test.com")
	require.NoError(t, env.accounts.VerifyRegistration(ctx, env.verificationToken(t, user).Token))

	require.NoError(t, env.accounts.RequestPasswordReset(ctx, "a@test.com"))
	t1 := env.resetToken(t, user)

	require.NoError(t, env.accounts.RequestPasswordReset(ctx, "a@test.com"))
	t2 := env.resetToken(t, user)
	require.NotEqual(t, t1.Token, t2.Token)
	assert.Equal(t, int64(1), env.countRows(t, &entity.ResetPasswordToken{}, user.ID))

	sent := env.notifier.Sent()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[2].Body, ResetPasswordPath+"?token="+t2.Token)

	details, err := env.accounts.ValidateResetToken(ctx, t2.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@test.com", details.Email)

	err = env.accounts.ResetPassword(ctx, ResetPasswordInput{
		QueryToken:      t1.Token,
		Password:        "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
	})
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, env.accounts.ResetPassword(ctx, ResetPasswordInput{
		QueryToken:      t2.Token,
		Password:        "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
	}))
	assert.Equal(t, int64(0), env.countRows(t, &entity.ResetPasswordToken{}, user.ID))

	_, err = env.accounts.Login(ctx, LoginInput{Email: "a@test.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	result, err := env.accounts.Login(ctx, LoginInput{Email: "a@test.com", Password: "Str0ng!Pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestAccountService_RequestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)

	err := env.accounts.RequestPasswordReset(context.Background(), "ghost@test.com")
	require.NoError(t, err)
	assert.Empty(t, env.events)
	assert.Empty(t, env.notifier.Sent())

	entry := env.logHook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
}

func TestAccountService_ResetPassword_TokenSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "a@test.com")
	require.NoError(t, env.accounts.RequestPasswordReset(ctx, "a@test.com"))
	token := env.resetToken(t, user)

	err := env.accounts.ResetPassword(ctx, ResetPasswordInput{Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	err = env.accounts.ResetPassword(ctx, ResetPasswordInput{
		QueryToken:      "not-a-real-token",
		BodyToken:       token.Token,
		Password:        "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
	})
	assert.ErrorIs(t, err, ErrTokenNotFound)

	err = env.accounts.ResetPassword(ctx, ResetPasswordInput{
		BodyToken:       token.Token,
		Password:        "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pas",
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	require.NoError(t, env.accounts.ResetPassword(ctx, ResetPasswordInput{
		BodyToken:       token.Token,
		Password:        "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
	}))
}

func TestAccountService_ResetPassword_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "a@test.com")
	require.NoError(t, env.accounts.RequestPasswordReset(ctx, "a@test.com"))
	token := env.resetToken(t, user)

	env.clock.Advance(15 * time.Minute)
	err := env.accounts.ResetPassword(ctx, ResetPasswordInput{
		QueryToken:      token.Token,
		Password:        "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
	})
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccountService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "a@test.com")
	principal := Principal{UserID: user.ID.String(), Email: user.Email, Role: user.Role}

	err := env.accounts.ChangePassword(ctx, principal, ChangePasswordInput{
		CurrentPassword: "Wr0ng!Pass",
		NewPassword:     "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
	})
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.Contains(t, err.Error(), "current password is incorrect")

	err = env.accounts.ChangePassword(ctx, principal, ChangePasswordInput{
		CurrentPassword: testPassword,
		NewPassword:     testPassword,
		ConfirmPassword: testPassword,
	})
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.Contains(t, err.Error(), "must differ")

	err = env.accounts.ChangePassword(ctx, principal, ChangePasswordInput{
		CurrentPassword: testPassword,
		NewPassword:     "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass?",
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	require.NoError(t, env.accounts.ChangePassword(ctx, principal, ChangePasswordInput{
		CurrentPassword: testPassword,
		NewPassword:     "Str0ng!Pass",
		ConfirmPassword: "Str0ng!Pass",
	}))

	stored, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, BcryptPasswordHasher{}.Verify(stored.PasswordHash, "Str0ng!Pass"))
}

func TestAccountService_ChangePassword_UnknownPrincipal(t *testing.T) {
	env := newTestEnv(t)
	err := env.accounts.ChangePassword(context.Background(), Principal{UserID: "not-a-uuid"}, ChangePasswordInput{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAccountService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "a@test.com")

	_, err := env.accounts.Login(ctx, LoginInput{Email: "a@test.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrUserNotEnabled)

	_, err = env.accounts.Login(ctx, LoginInput{Email: "ghost@test.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.accounts.Login(ctx, LoginInput{Email: "a@test.com", Password: "Wr0ng!Pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, env.accounts.VerifyRegistration(ctx, env.verificationToken(t, user).Token))

	result, err := env.accounts.Login(ctx, LoginInput{Email: "A@test.com", Password: testPassword})
	require.NoError(t, err)
	assert.True(t, strings.Count(result.AccessToken, ".") == 2)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), result.ExpiresIn)

	logs, err := env.securityLogs.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	actions := make([]entity.SecurityAction, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, entity.LoginFailed)
	assert.Contains(t, actions, entity.LoginSuccess)
}

func TestRateLimitError(t *testing.T) {
	err := error(&RateLimitError{SecondsRemaining: 12})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "12 seconds")
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bookstore/internal/entity"
	"bookstore/internal/event"
	"bookstore/internal/metrics"
	"bookstore/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	VerifyRegistrationPath = "/api/v1/users/verify-registration"
	ResetPasswordPath      = "/api/v1/users/reset-password"
)

// AccountEventListener turns account events into a fresh token plus an email.
type AccountEventListener struct {
	users    repository.UserRepository
	tokens   *TokenService
	notifier Notifier
	config   AccountConfig
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
}

func NewAccountEventListener(
	users repository.UserRepository,
	tokens *TokenService,
	notifier Notifier,
	config AccountConfig,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) *AccountEventListener {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AccountEventListener{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		config:   config,
		logger:   logger,
		metrics:  m,
	}
}

var ErrBaseURLNotConfigured = errors.New("app base URL not configured")

func (l *AccountEventListener) Handle(ctx context.Context, e event.Event) error {
	switch ev := e.(type) {
	case event.RegistrationCompleted:
		return l.onRegistrationCompleted(ctx, ev)
	case event.PasswordResetRequested:
		return l.onPasswordResetRequested(ctx, ev)
	}
	return nil
}

func (l *AccountEventListener) onRegistrationCompleted(ctx context.Context, ev event.RegistrationCompleted) error {
	if strings.TrimSpace(ev.BaseURL) == "" {
		return ErrBaseURLNotConfigured
	}
	user, err := l.users.FindByID(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if user == nil || user.Enabled {
		return nil
	}
	ttl := l.verificationTokenTTL()
	token, err := l.tokens.CreateToken(ctx, user, entity.PurposeVerification, ttl)
	if err != nil {
		return err
	}
	link := buildLink(ev.BaseURL, VerifyRegistrationPath, token.Token)
	body := fmt.Sprintf(
		"Hi %s,\n\nPlease confirm your email address by opening the link below. It expires in %d minutes.\n\n%s\n",
		user.FirstName, int(ttl.Minutes()), link,
	)
	return l.send(ctx, "verification", user.Email, "Confirm your email address", body)
}

func (l *AccountEventListener) onPasswordResetRequested(ctx context.Context, ev event.PasswordResetRequested) error {
	if strings.TrimSpace(ev.BaseURL) == "" {
		return ErrBaseURLNotConfigured
	}
	user, err := l.users.FindByID(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	ttl := l.resetTokenTTL()
	token, err := l.tokens.CreateToken(ctx, user, entity.PurposePasswordReset, ttl)
	if err != nil {
		return err
	}
	link := buildLink(ev.BaseURL, ResetPasswordPath, token.Token)
	body := fmt.Sprintf(
		"Hi %s,\n\nWe received a request to reset your password. Open the link below to choose a new one. It expires in %d minutes.\n\n%s\n\nIf you did not ask for this, you can ignore this email.\n",
		user.FirstName, int(ttl.Minutes()), link,
	)
	return l.send(ctx, "password_reset", user.Email, "Reset your password", body)
}

func (l *AccountEventListener) send(ctx context.Context, kind string, to string, subject string, body string) error {
	if l.notifier == nil {
		return ErrNotifierNotConfigured
	}
	err := l.notifier.Send(ctx, to, subject, body)
	l.metrics.Notification(kind, err)
	if err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	l.logger.WithField("kind", kind).Info("notification sent")
	return nil
}

func (l *AccountEventListener) verificationTokenTTL() time.Duration {
	if l.config.VerificationTokenTTL > 0 {
		return l.config.VerificationTokenTTL
	}
	return 10 * time.Minute
}

func (l *AccountEventListener) resetTokenTTL() time.Duration {
	if l.config.ResetTokenTTL > 0 {
		return l.config.ResetTokenTTL
	}
	return 15 * time.Minute
}

func buildLink(baseURL string, path string, token string) string {
	query := url.Values{}
	query.Set("token", token)
	base := strings.TrimRight(baseURL, "/")
	return base + path + "?" + query.Encode()
}

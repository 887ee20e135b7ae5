package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"bookstore/internal/entity"
	"bookstore/internal/event"
	"bookstore/internal/repository"
	"bookstore/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "Passw0rd!"

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&entity.User{},
		&entity.VerificationToken{},
		&entity.ResetPasswordToken{},
		&entity.SecurityLog{},
	))
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
	err      error
}

func (n *recordingNotifier) Send(ctx context.Context, to string, subject string, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) Sent() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.messages...)
}

type testEnv struct {
	db            *gorm.DB
	clock         *fakeClock
	users         repository.UserRepository
	verifications repository.TokenRepository
	resets        repository.TokenRepository
	securityLogs  repository.SecurityLogRepository
	tokens        *TokenService
	accounts      *AccountService
	listener      *AccountEventListener
	notifier      *recordingNotifier
	events        []event.Event
	logHook       *test.Hook
}

// newTestEnv wires the account flow with a publisher that handles events
// inline, so tokens and emails exist as soon as a call returns.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newServiceDBForTest(t)
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	env := &testEnv{
		db:            db,
		clock:         newFakeClock(),
		users:         repository.NewUserRepository(db),
		verifications: repository.NewVerificationTokenRepository(db),
		resets:        repository.NewResetPasswordTokenRepository(db),
		securityLogs:  repository.NewSecurityLogRepository(db),
		notifier:      &recordingNotifier{},
		logHook:       hook,
	}
	config := AccountConfig{
		VerificationTokenTTL: 10 * time.Minute,
		ResetTokenTTL:        15 * time.Minute,
		VerificationRateWait: 60 * time.Second,
		AppBaseURL:           "http://shop.test/",
	}
	env.tokens = NewTokenService(env.users, env.verifications, env.resets, env.clock, nil)
	env.listener = NewAccountEventListener(env.users, env.tokens, env.notifier, config, log, nil)
	publisher := event.PublisherFunc(func(ctx context.Context, e event.Event) {
		env.events = append(env.events, e)
		require.NoError(t, env.listener.Handle(ctx, e))
	})
	jwtManager := &utils.JWTManager{Secret: []byte("test-secret"), Issuer: "bookstore-test"}
	env.accounts = NewAccountService(
		env.users,
		env.securityLogs,
		env.tokens,
		publisher,
		BcryptPasswordHasher{Cost: bcrypt.MinCost},
		JWTAccessIssuer{Manager: jwtManager},
		env.clock,
		config,
		log,
		nil,
	)
	return env
}

func (env *testEnv) register(t *testing.T, email string) *entity.User {
	t.Helper()
	user, err := env.accounts.RegisterUser(context.Background(), RegisterInput{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	require.NoError(t, err)
	return user
}

func (env *testEnv) verificationToken(t *testing.T, user *entity.User) *entity.Token {
	t.Helper()
	token, err := env.verifications.FindByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, token)
	return token
}

func (env *testEnv) resetToken(t *testing.T, user *entity.User) *entity.Token {
	t.Helper()
	token, err := env.resets.FindByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, token)
	return token
}

func (env *testEnv) countRows(t *testing.T, model any, userID any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.db.Model(model).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

package main

import (
	"fmt"

	"bookstore/config"
	"bookstore/internal/event"
	"bookstore/internal/metrics"
	"bookstore/internal/repository"
	"bookstore/internal/service"
	"bookstore/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type components struct {
	cfg        *config.Config
	logger     *logrus.Logger
	db         *gorm.DB
	registry   *prometheus.Registry
	jwt        *utils.JWTManager
	users      repository.UserRepository
	tokens     *service.TokenService
	accounts   *service.AccountService
	dispatcher *event.Dispatcher
}

func buildComponents(cfg *config.Config) (*components, error) {
	logger := config.NewLogger(cfg.LogLevel)

	db, err := config.ConnectionDb(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	accountConfig := service.AccountConfig{
		VerificationTokenTTL: cfg.VerificationTokenTTL,
		ResetTokenTTL:        cfg.ResetTokenTTL,
		VerificationRateWait: cfg.VerificationRateWait,
		AppBaseURL:           cfg.AppBaseURL,
	}
	clock := service.RealClock{}

	userRepo := repository.NewUserRepository(db)
	verificationRepo := repository.NewVerificationTokenRepository(db)
	resetRepo := repository.NewResetPasswordTokenRepository(db)
	securityRepo := repository.NewSecurityLogRepository(db)

	tokenService := service.NewTokenService(userRepo, verificationRepo, resetRepo, clock, m)

	var notifier service.Notifier = service.LogNotifier{Logger: logger}
	if cfg.ResendAPIKey != "" && cfg.MailFrom != "" {
		notifier = service.NewResendNotifier(cfg.ResendAPIKey, cfg.MailFrom)
	} else {
		logger.Warn("RESEND_API_KEY or MAIL_FROM not set, emails are written to the log")
	}

	dispatcher := event.NewDispatcher(logger, cfg.EventWorkers, cfg.EventQueueSize)
	listener := service.NewAccountEventListener(userRepo, tokenService, notifier, accountConfig, logger, m)
	dispatcher.Subscribe(listener.Handle)

	jwtManager := &utils.JWTManager{
		Secret:         []byte(cfg.JWTSecret),
		Issuer:         cfg.JWTIssuer,
		AccessTokenTTL: cfg.AccessTokenTTL,
	}

	accountService := service.NewAccountService(
		userRepo,
		securityRepo,
		tokenService,
		dispatcher,
		service.BcryptPasswordHasher{Cost: cfg.BcryptCost},
		service.JWTAccessIssuer{Manager: jwtManager},
		clock,
		accountConfig,
		logger,
		m,
	)

	return &components{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		registry:   registry,
		jwt:        jwtManager,
		users:      userRepo,
		tokens:     tokenService,
		accounts:   accountService,
		dispatcher: dispatcher,
	}, nil
}

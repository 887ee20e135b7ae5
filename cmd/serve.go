package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookstore/api/handler"
	apiMiddleware "bookstore/api/middleware"
	"bookstore/api/routes"
	"bookstore/config"
	"bookstore/internal/scheduler"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the token cleanup schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "auto-migrate the schema before serving")
	return cmd
}

func serve(migrate bool) error {
	cfg := config.Load()
	if err := validateServeConfig(cfg); err != nil {
		return err
	}
	app, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	logger := app.logger
	if migrate {
		if err := config.Migrate(app.db); err != nil {
			return err
		}
	}

	app.dispatcher.Start()
	defer app.dispatcher.Close()

	cron := scheduler.New(logger)
	cleanup := scheduler.NewCleanupJob(app.tokens, scheduler.CleanupConfig{
		ExpiredSchedule: app.cfg.CleanupExpiredSchedule,
		InvalidSchedule: app.cfg.CleanupInvalidSchedule,
	}, logger)
	if err := cleanup.Register(cron); err != nil {
		return err
	}
	cron.Start()
	defer cron.Stop()

	accountLimiter, loginLimiter := newLimiters(app.cfg, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status": v.Status,
				"method": v.Method,
				"uri":    v.URI,
				"ip":     v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	userHandler := handler.NewUserHandler(app.accounts, validator.New(), logger)
	authMiddleware := apiMiddleware.AuthMiddleware{JWT: app.jwt}
	router := routes.NewRouter(
		e,
		userHandler,
		authMiddleware,
		apiMiddleware.RateLimit(accountLimiter, logger),
		apiMiddleware.RateLimit(loginLimiter, logger),
		app.registry,
	)
	router.RegisterRoutes()

	server := &http.Server{
		Addr:              app.cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", app.cfg.HTTPAddr).Info("server started")
		errCh <- e.StartServer(server)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

// validateServeConfig rejects settings the HTTP server cannot run without.
// APP_BASE_URL is the only source of the origin in emailed links.
func validateServeConfig(cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.AppBaseURL == "" {
		return errors.New("APP_BASE_URL is required")
	}
	parsed, err := url.Parse(cfg.AppBaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("APP_BASE_URL must be an absolute http(s) URL, got %q", cfg.AppBaseURL)
	}
	return nil
}

func newLimiters(cfg *config.Config, logger logrus.FieldLogger) (apiMiddleware.Limiter, apiMiddleware.Limiter) {
	if cfg.RedisAddr == "" {
		return apiMiddleware.NewMemoryLimiter(rate.Limit(5), 10, 5*time.Minute),
			apiMiddleware.NewMemoryLimiter(rate.Limit(2), 4, 10*time.Minute)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	logger.WithField("addr", cfg.RedisAddr).Info("using redis rate limiter")
	return apiMiddleware.NewRedisLimiter(client, "rl:account", 30, time.Minute),
		apiMiddleware.NewRedisLimiter(client, "rl:login", 10, time.Minute)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/entity"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultExpiredSchedule = "0 3 * * *"
	DefaultInvalidSchedule = "5 3 * * *"
)

// TokenSweeper is the part of the token service the cleanup job drives.
type TokenSweeper interface {
	Purposes() []entity.TokenPurpose
	DeleteExpiredTokens(ctx context.Context, purpose entity.TokenPurpose) (int64, error)
	DeleteInvalidTokens(ctx context.Context, purpose entity.TokenPurpose) (int64, error)
}

type CleanupConfig struct {
	ExpiredSchedule string
	InvalidSchedule string
	Timeout         time.Duration
}

// CleanupJob removes expired and invalidated tokens. A failed sweep is only
// logged; the next scheduled run retries it.
type CleanupJob struct {
	tokens TokenSweeper
	config CleanupConfig
	logger logrus.FieldLogger
}

func NewCleanupJob(tokens TokenSweeper, config CleanupConfig, logger logrus.FieldLogger) *CleanupJob {
	if config.ExpiredSchedule == "" {
		config.ExpiredSchedule = DefaultExpiredSchedule
	}
	if config.InvalidSchedule == "" {
		config.InvalidSchedule = DefaultInvalidSchedule
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CleanupJob{tokens: tokens, config: config, logger: logger}
}

// Register adds both sweeps to c.
func (j *CleanupJob) Register(c *cron.Cron) error {
	if _, err := c.AddFunc(j.config.ExpiredSchedule, j.runExpired); err != nil {
		return fmt.Errorf("schedule expired token sweep: %w", err)
	}
	if _, err := c.AddFunc(j.config.InvalidSchedule, j.runInvalid); err != nil {
		return fmt.Errorf("schedule invalid token sweep: %w", err)
	}
	return nil
}

func (j *CleanupJob) runExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), j.config.Timeout)
	defer cancel()
	_ = j.SweepExpired(ctx)
}

func (j *CleanupJob) runInvalid() {
	ctx, cancel := context.WithTimeout(context.Background(), j.config.Timeout)
	defer cancel()
	_ = j.SweepInvalid(ctx)
}

func (j *CleanupJob) SweepExpired(ctx context.Context) error {
	return j.sweep(ctx, "expired", j.tokens.DeleteExpiredTokens)
}

func (j *CleanupJob) SweepInvalid(ctx context.Context) error {
	return j.sweep(ctx, "invalid", j.tokens.DeleteInvalidTokens)
}

// sweep runs fn for every purpose; one failing purpose does not stop the rest.
func (j *CleanupJob) sweep(
	ctx context.Context,
	reason string,
	fn func(ctx context.Context, purpose entity.TokenPurpose) (int64, error),
) error {
	var errs []error
	for _, purpose := range j.tokens.Purposes() {
		entry := j.logger.WithFields(logrus.Fields{"purpose": purpose, "reason": reason})
		deleted, err := j.safeCall(ctx, purpose, fn)
		if err != nil {
			entry.WithError(err).Error("token cleanup failed")
			errs = append(errs, fmt.Errorf("%s %s tokens: %w", reason, purpose, err))
			continue
		}
		entry.WithField("deleted", deleted).Info("token cleanup finished")
	}
	return errors.Join(errs...)
}

func (j *CleanupJob) safeCall(
	ctx context.Context,
	purpose entity.TokenPurpose,
	fn func(ctx context.Context, purpose entity.TokenPurpose) (int64, error),
) (deleted int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, purpose)
}

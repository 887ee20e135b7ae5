package main

import (
	"context"
	"errors"

	"bookstore/config"
	"bookstore/internal/scheduler"

	"github.com/spf13/cobra"
)

func newCleanupCommand() *cobra.Command {
	var (
		expiredOnly bool
		invalidOnly bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired and invalidated tokens once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiredOnly && invalidOnly {
				return errors.New("--expired-only and --invalid-only are mutually exclusive")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			app, err := buildComponents(config.Load())
			if err != nil {
				return err
			}
			job := scheduler.NewCleanupJob(app.tokens, scheduler.CleanupConfig{}, app.logger)

			var errs []error
			if !invalidOnly {
				errs = append(errs, job.SweepExpired(ctx))
			}
			if !expiredOnly {
				errs = append(errs, job.SweepInvalid(ctx))
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&expiredOnly, "expired-only", false, "only delete expired tokens")
	cmd.Flags().BoolVar(&invalidOnly, "invalid-only", false, "only delete invalidated tokens")
	return cmd
}

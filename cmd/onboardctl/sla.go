package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/app"
	"github.com/spec-kit/onboarding-service/internal/config"
	"github.com/spec-kit/onboarding-service/internal/observability"
)

func newSLACommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Run SLA sweeps and report SLA health",
	}
	cmd.AddCommand(newSLASweepCommand())
	cmd.AddCommand(newSLAMetricsCommand())
	return cmd
}

func newSLASweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep (breach detection, escalation, metrics) now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				report, ran := c.Driver.Tick(ctx)
				if !ran {
					return errors.New("another sweep holds the lock; try again later")
				}
				if report.Err != nil {
					return report.Err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newSLAMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print open, breached and at-risk counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				m, err := c.Tracker.Metrics(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), m)
			})
		},
	}
}

// withContainer builds the service graph against the configured Postgres. The
// in-memory store would always be empty here, so a DSN is required.
func withContainer(ctx context.Context, fn func(context.Context, *app.Container) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	cfg.Postgres.RunMigrations = false
	cfg.NATS.Enabled = false

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	c, err := app.New(ctx, cfg, logger.Named("onboardctl"))
	if err != nil {
		logger.Error("failed to build service", zap.Error(err))
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

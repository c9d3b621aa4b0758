package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"instalytics/internal/api"
	"instalytics/internal/config"
	"instalytics/internal/handler"
	"instalytics/internal/logger"
	"instalytics/internal/scheduler"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err = cfg.ValidateServer(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Warn("Failed to close connections", logger.Error(closeErr))
		}
	}()

	if cfg.Auth.Disabled {
		log.Warn("Authentication is disabled")
	}

	sched, err := startRetention(cfg, a, log)
	if err != nil {
		return err
	}
	if sched != nil {
		defer func() { <-sched.Stop().Done() }()
	}

	srv := api.NewServer(api.Config{
		Address:           cfg.Service.Address,
		ReadTimeout:       cfg.Service.ReadTimeout,
		WriteTimeout:      cfg.Service.WriteTimeout,
		ShutdownTimeout:   cfg.Service.ShutdownTimeout,
		Debug:             cfg.Service.Debug,
		Version:           version,
		JWTSecret:         cfg.Auth.JWTSecret,
		AuthDisabled:      cfg.Auth.Disabled,
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		RateLimitDisabled: cfg.RateLimit.Disabled,
	}, api.Deps{
		Handler: handler.New(a.analyzer, a.historyReader(), log),
		Metrics: a.metrics,
		Health:  a.healthChecks(),
	}, log)

	return srv.Run(ctx)
}

// startRetention schedules history pruning. It returns nil when retention is disabled
// or there is no database to prune.
func startRetention(cfg *config.Config, a *app, log logger.Logger) (*scheduler.Scheduler, error) {
	if cfg.Retention.Disabled {
		return nil, nil
	}
	if a.db == nil {
		log.Info("History retention skipped, no database configured")
		return nil, nil
	}

	sched := scheduler.New(time.UTC, log)
	job := scheduler.RetentionJob(a.gateway, cfg.Retention.MaxAge, nil, log)
	if err := sched.AddJob(scheduler.RetentionJobName, cfg.Retention.Schedule, job); err != nil {
		return nil, fmt.Errorf("schedule history retention: %w", err)
	}
	sched.Start()

	if next, ok := sched.Next(scheduler.RetentionJobName); ok {
		log.Info("History retention scheduled",
			logger.String("schedule", cfg.Retention.Schedule),
			logger.Duration("max_age", cfg.Retention.MaxAge),
			logger.Time("next_run", next),
		)
	}
	return sched, nil
}

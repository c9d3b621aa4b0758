package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"instalytics/internal/adapters/apify"
	"instalytics/internal/adapters/localstorage"
	"instalytics/internal/adapters/postgres"
	"instalytics/internal/adapters/rediscache"
	"instalytics/internal/cache"
	"instalytics/internal/config"
	"instalytics/internal/core/ports"
	"instalytics/internal/handler"
	"instalytics/internal/logger"
	"instalytics/internal/service"
	"instalytics/internal/telemetry"
)

// app is the wired analysis pipeline.
type app struct {
	analyzer *service.Analyzer
	metrics  *telemetry.Metrics
	db       *sqlx.DB
	redis    *goredis.Client
	gateway  *cache.Gateway
}

// openDatabase connects to PostgreSQL when it is configured.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.DSN(),
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &app{metrics: telemetry.New(reg)}

	client, err := apify.NewClient(apify.Config{
		Token:          cfg.Apify.Token,
		BaseURL:        cfg.Apify.BaseURL,
		ActorID:        cfg.Apify.ActorID,
		RequestTimeout: cfg.Apify.RequestTimeout,
		RetryAttempts:  cfg.Apify.RetryAttempts,
		RetryDelay:     cfg.Apify.RetryDelay,
	}, log.With(logger.String("component", "apify")))
	if err != nil {
		return nil, fmt.Errorf("create apify client: %w", err)
	}

	if a.db, err = openDatabase(ctx, cfg.Database); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		a.redis, err = rediscache.NewClient(ctx, rediscache.Config{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	deps := service.AnalyzerDeps{
		Launcher: service.NewLauncher(client, service.LaunchOptions{
			ResultsLimit:    cfg.Apify.ResultsLimit,
			AddParentData:   cfg.Apify.ParentData(),
			SkipPinnedPosts: cfg.Apify.SkipPinnedPosts,
		}, log),
		Poller:  service.NewPoller(client, a.metrics, log),
		Metrics: a.metrics,
		Logger:  log,
	}

	if a.gateway = newGateway(cfg, a.db, a.redis, log); a.gateway != nil {
		deps.Cache = a.gateway
	}
	if cfg.Archive.Dir != "" {
		deps.Archive = localstorage.NewLocalStorage(cfg.Archive.Dir)
	}

	a.analyzer = service.NewAnalyzer(deps, service.PollOptions{
		MaxWait:  cfg.Poll.MaxWait,
		Interval: cfg.Poll.Interval,
	})

	log.Info("Pipeline ready",
		logger.Bool("database", a.db != nil),
		logger.Bool("redis", a.redis != nil),
		logger.Bool("archive", cfg.Archive.Dir != ""),
		logger.Duration("poll_max_wait", cfg.Poll.MaxWait),
	)
	return a, nil
}

// newGateway combines whichever cache tiers are configured, or returns nil if none is.
func newGateway(cfg *config.Config, db *sqlx.DB, rc *goredis.Client, log logger.Logger) *cache.Gateway {
	if db == nil && rc == nil {
		return nil
	}

	var store ports.CacheGateway
	if db != nil {
		store = postgres.NewRepository(db, cfg.Cache.Freshness)
	}
	var hot cache.HotCache
	if rc != nil {
		hot = rediscache.New(rc, cfg.Redis.KeyPrefix, cfg.Redis.TTL, log)
	}

	return cache.NewGateway(store, hot, cache.Config{
		Freshness: cfg.Cache.Freshness,
		HotTTL:    cfg.Redis.TTL,
	}, log)
}

// healthChecks lists the dependencies reported by /health.
func (a *app) healthChecks() map[string]handler.Pinger {
	checks := map[string]handler.Pinger{}
	if a.db != nil {
		checks["database"] = handler.PingFunc(a.db.PingContext)
	}
	if a.redis != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	return checks
}

// historyReader returns the history source, or nil when no database is configured.
func (a *app) historyReader() handler.HistoryReader {
	if a.db == nil || a.gateway == nil {
		return nil
	}
	return a.gateway
}

// Close releases the database and redis connections.
func (a *app) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

// Package cache combines the Redis hot cache and the PostgreSQL store behind one gateway.
package cache

import (
	"context"
	"errors"
	"time"

	"instalytics/internal/core/domain"
	"instalytics/internal/core/ports"
	"instalytics/internal/logger"
)

// ErrHistoryUnavailable is returned by QueryHistory when no database is configured.
var ErrHistoryUnavailable = errors.New("search history requires a database")

// HotCache is a short-lived cache in front of the store.
type HotCache interface {
	Get(ctx context.Context, username string) (*domain.AnalysisResult, error)
	Set(ctx context.Context, result *domain.AnalysisResult, ttl time.Duration) error
}

// Config tunes the gateway.
type Config struct {
	// Freshness is the age after which an analysis is no longer served.
	Freshness time.Duration
	// HotTTL caps how long an entry lives in the hot cache.
	HotTTL time.Duration
}

// Gateway reads through the hot cache into the store and writes through both.
// Either tier may be nil.
type Gateway struct {
	store  ports.CacheGateway
	hot    HotCache
	cfg    Config
	logger logger.Logger

	Now func() time.Time
}

var _ ports.CacheGateway = (*Gateway)(nil)

// NewGateway creates a gateway over store and hot.
func NewGateway(store ports.CacheGateway, hot HotCache, cfg Config, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gateway{store: store, hot: hot, cfg: cfg, logger: log, Now: time.Now}
}

// Lookup returns a fresh analysis of username from the hot cache, then the store.
// Store hits are copied into the hot cache.
func (g *Gateway) Lookup(ctx context.Context, username string) (*domain.AnalysisResult, error) {
	if g.cfg.Freshness <= 0 {
		return nil, nil
	}

	if g.hot != nil {
		result, err := g.hot.Get(ctx, username)
		if err != nil {
			g.logger.Warn("Hot cache lookup failed", logger.String("username", username), logger.Error(err))
		} else if result != nil && g.fresh(result) {
			return result, nil
		}
	}

	if g.store == nil {
		return nil, nil
	}

	result, err := g.store.Lookup(ctx, username)
	if err != nil || result == nil {
		return nil, err
	}
	if !g.fresh(result) {
		return nil, nil
	}

	g.setHot(ctx, result)
	return result, nil
}

// Store writes result to the store, then the hot cache. Only store failures are returned.
func (g *Gateway) Store(ctx context.Context, result *domain.AnalysisResult) error {
	if result == nil {
		return errors.New("nil analysis result")
	}
	if g.store != nil {
		if err := g.store.Store(ctx, result); err != nil {
			return err
		}
	}
	g.setHot(ctx, result)
	return nil
}

// AppendHistory records entry in the store. Without a store the entry is dropped.
func (g *Gateway) AppendHistory(ctx context.Context, entry domain.SearchHistoryEntry) error {
	if g.store == nil {
		g.logger.Debug("No database configured, search history not recorded",
			logger.String("username", entry.Username))
		return nil
	}
	return g.store.AppendHistory(ctx, entry)
}

// QueryHistory returns one page of history from the store.
func (g *Gateway) QueryHistory(ctx context.Context, filters domain.HistoryFilters) (domain.HistoryPage, error) {
	if g.store == nil {
		return domain.HistoryPage{}, ErrHistoryUnavailable
	}
	return g.store.QueryHistory(ctx, filters)
}

// PruneHistory deletes old history from the store.
func (g *Gateway) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	if g.store == nil {
		return 0, nil
	}
	return g.store.PruneHistory(ctx, before)
}

func (g *Gateway) remaining(result *domain.AnalysisResult) time.Duration {
	return g.cfg.Freshness - g.Now().Sub(result.Timestamp)
}

func (g *Gateway) fresh(result *domain.AnalysisResult) bool {
	return g.remaining(result) > 0
}

// setHot caches result until it goes stale, capped at HotTTL.
func (g *Gateway) setHot(ctx context.Context, result *domain.AnalysisResult) {
	if g.hot == nil {
		return
	}
	ttl := g.remaining(result)
	if g.cfg.HotTTL > 0 && g.cfg.HotTTL < ttl {
		ttl = g.cfg.HotTTL
	}
	if ttl <= 0 {
		return
	}
	if err := g.hot.Set(ctx, result, ttl); err != nil {
		g.logger.Warn("Failed to populate hot cache",
			logger.String("username", result.Profile.Username), logger.Error(err))
	}
}

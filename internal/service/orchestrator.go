package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"instalytics/internal/core/domain"
	"instalytics/internal/core/ports"
	"instalytics/internal/engagement"
	"instalytics/internal/handle"
	"instalytics/internal/logger"
	"instalytics/internal/normalize"
	"instalytics/internal/telemetry"
)

// PollOptions bound how long a job is waited for.
type PollOptions struct {
	MaxWait  time.Duration
	Interval time.Duration
}

// AnalyzeRequest is one caller's request to analyze a handle.
type AnalyzeRequest struct {
	Username string
	UserID   string
	// Refresh skips the cache and always launches a new job.
	Refresh bool
}

// Analyzer coordinates validation, caching, scraping and normalization of a profile.
type Analyzer struct {
	launcher   *Launcher
	poller     *Poller
	normalizer *normalize.Normalizer
	cache      ports.CacheGateway
	archive    ports.Archive
	metrics    *telemetry.Metrics
	logger     logger.Logger
	poll       PollOptions
	now        func() time.Time

	flights singleflight.Group
}

// AnalyzerDeps are the collaborators of an Analyzer. Cache, Archive and Metrics are optional.
type AnalyzerDeps struct {
	Launcher   *Launcher
	Poller     *Poller
	Normalizer *normalize.Normalizer
	Cache      ports.CacheGateway
	Archive    ports.Archive
	Metrics    *telemetry.Metrics
	Logger     logger.Logger
}

// NewAnalyzer creates a new Analyzer.
func NewAnalyzer(deps AnalyzerDeps, poll PollOptions) *Analyzer {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New()
	}
	return &Analyzer{
		launcher:   deps.Launcher,
		poller:     deps.Poller,
		normalizer: deps.Normalizer,
		cache:      deps.Cache,
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		poll:       poll,
		now:        time.Now,
	}
}

// Analyze validates the handle, serves a fresh cached analysis when there is one, and
// otherwise scrapes the profile. Concurrent analyses of the same handle share one job.
// Every attempt past validation is recorded in the search history.
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*domain.AnalysisResult, error) {
	username, err := handle.Validate(req.Username)
	if err != nil {
		a.metrics.ObserveAnalysis(err, false)
		return nil, err
	}
	log := a.logger.With(logger.String("username", username))

	if !req.Refresh {
		if cached := a.lookup(ctx, log, username); cached != nil {
			log.Info("Serving cached analysis", logger.Time("analyzed_at", cached.Timestamp))
			a.metrics.ObserveAnalysis(nil, true)
			a.recordHistory(ctx, log, req.UserID, username, cached, nil)
			return cached, nil
		}
	}

	result, err := a.shared(ctx, username)
	a.metrics.ObserveAnalysis(err, false)
	a.recordHistory(ctx, log, req.UserID, username, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StartJob validates the handle and launches a job without waiting for it.
func (a *Analyzer) StartJob(ctx context.Context, rawUsername string) (domain.JobHandle, error) {
	username, err := handle.Validate(rawUsername)
	if err != nil {
		return domain.JobHandle{}, err
	}
	return a.launcher.StartJob(ctx, username)
}

// CompleteJob waits for a job started with StartJob, then persists and records the result.
func (a *Analyzer) CompleteJob(ctx context.Context, userID string, h domain.JobHandle) (*domain.AnalysisResult, error) {
	username, err := handle.Validate(h.Username)
	if err != nil {
		return nil, err
	}
	h.Username = username
	log := a.logger.With(logger.String("username", username), logger.String("job_id", h.JobID))

	result, err := a.FetchResults(ctx, h)
	if err == nil {
		a.store(ctx, log, result)
	}
	a.metrics.ObserveAnalysis(err, false)
	a.recordHistory(ctx, log, userID, username, result, err)
	return result, err
}

// FetchResults waits for the job behind h and turns its dataset into an analysis.
// It does not touch the cache or history.
func (a *Analyzer) FetchResults(ctx context.Context, h domain.JobHandle) (*domain.AnalysisResult, error) {
	log := a.logger.With(logger.String("job_id", h.JobID), logger.String("username", h.Username))

	items, err := a.poller.AwaitCompletion(ctx, h.JobID, a.poll.MaxWait, a.poll.Interval)
	if err != nil {
		return nil, err
	}

	a.archiveJob(ctx, log, h, items)

	profile, posts, err := a.normalizer.Normalize(items)
	if err != nil {
		log.Error("Failed to normalize job dataset",
			logger.Int("items", len(items)),
			logger.Strings("first_item_keys", firstItemKeys(items)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("normalize job %s: %w", h.JobID, err)
	}

	if profile.Username != h.Username {
		log.Warn("Scraped username differs from requested handle",
			logger.String("scraped_username", profile.Username),
		)
		return nil, fmt.Errorf("%w: job %s scraped %q for %q",
			domain.ErrProfileNotFound, h.JobID, profile.Username, h.Username)
	}

	result := &domain.AnalysisResult{
		Profile:           profile,
		Posts:             posts,
		EngagementMetrics: engagement.Compute(profile, posts),
		Timestamp:         a.now().UTC(),
	}

	log.Info("Analysis completed",
		logger.Int64("followers", profile.FollowersCount),
		logger.Int("posts", len(posts)),
		logger.Any("engagement_rate", result.EngagementMetrics.EngagementRate),
	)
	return result, nil
}

// shared runs one scrape per username at a time. A caller whose flight was led by a
// request that got cancelled joins a fresh flight once, using its own context.
func (a *Analyzer) shared(ctx context.Context, username string) (*domain.AnalysisResult, error) {
	for attempt := 0; ; attempt++ {
		ch := a.flights.DoChan(username, func() (any, error) {
			return a.scrape(ctx, username)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil && isContextError(res.Err) && ctx.Err() == nil && attempt == 0 {
				a.logger.Debug("Shared analysis was cancelled by its leader, retrying",
					logger.String("username", username))
				continue
			}
			if res.Err != nil {
				return nil, res.Err
			}
			if res.Shared {
				a.logger.Debug("Joined in-flight analysis", logger.String("username", username))
			}
			result, _ := res.Val.(*domain.AnalysisResult)
			return result, nil
		}
	}
}

func (a *Analyzer) scrape(ctx context.Context, username string) (*domain.AnalysisResult, error) {
	h, err := a.launcher.StartJob(ctx, username)
	if err != nil {
		return nil, err
	}

	result, err := a.FetchResults(ctx, h)
	if err != nil {
		return nil, err
	}

	a.store(ctx, a.logger.With(logger.String("username", username), logger.String("job_id", h.JobID)), result)
	return result, nil
}

func (a *Analyzer) lookup(ctx context.Context, log logger.Logger, username string) *domain.AnalysisResult {
	if a.cache == nil {
		return nil
	}
	cached, err := a.cache.Lookup(ctx, username)
	a.metrics.ObserveCacheLookup(cached != nil, err)
	if err != nil {
		log.Warn("Cache lookup failed, scraping instead", logger.Error(err))
		return nil
	}
	return cached
}

// store persists result. Failures are logged; the caller still gets the analysis.
func (a *Analyzer) store(ctx context.Context, log logger.Logger, result *domain.AnalysisResult) {
	if a.cache == nil || result == nil {
		return
	}
	if err := a.cache.Store(ctx, result); err != nil {
		log.Warn("Failed to store analysis", logger.Error(err))
	}
}

func (a *Analyzer) recordHistory(
	ctx context.Context,
	log logger.Logger,
	userID, username string,
	result *domain.AnalysisResult,
	analysisErr error,
) {
	if a.cache == nil {
		return
	}
	// A cancelled request is not an analysis outcome.
	if analysisErr != nil && ctx.Err() != nil {
		return
	}

	entry := domain.SearchHistoryEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Username:  username,
		Timestamp: a.now().UTC(),
		Status:    domain.HistorySuccess,
		Result:    result,
	}
	if analysisErr != nil {
		msg := domain.UserMessage(analysisErr)
		entry.Status = domain.HistoryError
		entry.Result = nil
		entry.ErrorMessage = &msg
	}

	// Use a context that survives the caller disconnecting right after the response.
	histCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.cache.AppendHistory(histCtx, entry); err != nil {
		log.Warn("Failed to record search history", logger.Error(err))
	}
}

func (a *Analyzer) archiveJob(ctx context.Context, log logger.Logger, h domain.JobHandle, items []domain.RawItem) {
	if a.archive == nil {
		return
	}

	if err := a.archive.InitJob(ctx, h.JobID); err != nil {
		log.Warn("Failed to init job archive", logger.Error(err))
		return
	}

	input, _ := json.MarshalIndent(a.launcher.Request(h.Username), "", "  ")
	if err := a.archive.SaveInput(ctx, h.JobID, input); err != nil {
		log.Warn("Failed to archive job input", logger.Error(err))
	}

	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		log.Warn("Failed to encode job dataset", logger.Error(err))
		return
	}
	if err := a.archive.SaveItems(ctx, h.JobID, raw); err != nil {
		log.Warn("Failed to archive job dataset", logger.Error(err))
		return
	}
	log.Debug("Archived job dataset", logger.String("path", a.archive.GetJobPath(h.JobID)))
}

func firstItemKeys(items []domain.RawItem) []string {
	if len(items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(items[0]))
	for k := range items[0] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

package service

import (
	"context"
	"fmt"
	"time"

	"instalytics/internal/core/domain"
	"instalytics/internal/core/ports"
	"instalytics/internal/logger"
)

// LaunchOptions are the scraper flags sent with every job.
type LaunchOptions struct {
	ResultsLimit    int
	AddParentData   bool
	SkipPinnedPosts bool
}

// Launcher submits scrape jobs to the actor service.
type Launcher struct {
	actor  ports.ActorService
	opts   LaunchOptions
	now    func() time.Time
	logger logger.Logger
}

// NewLauncher creates a new Launcher.
func NewLauncher(actor ports.ActorService, opts LaunchOptions, log logger.Logger) *Launcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Launcher{actor: actor, opts: opts, now: time.Now, logger: log}
}

// Request builds the actor payload for one sanitized username.
func (l *Launcher) Request(username string) domain.ScrapeRequest {
	return domain.ScrapeRequest{
		Usernames:       []string{username},
		ResultsLimit:    l.opts.ResultsLimit,
		AddParentData:   l.opts.AddParentData,
		SkipPinnedPosts: l.opts.SkipPinnedPosts,
	}
}

// StartJob launches one remote job for username, which must already be sanitized.
// Any submission failure wraps domain.ErrLaunchFailure.
func (l *Launcher) StartJob(ctx context.Context, username string) (domain.JobHandle, error) {
	job, err := l.actor.Launch(ctx, l.Request(username))
	if err != nil {
		l.logger.Error("Failed to launch scrape job",
			logger.String("username", username),
			logger.Error(err),
		)
		return domain.JobHandle{}, fmt.Errorf("%w: %w", domain.ErrLaunchFailure, err)
	}

	l.logger.Info("Scrape job launched",
		logger.String("job_id", job.ID),
		logger.String("username", username),
	)

	return domain.JobHandle{
		JobID:     job.ID,
		Username:  username,
		StartedAt: l.now().UTC(),
	}, nil
}

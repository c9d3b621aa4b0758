package service

import (
	"context"
	"fmt"
	"time"

	"instalytics/internal/core/domain"
	"instalytics/internal/core/ports"
	"instalytics/internal/logger"
	"instalytics/internal/telemetry"
)

// maxStatusErrors is how many consecutive failed status checks end polling.
const maxStatusErrors = 3

// Poller waits for a scrape job to reach a terminal state.
//
// Status checks are strictly sequential. Now and Sleep are swappable so tests can
// drive the loop with a fake clock.
type Poller struct {
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	actor   ports.ActorService
	metrics *telemetry.Metrics
	logger  logger.Logger
}

// NewPoller creates a new Poller using the wall clock.
func NewPoller(actor ports.ActorService, metrics *telemetry.Metrics, log logger.Logger) *Poller {
	if log == nil {
		log = logger.NewNop()
	}
	return &Poller{
		Now:     time.Now,
		Sleep:   sleepContext,
		actor:   actor,
		metrics: metrics,
		logger:  log,
	}
}

// AwaitCompletion polls jobID every interval until it terminates or maxWait elapses, and
// returns the job's dataset items on success.
//
// Upstream failure maps to domain.ErrJobFailed, upstream timeout or abort to
// domain.ErrJobAborted, and giving up locally to domain.ErrPollTimeout. Cancelling ctx
// stops polling immediately.
func (p *Poller) AwaitCompletion(ctx context.Context, jobID string, maxWait, interval time.Duration) ([]domain.RawItem, error) {
	log := p.logger.With(logger.String("job_id", jobID))
	start := p.Now()
	ticks := 0
	statusErrors := 0
	lastStatus := domain.JobQueued

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}

		ticks++
		p.metrics.ObservePollTick()

		job, err := p.actor.GetRun(ctx, jobID)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, fmt.Errorf("poll job %s: %w", jobID, ctx.Err())
		case err != nil:
			statusErrors++
			log.Warn("Job status check failed", logger.Int("tick", ticks), logger.Error(err))
			if statusErrors >= maxStatusErrors {
				return nil, fmt.Errorf("check status of job %s: %w", jobID, err)
			}
		default:
			statusErrors = 0
			lastStatus = job.Status
			log.Debug("Job status", logger.Int("tick", ticks), logger.String("status", job.UpstreamState))

			if job.Status.IsTerminal() {
				p.metrics.ObserveJobDuration(p.Now().Sub(start))
				return p.finish(ctx, log, job, ticks)
			}
		}

		elapsed := p.Now().Sub(start)
		if elapsed >= maxWait {
			return nil, p.timeout(log, jobID, lastStatus, elapsed, ticks)
		}

		if err := p.Sleep(ctx, min(interval, maxWait-elapsed)); err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}

		if elapsed = p.Now().Sub(start); elapsed >= maxWait {
			return nil, p.timeout(log, jobID, lastStatus, elapsed, ticks)
		}
	}
}

func (p *Poller) finish(ctx context.Context, log logger.Logger, job domain.ScrapeJob, ticks int) ([]domain.RawItem, error) {
	switch job.Status {
	case domain.JobSucceeded:
		items, err := p.actor.ListItems(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch dataset of job %s: %w", job.ID, err)
		}
		log.Info("Job succeeded", logger.Int("ticks", ticks), logger.Int("items", len(items)))
		return items, nil

	case domain.JobFailed:
		log.Warn("Job failed upstream",
			logger.String("status", job.UpstreamState),
			logger.String("status_message", job.StatusMessage),
		)
		return nil, &domain.JobError{JobID: job.ID, Status: job.UpstreamState, Reason: job.StatusMessage, Err: domain.ErrJobFailed}

	default:
		log.Warn("Job ended without result",
			logger.String("status", job.UpstreamState),
			logger.String("status_message", job.StatusMessage),
		)
		return nil, &domain.JobError{JobID: job.ID, Status: job.UpstreamState, Reason: job.StatusMessage, Err: domain.ErrJobAborted}
	}
}

func (p *Poller) timeout(log logger.Logger, jobID string, status domain.JobStatus, elapsed time.Duration, ticks int) error {
	p.metrics.ObserveJobDuration(elapsed)
	log.Warn("Gave up waiting for job",
		logger.Duration("elapsed", elapsed),
		logger.Int("ticks", ticks),
		logger.String("last_status", string(status)),
	)
	return fmt.Errorf("%w: job %s still %s after %s", domain.ErrPollTimeout, jobID, status, elapsed.Round(time.Millisecond))
}

// sleepContext waits for d or until ctx is done, releasing its timer either way.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

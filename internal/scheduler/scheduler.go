// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"instalytics/internal/logger"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 10 * time.Minute

// Job represents a scheduled task.
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks.
type Scheduler struct {
	cron   *cron.Cron
	logger logger.Logger

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a scheduler evaluating schedules in loc.
func New(loc *time.Location, log logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		logger: log,
		jobs:   make(map[string]cron.EntryID),
	}
}

// AddJob schedules job under name. schedule uses the standard five-field cron format
// or a descriptor such as "@daily".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(name, job); err != nil {
			s.logger.Error("Scheduled job failed", logger.String("job", name), logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.logger.Info("Scheduled job", logger.String("job", name), logger.String("schedule", schedule))
	return nil
}

// RunNow executes job immediately with the default timeout.
func (s *Scheduler) RunNow(name string, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultJobTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Debug("Starting job", logger.String("job", name))
	if err := job(ctx); err != nil {
		return err
	}
	s.logger.Info("Job completed", logger.String("job", name), logger.Duration("duration", time.Since(start)))
	return nil
}

// Next returns when the named job runs next, or false if it is unknown or not started.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping scheduler")
	return s.cron.Stop()
}

package ports

import (
	"context"
	"time"

	"instalytics/internal/core/domain"
)

// ActorService defines the contract for the external batch scraping service.
type ActorService interface {
	// Launch submits a scrape request and returns the created job.
	Launch(ctx context.Context, req domain.ScrapeRequest) (domain.ScrapeJob, error)

	// GetRun returns the current state of a job.
	GetRun(ctx context.Context, jobID string) (domain.ScrapeJob, error)

	// ListItems returns every item of the job's output dataset.
	ListItems(ctx context.Context, jobID string) ([]domain.RawItem, error)
}

// CacheGateway defines the contract for the analysis cache and search history store.
type CacheGateway interface {
	// Lookup returns a fresh cached analysis, or nil when there is none.
	Lookup(ctx context.Context, username string) (*domain.AnalysisResult, error)

	// Store persists an analysis so later lookups can reuse it.
	Store(ctx context.Context, result *domain.AnalysisResult) error

	// AppendHistory records one analysis attempt.
	AppendHistory(ctx context.Context, entry domain.SearchHistoryEntry) error

	// QueryHistory returns one filtered, ordered page of history.
	QueryHistory(ctx context.Context, filters domain.HistoryFilters) (domain.HistoryPage, error)

	// PruneHistory deletes history entries recorded before the cutoff.
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

// Archive defines the contract for keeping raw job artifacts for diagnostics.
type Archive interface {
	// InitJob creates the job directory structure.
	InitJob(ctx context.Context, jobID string) error

	// SaveInput saves the launch payload.
	SaveInput(ctx context.Context, jobID string, data []byte) error

	// SaveItems saves the raw dataset items without modification.
	SaveItems(ctx context.Context, jobID string, data []byte) error

	// GetJobPath returns the filesystem path for a given job ID.
	GetJobPath(jobID string) string
}

package service_test

import (
	"context"
	"sync"
	"time"

	"instalytics/internal/core/domain"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

// fakeActor replays a status sequence; the last status repeats.
type fakeActor struct {
	mu sync.Mutex

	statuses  []domain.JobStatus
	runErrs   []error
	items     []domain.RawItem
	launchErr error
	listErr   error

	// started is closed on the first Launch; Launch then waits for release when set.
	started chan struct{}
	release chan struct{}

	launches    int
	gets        int
	lastRequest domain.ScrapeRequest
}

func (f *fakeActor) Launch(ctx context.Context, req domain.ScrapeRequest) (domain.ScrapeJob, error) {
	f.mu.Lock()
	f.launches++
	n := f.launches
	f.lastRequest = req
	started, release := f.started, f.release
	f.mu.Unlock()

	if n == 1 && started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.ScrapeJob{}, ctx.Err()
		}
	}

	if f.launchErr != nil {
		return domain.ScrapeJob{}, f.launchErr
	}
	return domain.ScrapeJob{ID: "run-1", Status: domain.JobQueued, UpstreamState: "READY"}, nil
}

func (f *fakeActor) GetRun(_ context.Context, jobID string) (domain.ScrapeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.gets
	f.gets++

	if i < len(f.runErrs) && f.runErrs[i] != nil {
		return domain.ScrapeJob{}, f.runErrs[i]
	}

	status := domain.JobRunning
	if len(f.statuses) > 0 {
		status = f.statuses[min(i, len(f.statuses)-1)]
	}
	return domain.ScrapeJob{
		ID:            jobID,
		Status:        status,
		UpstreamState: upstreamName(status),
		StatusMessage: "status " + string(status),
	}, nil
}

func (f *fakeActor) ListItems(context.Context, string) ([]domain.RawItem, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeActor) counts() (launches, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches, f.gets
}

func upstreamName(s domain.JobStatus) string {
	switch s {
	case domain.JobQueued:
		return "READY"
	case domain.JobRunning:
		return "RUNNING"
	case domain.JobSucceeded:
		return "SUCCEEDED"
	case domain.JobFailed:
		return "FAILED"
	case domain.JobTimedOut:
		return "TIMED-OUT"
	case domain.JobAborted:
		return "ABORTED"
	default:
		return string(s)
	}
}

// fakeCache is an in-memory ports.CacheGateway.
type fakeCache struct {
	mu       sync.Mutex
	results  map[string]*domain.AnalysisResult
	history  []domain.SearchHistoryEntry
	storeErr error
	lookErr  error
	stores   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{results: map[string]*domain.AnalysisResult{}}
}

func (c *fakeCache) Lookup(_ context.Context, username string) (*domain.AnalysisResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookErr != nil {
		return nil, c.lookErr
	}
	return c.results[username], nil
}

func (c *fakeCache) Store(_ context.Context, result *domain.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	if c.storeErr != nil {
		return c.storeErr
	}
	c.results[result.Profile.Username] = result
	return nil
}

func (c *fakeCache) AppendHistory(_ context.Context, entry domain.SearchHistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, entry)
	return nil
}

func (c *fakeCache) QueryHistory(context.Context, domain.HistoryFilters) (domain.HistoryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.HistoryPage{Entries: c.history, Total: len(c.history)}, nil
}

func (c *fakeCache) PruneHistory(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (c *fakeCache) entries() []domain.SearchHistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SearchHistoryEntry(nil), c.history...)
}

// fakeArchive records what it was asked to save.
type fakeArchive struct {
	mu     sync.Mutex
	inputs map[string][]byte
	items  map[string][]byte
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{inputs: map[string][]byte{}, items: map[string][]byte{}}
}

func (a *fakeArchive) InitJob(context.Context, string) error { return nil }

func (a *fakeArchive) SaveInput(_ context.Context, jobID string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs[jobID] = data
	return nil
}

func (a *fakeArchive) SaveItems(_ context.Context, jobID string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[jobID] = data
	return nil
}

func (a *fakeArchive) GetJobPath(jobID string) string { return "/archive/jobs/" + jobID }

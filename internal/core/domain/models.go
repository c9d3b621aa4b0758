package domain

import "time"

// JobStatus is the lifecycle state of a remote scrape job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobTimedOut  JobStatus = "timed_out"
	JobAborted   JobStatus = "aborted"
)

// IsTerminal reports whether the external service will no longer change the status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobTimedOut, JobAborted:
		return true
	default:
		return false
	}
}

// ScrapeJob is one invocation of the external scraping actor.
type ScrapeJob struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	UpstreamState string    `json:"upstreamStatus,omitempty"` // raw status string, kept for diagnostics
	DatasetID     string    `json:"datasetId,omitempty"`
	StatusMessage string    `json:"statusMessage,omitempty"`
}

// JobHandle is what the launcher hands back to callers.
type JobHandle struct {
	JobID     string    `json:"jobId"`
	Username  string    `json:"username"`
	StartedAt time.Time `json:"startedAt"`
}

// ScrapeRequest is the payload submitted to the actor service.
type ScrapeRequest struct {
	Usernames       []string `json:"usernames"`
	ResultsLimit    int      `json:"resultsLimit"`
	AddParentData   bool     `json:"addParentData"`
	SkipPinnedPosts bool     `json:"skipPinnedPosts"`
}

// RawItem is one untyped dataset item as returned by the scraper.
type RawItem map[string]any

// Profile is the canonical Instagram profile.
type Profile struct {
	Username       string `json:"username"`
	FullName       string `json:"fullName"`
	Biography      string `json:"biography"`
	FollowersCount int64  `json:"followersCount"`
	FollowingCount int64  `json:"followingCount"`
	PostsCount     int64  `json:"postsCount"`
	ProfilePicURL  string `json:"profilePicUrl"`
	IsPrivate      bool   `json:"isPrivate"`
	IsVerified     bool   `json:"isVerified"`
}

// Post is the canonical Instagram post.
type Post struct {
	ID            string    `json:"id"`
	Caption       string    `json:"caption"`
	LikesCount    int64     `json:"likesCount"`
	CommentsCount int64     `json:"commentsCount"`
	Timestamp     time.Time `json:"timestamp"`
	URL           string    `json:"url"`
	MediaType     string    `json:"mediaType"`
	MediaURL      string    `json:"mediaUrl"`
	LocationName  *string   `json:"locationName,omitempty"`
}

// EngagementMetrics is derived from posts and never stored as a source of truth.
type EngagementMetrics struct {
	EngagementRate     float64 `json:"engagementRate"`
	PostingFrequency   float64 `json:"postingFrequency"`
	AverageLikes       int64   `json:"averageLikes"`
	AverageComments    int64   `json:"averageComments"`
	BestPerformingPost *Post   `json:"bestPerformingPost,omitempty"`
}

// AnalysisResult is the immutable outcome of one analysis.
type AnalysisResult struct {
	Profile           Profile           `json:"profile"`
	Posts             []Post            `json:"posts"`
	EngagementMetrics EngagementMetrics `json:"engagementMetrics"`
	Timestamp         time.Time         `json:"timestamp"`
}

// HistoryStatus is the outcome recorded for a search.
type HistoryStatus string

const (
	HistorySuccess HistoryStatus = "success"
	HistoryError   HistoryStatus = "error"
)

// SearchHistoryEntry records one analysis attempt.
type SearchHistoryEntry struct {
	ID           string          `json:"id"              db:"id"`
	UserID       string          `json:"-"               db:"user_id"`
	Username     string          `json:"username"        db:"username"`
	Timestamp    time.Time       `json:"timestamp"       db:"timestamp"`
	Status       HistoryStatus   `json:"status"          db:"status"`
	Result       *AnalysisResult `json:"result"          db:"-"`
	ErrorMessage *string         `json:"errorMessage"    db:"error_message"`
}

// HistoryPage is one page of search history.
type HistoryPage struct {
	Entries []SearchHistoryEntry `json:"entries"`
	Total   int                  `json:"total"`
}

package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"instalytics/internal/core/domain"
	"instalytics/internal/logger"
)

const (
	DefaultBaseURL = "https://api.apify.com"
	DefaultActorID = "apify/instagram-profile-scraper"

	// maxErrorBody caps how much of an error response is read for diagnostics.
	maxErrorBody = 4 << 10
)

// Config configures the Apify REST v2 client.
type Config struct {
	Token          string
	BaseURL        string
	ActorID        string
	RequestTimeout time.Duration
	RetryAttempts  uint
	RetryDelay     time.Duration
}

// Client implements ports.ActorService using the Apify REST API.
type Client struct {
	token    string
	baseURL  string
	actorID  string
	http     *http.Client
	attempts uint
	delay    time.Duration
	log      logger.Logger
}

// NewClient creates a new Client.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("apify token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ActorID == "" {
		cfg.ActorID = DefaultActorID
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 1
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		token:    cfg.Token,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		actorID:  strings.ReplaceAll(cfg.ActorID, "/", "~"),
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		log:      log,
	}, nil
}

// HTTPError is a non-2xx response from the Apify API.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Type       string
	Message    string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("apify %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Type != "" {
		msg += " (" + e.Type + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap exposes quota exhaustion as domain.ErrRateLimited.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return nil
}

type runEnvelope struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		StatusMessage    string `json:"statusMessage"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

func (r runEnvelope) job() domain.ScrapeJob {
	status, _ := MapStatus(r.Data.Status)
	return domain.ScrapeJob{
		ID:            r.Data.ID,
		Status:        status,
		UpstreamState: r.Data.Status,
		DatasetID:     r.Data.DefaultDatasetID,
		StatusMessage: r.Data.StatusMessage,
	}
}

// Launch starts an actor run. It is not retried: every attempt costs quota.
func (c *Client) Launch(ctx context.Context, req domain.ScrapeRequest) (domain.ScrapeJob, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.ScrapeJob{}, fmt.Errorf("encode actor input: %w", err)
	}

	path := "/v2/acts/" + url.PathEscape(c.actorID) + "/runs"
	var env runEnvelope
	if err := c.do(ctx, http.MethodPost, path, nil, body, &env); err != nil {
		return domain.ScrapeJob{}, err
	}
	if env.Data.ID == "" {
		return domain.ScrapeJob{}, errors.New("apify returned a run without an id")
	}

	job := env.job()
	c.log.Info("Actor run started",
		logger.String("job_id", job.ID),
		logger.String("actor", c.actorID),
		logger.String("status", job.UpstreamState),
	)
	return job, nil
}

// GetRun returns the current state of a run.
func (c *Client) GetRun(ctx context.Context, jobID string) (domain.ScrapeJob, error) {
	path := "/v2/actor-runs/" + url.PathEscape(jobID)

	env, err := withRetry(ctx, c, path, func() (runEnvelope, error) {
		var env runEnvelope
		err := c.do(ctx, http.MethodGet, path, nil, nil, &env)
		return env, err
	})
	if err != nil {
		return domain.ScrapeJob{}, err
	}

	job := env.job()
	if _, known := MapStatus(job.UpstreamState); !known {
		c.log.Warn("Unknown actor run status, treating as running",
			logger.String("job_id", jobID),
			logger.String("status", job.UpstreamState),
		)
	}
	return job, nil
}

// ListItems returns the run's default dataset. Numbers are kept as json.Number so
// large post ids survive decoding.
func (c *Client) ListItems(ctx context.Context, jobID string) ([]domain.RawItem, error) {
	path := "/v2/actor-runs/" + url.PathEscape(jobID) + "/dataset/items"
	query := url.Values{"clean": {"true"}, "format": {"json"}}

	return withRetry(ctx, c, path, func() ([]domain.RawItem, error) {
		var items []domain.RawItem
		err := c.do(ctx, http.MethodGet, path, query, nil, &items)
		return items, err
	})
}

func withRetry[T any](ctx context.Context, c *Client, path string, fn func() (T, error)) (T, error) {
	return retry.DoWithData(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxJitter(c.delay/2),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("Retrying apify request",
				logger.String("path", path),
				logger.Int("attempt", int(n)+1),
				logger.Error(err),
			)
		}),
	)
}

// isRetryable reports whether err is transient: 429, 5xx or a transport failure.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError
	}
	var syntaxErr *json.SyntaxError
	return !errors.As(err, &syntaxErr)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build apify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apify %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readHTTPError(resp, method, path)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode apify %s %s: %w", method, path, err)
	}
	return nil
}

func readHTTPError(resp *http.Response, method, path string) *HTTPError {
	httpErr := &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		httpErr.Type = env.Error.Type
		httpErr.Message = env.Error.Message
	} else {
		httpErr.Message = strings.TrimSpace(string(raw))
	}
	return httpErr
}

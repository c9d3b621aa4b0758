package apify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instalytics/internal/adapters/apify"
	"instalytics/internal/core/domain"
	"instalytics/internal/logger"
)

func newClient(t *testing.T, srv *httptest.Server) *apify.Client {
	t.Helper()
	c, err := apify.NewClient(apify.Config{
		Token:          "test-token",
		BaseURL:        srv.URL,
		RequestTimeout: 2 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     time.Millisecond,
	}, logger.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := apify.NewClient(apify.Config{}, nil)
	require.Error(t, err)
}

func TestLaunch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/apify~instagram-profile-scraper/runs", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"usernames":["natgeo"],"resultsLimit":50,"addParentData":true,"skipPinnedPosts":false}`, string(body))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"run-1","status":"READY","defaultDatasetId":"ds-1"}}`))
	}))
	defer srv.Close()

	job, err := newClient(t, srv).Launch(context.Background(), domain.ScrapeRequest{
		Usernames:     []string{"natgeo"},
		ResultsLimit:  50,
		AddParentData: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", job.ID)
	assert.Equal(t, domain.JobQueued, job.Status)
	assert.Equal(t, "READY", job.UpstreamState)
	assert.Equal(t, "ds-1", job.DatasetID)
}

func TestLaunch_NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(t, srv).Launch(context.Background(), domain.ScrapeRequest{Usernames: []string{"x"}})
	require.Error(t, err)

	var httpErr *apify.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLaunch_QuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate-limit-exceeded","message":"You have exceeded the rate limit"}}`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv).Launch(context.Background(), domain.ScrapeRequest{Usernames: []string{"x"}})
	require.ErrorIs(t, err, domain.ErrRateLimited)

	var httpErr *apify.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "rate-limit-exceeded", httpErr.Type)
	assert.Contains(t, err.Error(), "exceeded the rate limit")
}

func TestGetRun_StatusMapping(t *testing.T) {
	tests := []struct {
		upstream string
		want     domain.JobStatus
	}{
		{"READY", domain.JobQueued},
		{"RUNNING", domain.JobRunning},
		{"TIMING-OUT", domain.JobRunning},
		{"ABORTING", domain.JobRunning},
		{"SUCCEEDED", domain.JobSucceeded},
		{"FAILED", domain.JobFailed},
		{"TIMED-OUT", domain.JobTimedOut},
		{"TIMED_OUT", domain.JobTimedOut},
		{"ABORTED", domain.JobAborted},
		{"SOMETHING-NEW", domain.JobRunning},
	}

	for _, tt := range tests {
		t.Run(tt.upstream, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/actor-runs/run-1", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{"id": "run-1", "status": tt.upstream, "statusMessage": "msg"},
				})
			}))
			defer srv.Close()

			job, err := newClient(t, srv).GetRun(context.Background(), "run-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, job.Status)
			assert.Equal(t, tt.upstream, job.UpstreamState)
			assert.Equal(t, "msg", job.StatusMessage)
		})
	}
}

func TestGetRun_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"run-1","status":"RUNNING"}}`))
	}))
	defer srv.Close()

	job, err := newClient(t, srv).GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, job.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetRun_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"record-not-found","message":"Actor run was not found"}}`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv).GetRun(context.Background(), "missing")

	var httpErr *apify.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestListItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/actor-runs/run-1/dataset/items", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("clean"))
		_, _ = w.Write([]byte(`[
			{"username":"natgeo","followersCount":283000000},
			{"id":"3300000000000000001","displayUrl":"u"}
		]`))
	}))
	defer srv.Close()

	items, err := newClient(t, srv).ListItems(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "natgeo", items[0]["username"])
	assert.Equal(t, json.Number("283000000"), items[0]["followersCount"])
	assert.Equal(t, "3300000000000000001", items[1]["id"])
}

func TestListItems_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient(t, srv).ListItems(ctx, "run-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestMapStatus_Known(t *testing.T) {
	_, known := apify.MapStatus("RUNNING")
	assert.True(t, known)

	status, known := apify.MapStatus("")
	assert.False(t, known)
	assert.Equal(t, domain.JobRunning, status)
}

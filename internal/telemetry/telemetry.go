// Package telemetry exports Prometheus metrics for the analysis pipeline.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"instalytics/internal/core/domain"
)

const namespace = "instalytics"

// Analysis outcomes used as the "outcome" label.
const (
	OutcomeSuccess      = "success"
	OutcomeCacheHit     = "cache_hit"
	OutcomeInvalid      = "invalid"
	OutcomeLaunchFailed = "launch_failed"
	OutcomeJobFailed    = "job_failed"
	OutcomeJobAborted   = "job_aborted"
	OutcomePollTimeout  = "poll_timeout"
	OutcomeNotFound     = "not_found"
	OutcomeNormalize    = "normalize_error"
	OutcomeRateLimited  = "rate_limited"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	AnalysesTotal     *prometheus.CounterVec
	CacheLookupsTotal *prometheus.CounterVec
	PollTicksTotal    prometheus.Counter
	JobDuration       prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis requests by outcome",
		}, []string{"outcome"}),
		CacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache gateway lookups by result (hit, miss, error)",
		}, []string{"result"}),
		PollTicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Status checks issued against scrape jobs",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from job launch to a terminal poll result",
			Buckets:   []float64{1, 3, 6, 10, 15, 20, 30, 45, 60, 90},
		}),
		gatherer: reg,
	}
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveAnalysis counts one analysis by the outcome err maps to.
func (m *Metrics) ObserveAnalysis(err error, cacheHit bool) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	if err == nil && cacheHit {
		outcome = OutcomeCacheHit
	}
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup records hit, miss or error.
func (m *Metrics) ObserveCacheLookup(hit bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.CacheLookupsTotal.WithLabelValues("error").Inc()
	case hit:
		m.CacheLookupsTotal.WithLabelValues("hit").Inc()
	default:
		m.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}
}

// ObservePollTick counts one status check.
func (m *Metrics) ObservePollTick() {
	if m == nil {
		return
	}
	m.PollTicksTotal.Inc()
}

// ObserveJobDuration records how long a job took to reach a terminal poll result.
func (m *Metrics) ObserveJobDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.JobDuration.Observe(d.Seconds())
}

// Outcome maps an analysis error onto its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidFormat):
		return OutcomeInvalid
	case errors.Is(err, domain.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, domain.ErrLaunchFailure):
		return OutcomeLaunchFailed
	case errors.Is(err, domain.ErrJobFailed):
		return OutcomeJobFailed
	case errors.Is(err, domain.ErrJobAborted):
		return OutcomeJobAborted
	case errors.Is(err, domain.ErrPollTimeout):
		return OutcomePollTimeout
	case errors.Is(err, domain.ErrProfileNotFound), errors.Is(err, domain.ErrEmptyResult):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrNormalize):
		return OutcomeNormalize
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

package domain

import (
	"errors"
	"fmt"
)

// Analysis failure taxonomy. Every error leaving the core wraps exactly one of these.
var (
	ErrInvalidFormat   = errors.New("invalid instagram handle format")
	ErrLaunchFailure   = errors.New("failed to launch scrape job")
	ErrJobFailed       = errors.New("scrape job failed")
	ErrJobAborted      = errors.New("scrape job aborted")
	ErrPollTimeout     = errors.New("gave up waiting for scrape job")
	ErrEmptyResult     = errors.New("scrape job returned no items")
	ErrProfileNotFound = errors.New("profile not found in scrape results")
	ErrNormalize       = errors.New("unrecognized scrape result shape")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// JobError carries the upstream status of a job that ended badly.
type JobError struct {
	JobID  string
	Status string
	Reason string
	Err    error
}

func (e *JobError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%v: job %s ended with status %s: %s", e.Err, e.JobID, e.Status, e.Reason)
	}
	return fmt.Sprintf("%v: job %s ended with status %s", e.Err, e.JobID, e.Status)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller may reasonably retry the same handle later.
func Retryable(err error) bool {
	return errors.Is(err, ErrLaunchFailure) ||
		errors.Is(err, ErrPollTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// UserMessage returns the caller-facing description of err. Upstream detail is never included.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidFormat):
		return "Invalid Instagram username format."
	case errors.Is(err, ErrRateLimited):
		return "Too many attempts. Please wait a moment before trying again."
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrEmptyResult):
		return "Profile not found or is private. Please check the username."
	case errors.Is(err, ErrJobFailed), errors.Is(err, ErrJobAborted):
		return "The profile analysis failed. The profile may be invalid or Instagram may be unstable."
	case errors.Is(err, ErrLaunchFailure):
		return "The scraping service is unavailable. Please try again in a few minutes."
	case errors.Is(err, ErrPollTimeout):
		return "The analysis took longer than expected. Please try again in a few minutes."
	default:
		return "An unexpected error occurred during the analysis."
	}
}

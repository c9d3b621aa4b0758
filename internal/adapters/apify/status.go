package apify

import "instalytics/internal/core/domain"

// MapStatus translates an Apify run status. Unknown statuses map to running with known=false.
func MapStatus(status string) (s domain.JobStatus, known bool) {
	switch status {
	case "READY":
		return domain.JobQueued, true
	case "RUNNING", "TIMING-OUT", "ABORTING":
		return domain.JobRunning, true
	case "SUCCEEDED":
		return domain.JobSucceeded, true
	case "FAILED":
		return domain.JobFailed, true
	case "TIMED-OUT", "TIMED_OUT":
		return domain.JobTimedOut, true
	case "ABORTED":
		return domain.JobAborted, true
	default:
		return domain.JobRunning, false
	}
}

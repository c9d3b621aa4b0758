package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Apify.Token == "" {
		return &ValidationError{Field: "apify.token", Message: "is required (set APIFY_TOKEN)"}
	}
	if u, err := url.Parse(c.Apify.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: "apify.base_url", Message: "must be an absolute URL"}
	}
	if c.Apify.ResultsLimit < 1 {
		return &ValidationError{Field: "apify.results_limit", Message: "must be at least 1"}
	}
	if c.Poll.Interval <= 0 {
		return &ValidationError{Field: "poll.interval", Message: "must be positive"}
	}
	if c.Poll.MaxWait < c.Poll.Interval {
		return &ValidationError{Field: "poll.max_wait", Message: "must be at least poll.interval"}
	}
	if c.Cache.Freshness < 0 {
		return &ValidationError{Field: "cache.freshness", Message: "must not be negative"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error, fatal"}
	}
	return nil
}

// ValidateServer additionally checks the settings of the HTTP service.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return &ValidationError{Field: "auth.jwt_secret", Message: "is required unless auth.disabled is set"}
	}
	if !c.RateLimit.Disabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return &ValidationError{Field: "rate_limit", Message: "requests and window must be positive"}
	}
	if !c.Retention.Disabled {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			return &ValidationError{Field: "retention.schedule", Message: err.Error()}
		}
		if c.Retention.MaxAge <= 0 {
			return &ValidationError{Field: "retention.max_age", Message: "must be positive"}
		}
	}
	return nil
}

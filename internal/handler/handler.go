// Package handler implements the HTTP handlers of the analysis API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"instalytics/internal/cache"
	"instalytics/internal/core/domain"
	"instalytics/internal/logger"
	"instalytics/internal/service"
)

// statusClientClosedRequest is reported when the caller went away mid-analysis.
const statusClientClosedRequest = 499

// Analyzer is the analysis pipeline as seen by the HTTP layer.
type Analyzer interface {
	Analyze(ctx context.Context, req service.AnalyzeRequest) (*domain.AnalysisResult, error)
	StartJob(ctx context.Context, rawUsername string) (domain.JobHandle, error)
	CompleteJob(ctx context.Context, userID string, h domain.JobHandle) (*domain.AnalysisResult, error)
}

// HistoryReader serves search history pages.
type HistoryReader interface {
	QueryHistory(ctx context.Context, filters domain.HistoryFilters) (domain.HistoryPage, error)
}

// Handler holds the dependencies of the API handlers.
type Handler struct {
	analyzer Analyzer
	history  HistoryReader
	logger   logger.Logger
}

// New creates a new Handler. history may be nil when no store is configured.
func New(analyzer Analyzer, history HistoryReader, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{analyzer: analyzer, history: history, logger: log}
}

// errorClass is the HTTP rendering of a pipeline error.
type errorClass struct {
	status int
	title  string
}

// classifyError maps err to a status code and short title. Rate limiting is checked
// first because a quota rejection at launch also wraps ErrLaunchFailure.
func classifyError(err error) errorClass {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return errorClass{http.StatusTooManyRequests, "Too many requests"}
	case errors.Is(err, domain.ErrInvalidFormat):
		return errorClass{http.StatusBadRequest, "Validation error"}
	case errors.Is(err, domain.ErrProfileNotFound), errors.Is(err, domain.ErrEmptyResult):
		return errorClass{http.StatusNotFound, "Profile not found"}
	case errors.Is(err, domain.ErrJobFailed), errors.Is(err, domain.ErrJobAborted),
		errors.Is(err, domain.ErrLaunchFailure):
		return errorClass{http.StatusBadGateway, "Analysis failed"}
	case errors.Is(err, domain.ErrPollTimeout):
		return errorClass{http.StatusGatewayTimeout, "Analysis timed out"}
	case errors.Is(err, context.Canceled):
		return errorClass{statusClientClosedRequest, "Request cancelled"}
	case errors.Is(err, cache.ErrHistoryUnavailable):
		return errorClass{http.StatusServiceUnavailable, "History unavailable"}
	default:
		return errorClass{http.StatusInternalServerError, "Analysis error"}
	}
}

func (h *Handler) requestLogger(c *gin.Context) logger.Logger {
	return logger.FromContext(c.Request.Context(), h.logger)
}

// respondError logs err with its upstream detail and sends the user-facing message.
// Errors worth retrying later are flagged with "retryable".
func (h *Handler) respondError(c *gin.Context, err error) {
	class := classifyError(err)
	message := domain.UserMessage(err)
	if errors.Is(err, cache.ErrHistoryUnavailable) {
		message = "Search history is not available on this server."
	}

	log := h.requestLogger(c)
	fields := []logger.Field{logger.Int("status", class.status), logger.Error(err)}
	if class.status >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
	} else {
		log.Warn("Request failed", fields...)
	}

	body := gin.H{
		"success": false,
		"error":   class.title,
		"message": message,
	}
	if domain.Retryable(err) {
		body["retryable"] = true
	}
	c.JSON(class.status, body)
}

func respondMessage(c *gin.Context, status int, title, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   title,
		"message": message,
	})
}

func respondData(c *gin.Context, status int, data any, message string) {
	body := gin.H{"success": true, "data": data}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

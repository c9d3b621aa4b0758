package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"instalytics/internal/core/domain"
	"instalytics/internal/logger"
	"instalytics/internal/middleware"
	"instalytics/internal/service"
)

const missingUsernameMessage = "Username is required."

type analyzeRequest struct {
	Username string `json:"username" binding:"required"`
	Refresh  bool   `json:"refresh"`
}

type startJobRequest struct {
	Username string `json:"username" binding:"required"`
}

// Analyze runs a full analysis and waits for it.
// POST /api/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Validation error", missingUsernameMessage)
		return
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), service.AnalyzeRequest{
		Username: req.Username,
		UserID:   middleware.UserID(c),
		Refresh:  req.Refresh,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondData(c, http.StatusOK, result, "Profile analysis completed successfully.")
}

// StartJob launches a scrape job and returns its handle without waiting.
// POST /api/jobs
func (h *Handler) StartJob(c *gin.Context) {
	var req startJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Validation error", missingUsernameMessage)
		return
	}

	jobHandle, err := h.analyzer.StartJob(c.Request.Context(), req.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.requestLogger(c).Info("Job started",
		logger.String("job_id", jobHandle.JobID),
		logger.String("username", jobHandle.Username),
	)
	respondData(c, http.StatusAccepted, jobHandle, "")
}

// GetJob waits for a job started with StartJob and returns its analysis.
// GET /api/jobs/:id?username=
func (h *Handler) GetJob(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		respondMessage(c, http.StatusBadRequest, "Validation error", missingUsernameMessage)
		return
	}

	result, err := h.analyzer.CompleteJob(c.Request.Context(), middleware.UserID(c), domain.JobHandle{
		JobID:    c.Param("id"),
		Username: username,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondData(c, http.StatusOK, result, "Profile analysis completed successfully.")
}

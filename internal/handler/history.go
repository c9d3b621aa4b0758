package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"instalytics/internal/cache"
	"instalytics/internal/core/domain"
	"instalytics/internal/middleware"
)

type historyResponse struct {
	Entries []domain.SearchHistoryEntry `json:"entries"`
	Total   int                         `json:"total"`
	Page    int                         `json:"page"`
	Limit   int                         `json:"limit"`
}

// History lists the caller's past analyses.
// GET /api/history?username=&status=&page=&limit=&orderBy=&orderDirection=
func (h *Handler) History(c *gin.Context) {
	if h.history == nil {
		h.respondError(c, cache.ErrHistoryUnavailable)
		return
	}

	filters := domain.HistoryFilters{
		UserID:         middleware.UserID(c),
		Username:       c.Query("username"),
		Status:         domain.HistoryStatus(c.Query("status")),
		OrderBy:        domain.HistoryOrder(c.Query("orderBy")),
		OrderDirection: domain.SortDirection(c.Query("orderDirection")),
	}

	var err error
	if filters.Page, err = intQuery(c, "page"); err != nil {
		respondMessage(c, http.StatusBadRequest, "Validation error", "page must be a number.")
		return
	}
	if filters.Limit, err = intQuery(c, "limit"); err != nil {
		respondMessage(c, http.StatusBadRequest, "Validation error", "limit must be a number.")
		return
	}
	if err := filters.Normalize(); err != nil {
		respondMessage(c, http.StatusBadRequest, "Validation error", err.Error())
		return
	}

	page, err := h.history.QueryHistory(c.Request.Context(), filters)
	if err != nil {
		h.respondError(c, err)
		return
	}

	entries := page.Entries
	if entries == nil {
		entries = []domain.SearchHistoryEntry{}
	}
	respondData(c, http.StatusOK, historyResponse{
		Entries: entries,
		Total:   page.Total,
		Page:    filters.Page,
		Limit:   filters.Limit,
	}, "")
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

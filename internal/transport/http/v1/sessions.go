package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/conclave/internal/domain"
)

// GetSession returns a session's latest known state.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	session, err := h.engine.GetSession(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if session == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, session)
}

// ListSessions returns audit records matching the query filters.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	filter, err := parseRecordFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	records, err := h.engine.QueryRecords(ctx, filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if records == nil {
		records = []domain.SessionRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"records": records,
	})
}

// GetStats returns per-domain aggregates over finalized sessions.
// GET /v1/stats
func (h *Handler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.engine.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if stats == nil {
		stats = []domain.DomainStats{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"domains": stats,
	})
}

// ReloadRegistry refreshes the participant profile set.
// POST /v1/registry/reload
func (h *Handler) ReloadRegistry(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.engine.ReloadRegistry(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

func parseRecordFilter(c echo.Context) (domain.RecordFilter, error) {
	filter := domain.RecordFilter{
		SessionID: c.QueryParam("session_id"),
		Domain:    c.QueryParam("domain"),
		Status:    domain.SessionStatus(c.QueryParam("status")),
	}

	if v := c.QueryParam("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid min_confidence")
		}
		filter.MinConfidence = &f
	}
	if v := c.QueryParam("max_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid max_confidence")
		}
		filter.MaxConfidence = &f
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid since, want RFC3339")
		}
		filter.Since = &t
	}
	if v := c.QueryParam("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid until, want RFC3339")
		}
		filter.Until = &t
	}
	if v := c.QueryParam("escalated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid escalated")
		}
		filter.Escalated = &b
	}
	if v := c.QueryParam("latest_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid latest_only")
		}
		filter.LatestOnly = b
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit")
		}
		filter.Limit = n
	}
	return filter, nil
}

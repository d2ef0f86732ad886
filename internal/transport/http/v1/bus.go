package v1

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/conclave/internal/bus"
	"github.com/xiaot623/conclave/internal/domain"
)

// PollBus reads messages from a bus channel. The channel param accepts
// either the bare name or the bus: prefixed form.
// GET /v1/bus/:channel?since=<RFC3339>&limit=<n>&type=<t>&source=<s>
func (h *Handler) PollBus(c echo.Context) error {
	ctx := c.Request().Context()

	channel := c.Param("channel")
	if !strings.HasPrefix(channel, "bus:") {
		channel = "bus:" + channel
	}

	var since time.Time
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid since, want RFC3339"})
		}
		since = t
	}

	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	filter := bus.Filter{
		Type:   domain.MessageType(c.QueryParam("type")),
		Source: c.QueryParam("source"),
	}

	messages, err := h.engine.PollBus(ctx, channel, since, limit, filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"channel":  channel,
		"messages": messages,
	})
}

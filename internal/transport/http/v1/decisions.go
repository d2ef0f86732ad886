package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/conclave/internal/domain"
)

// DecisionRequest describes the operation to arbitrate.
type DecisionRequest struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateDecision runs one arbitration session to completion.
// POST /v1/decisions
func (h *Handler) CreateDecision(c echo.Context) error {
	ctx := c.Request().Context()

	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	session, err := h.engine.Decide(ctx, domain.OperationDescriptor{Text: req.Text, Metadata: req.Metadata})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if !session.Trigger.ShouldConvene {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"convened": false,
			"trigger":  session.Trigger,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"convened": true,
		"session":  session,
	})
}

// EvaluateOperation classifies an operation without convening a panel.
// POST /v1/decisions/evaluate
func (h *Handler) EvaluateOperation(c echo.Context) error {
	ctx := c.Request().Context()

	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	result := h.engine.Evaluate(ctx, domain.OperationDescriptor{Text: req.Text, Metadata: req.Metadata})
	return c.JSON(http.StatusOK, result)
}

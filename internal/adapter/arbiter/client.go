// Package arbiter provides the HTTP client for the escalation oracle.
package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/conclave/internal/domain"
)

// Client calls the arbiter service's consult endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an arbiter client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Minute,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

type consultRequest struct {
	PreferredClass string                   `json:"preferred_class"`
	Summary        domain.EscalationSummary `json:"summary"`
}

// Consult sends the escalation summary and returns the arbiter's answer.
func (c *Client) Consult(ctx context.Context, summary domain.EscalationSummary, preferredClass string) (*domain.ArbiterResponse, error) {
	body, err := json.Marshal(consultRequest{PreferredClass: preferredClass, Summary: summary})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal consult request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/consult", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Session-ID", summary.SessionID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call arbiter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("arbiter returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var response domain.ArbiterResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode arbiter response: %w", err)
	}
	return &response, nil
}

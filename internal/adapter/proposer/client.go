// Package proposer provides the HTTP client for participant collaborator
// endpoints.
package proposer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/conclave/internal/domain"
)

// Client calls a participant's propose, critique and revise endpoints.
// Per-call deadlines come from the caller's context; the transport
// timeout is only a safety net.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new proposer client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type proposeRequest struct {
	ParticipantID string   `json:"participant_id"`
	Prompt        string   `json:"prompt"`
	Domains       []string `json:"domains"`
}

type critiqueRequest struct {
	ParticipantID string            `json:"participant_id"`
	Proposals     []domain.Proposal `json:"proposals"`
}

type reviseRequest struct {
	ParticipantID string            `json:"participant_id"`
	Proposal      domain.Proposal   `json:"proposal"`
	Critiques     []domain.Critique `json:"critiques"`
}

// Generate asks the participant for a proposal.
func (c *Client) Generate(ctx context.Context, prompt string, profile domain.ParticipantProfile, domains []string) (*domain.Proposal, error) {
	req := proposeRequest{ParticipantID: profile.ID, Prompt: prompt, Domains: domains}
	var proposal domain.Proposal
	if err := c.post(ctx, profile, "/propose", req, &proposal); err != nil {
		return nil, err
	}
	if proposal.ProposalID == "" {
		proposal.ProposalID = "prop_" + uuid.New().String()[:8]
	}
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = time.Now()
	}
	return &proposal, nil
}

// Critique asks the participant to critique the current proposal set.
func (c *Client) Critique(ctx context.Context, profile domain.ParticipantProfile, proposals []domain.Proposal) (*domain.Critique, error) {
	req := critiqueRequest{ParticipantID: profile.ID, Proposals: proposals}
	var critique domain.Critique
	if err := c.post(ctx, profile, "/critique", req, &critique); err != nil {
		return nil, err
	}
	if critique.CritiqueID == "" {
		critique.CritiqueID = "crit_" + uuid.New().String()[:8]
	}
	if critique.CreatedAt.IsZero() {
		critique.CreatedAt = time.Now()
	}
	return &critique, nil
}

// Revise hands the participant its critiques and collects the revised
// proposal.
func (c *Client) Revise(ctx context.Context, profile domain.ParticipantProfile, original domain.Proposal, critiques []domain.Critique) (*domain.Proposal, error) {
	req := reviseRequest{ParticipantID: profile.ID, Proposal: original, Critiques: critiques}
	var revised domain.Proposal
	if err := c.post(ctx, profile, "/revise", req, &revised); err != nil {
		return nil, err
	}
	if revised.ProposalID == "" {
		revised.ProposalID = "prop_" + uuid.New().String()[:8]
	}
	if revised.CreatedAt.IsZero() {
		revised.CreatedAt = time.Now()
	}
	return &revised, nil
}

func (c *Client) post(ctx context.Context, profile domain.ParticipantProfile, path string, payload, out interface{}) error {
	if profile.Endpoint == "" {
		return fmt.Errorf("participant %s has no endpoint", profile.ID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(profile.Endpoint, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Participant-ID", profile.ID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call participant %s: %w", profile.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("participant %s returned status %d: %s", profile.ID, resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", profile.ID, err)
	}
	return nil
}

package proposer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xiaot623/conclave/internal/domain"
)

func TestGenerate(t *testing.T) {
	var gotReq proposeRequest
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/propose" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotHeader = r.Header.Get("X-Participant-ID")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(domain.Proposal{
			Recommendation: "use option X",
			Confidence:     0.9,
			Relevance:      1.0,
		})
	}))
	defer server.Close()

	client := &Client{httpClient: server.Client()}
	profile := domain.ParticipantProfile{ID: "sec-expert", Endpoint: server.URL}

	proposal, err := client.Generate(context.Background(), "rotate the keys?", profile, []string{"security"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gotReq.Prompt != "rotate the keys?" || gotReq.ParticipantID != "sec-expert" {
		t.Fatalf("unexpected request payload: %+v", gotReq)
	}
	if gotHeader != "sec-expert" {
		t.Fatalf("missing X-Participant-ID header")
	}
	if proposal.Recommendation != "use option X" {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}
	if proposal.ProposalID == "" || proposal.CreatedAt.IsZero() {
		t.Fatalf("proposal id and timestamp not filled: %+v", proposal)
	}
}

func TestCritiqueAndRevise(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/critique":
			json.NewEncoder(w).Encode(domain.Critique{Text: "missing rollback plan", Severity: "moderate"})
		case "/revise":
			var req reviseRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("failed to decode revise request: %v", err)
			}
			if len(req.Critiques) != 1 {
				t.Fatalf("expected 1 critique, got %d", len(req.Critiques))
			}
			json.NewEncoder(w).Encode(domain.Proposal{
				Recommendation: req.Proposal.Recommendation + " with rollback",
				Confidence:     0.95,
				Relevance:      1.0,
			})
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := &Client{httpClient: server.Client()}
	profile := domain.ParticipantProfile{ID: "arch-expert", Endpoint: server.URL}

	critique, err := client.Critique(context.Background(), profile, []domain.Proposal{{Recommendation: "ship it"}})
	if err != nil {
		t.Fatalf("Critique failed: %v", err)
	}
	if critique.Text != "missing rollback plan" {
		t.Fatalf("unexpected critique: %+v", critique)
	}

	original := domain.Proposal{Recommendation: "ship it", Confidence: 0.8, Relevance: 1.0}
	revised, err := client.Revise(context.Background(), profile, original, []domain.Critique{*critique})
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}
	if revised.Recommendation != "ship it with rollback" {
		t.Fatalf("unexpected revision: %+v", revised)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := &Client{httpClient: server.Client()}
	profile := domain.ParticipantProfile{ID: "p1", Endpoint: server.URL}

	if _, err := client.Generate(context.Background(), "q", profile, nil); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestGenerateMissingEndpoint(t *testing.T) {
	client := NewClient()
	if _, err := client.Generate(context.Background(), "q", domain.ParticipantProfile{ID: "p1"}, nil); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestGenerateHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := &Client{httpClient: server.Client()}
	profile := domain.ParticipantProfile{ID: "p1", Endpoint: server.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Generate(ctx, "q", profile, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Fatalf("context deadline not honored, took %v", time.Since(start))
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPPort != 8080 {
		t.Fatalf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.BusDatabaseURL != "" {
		t.Fatalf("BusDatabaseURL = %q, want empty (memory transport)", cfg.BusDatabaseURL)
	}
	if cfg.MinQuorum != 2 {
		t.Fatalf("MinQuorum = %d, want 2", cfg.MinQuorum)
	}
	if cfg.ProposeTimeout != 60*time.Second {
		t.Fatalf("ProposeTimeout = %v, want 60s", cfg.ProposeTimeout)
	}
	if cfg.EscalateConfidence != 0.70 {
		t.Fatalf("EscalateConfidence = %v, want 0.70", cfg.EscalateConfidence)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BUS_DATABASE_URL", "file:bus.db?mode=rwc")
	t.Setenv("MIN_QUORUM", "3")
	t.Setenv("ESCALATE_TIE_THRESHOLD", "0.1")

	cfg := Load()

	if cfg.BusDatabaseURL != "file:bus.db?mode=rwc" {
		t.Fatalf("BusDatabaseURL = %q, want file:bus.db?mode=rwc", cfg.BusDatabaseURL)
	}
	if cfg.MinQuorum != 3 {
		t.Fatalf("MinQuorum = %d, want 3", cfg.MinQuorum)
	}
	if cfg.TieThreshold != 0.1 {
		t.Fatalf("TieThreshold = %v, want 0.1", cfg.TieThreshold)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MIN_QUORUM", "many")
	t.Setenv("VOTE_EPSILON", "tiny")

	cfg := Load()

	if cfg.MinQuorum != 2 {
		t.Fatalf("MinQuorum = %d, want default 2", cfg.MinQuorum)
	}
	if cfg.Epsilon != 0.0001 {
		t.Fatalf("Epsilon = %v, want default 0.0001", cfg.Epsilon)
	}
}

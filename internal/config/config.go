// Package config provides configuration for the arbitration engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the engine configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database. BusDatabaseURL is optional: when empty the bus runs on
	// the in-memory transport and messages do not survive a restart.
	DatabaseURL    string
	BusDatabaseURL string

	// Registry
	ProfileDir string
	MinWeight  float64

	// Collection
	MaxConcurrent   int
	MinQuorum       int
	ProposeTimeout  time.Duration
	CritiqueTimeout time.Duration
	ReviseTimeout   time.Duration

	// Debate
	MaxRounds           int
	DebateConfidence    float64
	DebateConcentration float64

	// Escalation
	EscalateConfidence float64
	TieThreshold       float64
	HHIThreshold       float64
	ArbiterURL         string
	ArbiterTimeout     time.Duration
	ArbiterWeight      float64

	// Voting
	Epsilon float64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:    getEnv("DATABASE_URL", "file:conclave.db?cache=shared&mode=rwc"),
		BusDatabaseURL: getEnv("BUS_DATABASE_URL", ""),

		ProfileDir: getEnv("PROFILE_DIR", "./profiles"),
		MinWeight:  getEnvFloat("PANEL_MIN_WEIGHT", 0.5),

		MaxConcurrent:   getEnvInt("MAX_CONCURRENT_CALLS", 8),
		MinQuorum:       getEnvInt("MIN_QUORUM", 2),
		ProposeTimeout:  time.Duration(getEnvInt("PROPOSE_TIMEOUT_MS", 60000)) * time.Millisecond,
		CritiqueTimeout: time.Duration(getEnvInt("CRITIQUE_TIMEOUT_MS", 60000)) * time.Millisecond,
		ReviseTimeout:   time.Duration(getEnvInt("REVISE_TIMEOUT_MS", 60000)) * time.Millisecond,

		MaxRounds:           getEnvInt("MAX_DEBATE_ROUNDS", 2),
		DebateConfidence:    getEnvFloat("DEBATE_CONFIDENCE_THRESHOLD", 0.85),
		DebateConcentration: getEnvFloat("DEBATE_CONCENTRATION_THRESHOLD", 0.80),

		EscalateConfidence: getEnvFloat("ESCALATE_CONFIDENCE_THRESHOLD", 0.70),
		TieThreshold:       getEnvFloat("ESCALATE_TIE_THRESHOLD", 0.05),
		HHIThreshold:       getEnvFloat("ESCALATE_HHI_THRESHOLD", 0.30),
		ArbiterURL:         getEnv("ARBITER_URL", ""),
		ArbiterTimeout:     time.Duration(getEnvInt("ARBITER_TIMEOUT_MS", 30000)) * time.Millisecond,
		ArbiterWeight:      getEnvFloat("ARBITER_WEIGHT", 1.0),

		Epsilon: getEnvFloat("VOTE_EPSILON", 0.0001),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

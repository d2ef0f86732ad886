package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	arbiterclient "github.com/xiaot623/conclave/internal/adapter/arbiter"
	"github.com/xiaot623/conclave/internal/adapter/proposer"
	"github.com/xiaot623/conclave/internal/bus"
	"github.com/xiaot623/conclave/internal/collector"
	"github.com/xiaot623/conclave/internal/config"
	"github.com/xiaot623/conclave/internal/debate"
	"github.com/xiaot623/conclave/internal/engine"
	"github.com/xiaot623/conclave/internal/escalate"
	"github.com/xiaot623/conclave/internal/policy"
	"github.com/xiaot623/conclave/internal/registry"
	"github.com/xiaot623/conclave/internal/store"
	httptransport "github.com/xiaot623/conclave/internal/transport/http"
	"github.com/xiaot623/conclave/internal/transport/ws"
	"github.com/xiaot623/conclave/internal/trigger"
	"github.com/xiaot623/conclave/internal/voting"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting arbitration engine...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Profile dir: %s", cfg.ProfileDir)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize registry from profile files
	ctx := context.Background()
	reg, err := registry.New(ctx, registry.NewFileSource(cfg.ProfileDir))
	if err != nil {
		log.Fatalf("Failed to load participant profiles: %v", err)
	}
	log.Printf("Loaded %d participant profiles", reg.Len())

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize bus. A configured bus database makes the channels
	// durable across restarts; otherwise messages stay in memory.
	var busTransport bus.Transport
	if cfg.BusDatabaseURL != "" {
		sqliteBus, err := bus.NewSQLiteTransport(cfg.BusDatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize bus transport: %v", err)
		}
		defer sqliteBus.Close()
		busTransport = sqliteBus
		log.Printf("Bus database: %s", cfg.BusDatabaseURL)
	} else {
		busTransport = bus.NewMemoryTransport()
	}
	b := bus.New(busTransport, "engine")

	// Initialize collaborator clients
	proposerClient := proposer.NewClient()
	var arb escalate.Arbiter
	if cfg.ArbiterURL != "" {
		arb = arbiterclient.NewClient(cfg.ArbiterURL)
	} else {
		log.Printf("WARN: no ARBITER_URL configured, escalations will degrade to low-confidence decisions")
	}

	// Initialize deliberation pipeline
	agg := voting.NewAggregator(cfg.Epsilon)
	coll := collector.New(proposerClient, collector.Options{
		MaxConcurrent:   cfg.MaxConcurrent,
		MinQuorum:       cfg.MinQuorum,
		ProposeTimeout:  cfg.ProposeTimeout,
		CritiqueTimeout: cfg.CritiqueTimeout,
		ReviseTimeout:   cfg.ReviseTimeout,
	})
	deb := debate.New(coll, agg, debate.Options{
		MaxRounds:              cfg.MaxRounds,
		ConfidenceThreshold:    cfg.DebateConfidence,
		ConcentrationThreshold: cfg.DebateConcentration,
	})
	esc := escalate.New(arb, agg, escalate.Options{
		ConfidenceThreshold: cfg.EscalateConfidence,
		TieThreshold:        cfg.TieThreshold,
		HHIThreshold:        cfg.HHIThreshold,
		ArbiterWeight:       cfg.ArbiterWeight,
		Timeout:             cfg.ArbiterTimeout,
	})

	eng := engine.New(trigger.NewDetector(), policyEngine, reg, coll, deb, agg, esc, db, b, cfg)

	// HTTP server with the WebSocket observer endpoint
	server := httptransport.NewServer(eng)

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()

	hub := ws.NewHub()
	go hub.Run(hubCtx)
	wsServer := ws.NewServer(hub, b)
	wsServer.RegisterRoutes(server)
	go wsServer.Mirror(hubCtx)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down arbitration engine...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cancelHub()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Arbitration engine stopped")
}

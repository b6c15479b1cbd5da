/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the batch ledger-mutation server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration, then command-line flags
  2. Initialize the SQLite store (all persistence lives there)
  3. Wire the five services to the shared store, emitters, and metrics
  4. Initialize each service's admin (idempotent across restarts)
  5. Start the HTTP server with graceful shutdown

CONFIGURATION:
  Environment variables (flags override):
    PORT          HTTP server port (default: 8080)
    DB_PATH       SQLite database path (default: ledger.db)
    ADMIN         Admin identity for all services
    SIGNING_KEY   HMAC key for request signatures (empty disables)
    EVENT_LIMIT   Retained audit events for /api/events/recent

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db" -admin=ops-admin

  # Run with in-memory database
  ./server -db=":memory:" -admin=ops-admin

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/escrow"
	"github.com/warp/ledger-engine/limits"
	"github.com/warp/ledger-engine/metrics"
	"github.com/warp/ledger-engine/refunds"
	"github.com/warp/ledger-engine/rewards"
	"github.com/warp/ledger-engine/store/sqlite"
	"github.com/warp/ledger-engine/wallet"
)

type config struct {
	Port       int    `env:"PORT" envDefault:"8080"`
	DBPath     string `env:"DB_PATH" envDefault:"ledger.db"`
	Admin      string `env:"ADMIN" envDefault:"admin"`
	SigningKey string `env:"SIGNING_KEY"`
	EventLimit int    `env:"EVENT_LIMIT" envDefault:"1000"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}

	// Flags override environment
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.Admin, "admin", cfg.Admin, "admin identity for all services")
	flag.Parse()

	// Initialize store: counters, admin state, ledger accounts, and every
	// domain record store behind one database.
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Audit sinks: structured log plus an in-memory tail for the API.
	recent := engine.NewMemoryEmitter(cfg.EventLimit)
	events := engine.MultiEmitter{
		&engine.SlogEmitter{Logger: slog.Default()},
		recent,
	}

	observer := metrics.Observer{}
	auth := access.AllowAll{}
	admin := engine.Caller(cfg.Admin)

	escrowSvc := escrow.New(escrow.Config{
		Store:    store,
		State:    store,
		Counters: store,
		Ledger:   store,
		Auth:     auth,
		Events:   events,
		Observer: observer,
	})
	rewardsSvc := rewards.New(rewards.Config{
		State:    store,
		Counters: store,
		Ledger:   store,
		Auth:     auth,
		Events:   events,
		Observer: observer,
	})
	walletSvc := wallet.New(wallet.Config{
		Store:    store,
		State:    store,
		Counters: store,
		Auth:     auth,
		Events:   events,
		Observer: observer,
	})
	limitsSvc := limits.New(limits.Config{
		Store:    store,
		State:    store,
		Counters: store,
		Auth:     auth,
		Events:   events,
		Observer: observer,
	})
	refundsSvc := refunds.New(refunds.Config{
		Store:    store,
		State:    store,
		Counters: store,
		Ledger:   store,
		Auth:     auth,
		Events:   events,
		Observer: observer,
		Treasury: "refund-treasury",
	})

	// Admin initialization is once per database, not once per process.
	ctx := context.Background()
	for name, init := range map[string]func(context.Context, engine.Caller) error{
		escrow.ServiceName:  escrowSvc.Initialize,
		rewards.ServiceName: rewardsSvc.Initialize,
		wallet.ServiceName:  walletSvc.Initialize,
		limits.ServiceName:  limitsSvc.Initialize,
		refunds.ServiceName: refundsSvc.Initialize,
	} {
		if err := init(ctx, admin); err != nil && !errors.Is(err, engine.ErrAlreadyInitialized) {
			log.Fatalf("Failed to initialize %s: %v", name, err)
		}
	}

	handler := &api.Handler{
		Escrow:   escrowSvc,
		Rewards:  rewardsSvc,
		Wallet:   walletSvc,
		Limits:   limitsSvc,
		Refunds:  refundsSvc,
		Verifier: access.NewVerifier([]byte(cfg.SigningKey)),
		Events:   recent,
	}
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// Command ingestion starts the corpus ingestion HTTP service.
//
// The service accepts documents via POST /api/v1/documents and
// POST /api/v1/documents/batch, validates them and stores them in the
// PostgreSQL documents table read by the indexer's postgres corpus source.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/neardup.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("ingestion", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		if shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port); err != nil {
			slog.Warn("metrics endpoint disabled", "error", err)
		} else {
			defer shutdownMetrics(context.Background())
		}
	}

	var db *postgres.Client
	err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{}, func() error {
		var cerr error
		db, cerr = postgres.New(cfg.Postgres)
		return cerr
	})
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres", "database", cfg.Postgres.Database)

	h := handler.New(store.New(db, m), cfg.Search.MaxTextLength)
	checker := health.NewChecker()
	checker.Register("postgres", db.Check)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("POST /api/v1/documents/batch", h.IngestBatch)
	mux.HandleFunc("GET /api/v1/documents/stats", h.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			slog.Error("invalid trusted proxies", "error", err)
			os.Exit(1)
		}
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		go limiter.Run(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter, trusted)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}

// Command analytics starts the standalone query analytics service.
//
// It consumes query events published by every searcher replica, aggregates
// them in memory (query outcomes, latency percentiles, cache hit rate, most
// matched documents), persists periodic snapshots to PostgreSQL when enabled,
// and serves GET /api/v1/analytics and GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/neardup.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/analytics"
	analyticsstore "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
)

const saveInterval = time.Minute

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Kafka.Enabled {
		fmt.Fprintln(os.Stderr, "the analytics service needs kafka.enabled")
		os.Exit(1)
	}

	logger.Setup("analytics", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Searchers share cfg.Kafka.ConsumerGroup; this service must see every
	// event, so it reads with its own group.
	group := cfg.Kafka.ConsumerGroup + "-analytics"
	aggregator := analytics.NewAggregator(nil)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents,
		analytics.HandleEvent(aggregator),
		kafka.WithGroupID(group),
		kafka.WithHandlerAttempts(1),
	)
	aggregator.SetConsumer(consumer)

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- aggregator.Start(ctx)
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.QueryEvents, "group", group)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		select {
		case err := <-consumerErr:
			consumerErr <- err
			msg := "consumer stopped"
			if err != nil {
				msg = err.Error()
			}
			return health.ComponentHealth{Status: health.StatusDown, Message: msg}
		default:
			st := consumer.Stats()
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("consumer active: %d processed, %d dropped", st.Processed, st.Dropped),
			}
		}
	})

	var history analytics.SnapshotLister
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, analytics history disabled", "error", err)
		} else {
			defer db.Close()
			if err := db.EnsureSchema(ctx); err != nil {
				slog.Error("failed to ensure schema", "error", err)
				os.Exit(1)
			}
			store := analyticsstore.NewStore(db, "analytics")
			if last, err := store.LatestSnapshot(ctx); err != nil {
				slog.Warn("reading last analytics snapshot failed", "error", err)
			} else if last != nil {
				slog.Info("previous analytics snapshot", "total_queries", last.TotalQueries, "match_rate", last.MatchRate)
			}
			saved := store.StartPeriodicSave(ctx, aggregator, saveInterval)
			defer func() {
				stop()
				<-saved
			}()
			history = store
			checker.Register("postgres", health.OptionalCheck(db.Check))
		}
	}

	analyticsHandler := analytics.NewHandler(aggregator, history)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}

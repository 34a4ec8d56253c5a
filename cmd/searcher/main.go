package main

import (
	"context"
	"errors"
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
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/searcher/validator"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
	"github.com/google/uuid"
)

const analyticsSaveInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("searcher", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting near-duplicate query service",
		"port", cfg.Server.Port,
		"data_dir", cfg.Snapshot.DataDir,
		"threshold", cfg.LSH.Threshold,
	)

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

	exec := executor.New(nil, cfg.LSH.Threshold, cfg.Search.QueryTimeout, m)
	reloader := executor.NewReloader(exec, indexer.OptionsFromConfig(cfg.LSH, true))
	if err := reloader.LoadLatest(ctx, cfg.Snapshot.DataDir); err != nil {
		if !errors.Is(err, apperrors.ErrIndexNotReady) {
			slog.Error("failed to load snapshot", "error", err)
			os.Exit(1)
		}
		slog.Warn("no snapshot found, waiting for an index-complete event", "data_dir", cfg.Snapshot.DataDir)
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			reloader.OnSwap(func(ctx context.Context) {
				if _, err := queryCache.Invalidate(ctx); err != nil {
					slog.Error("cache invalidation after reload failed", "error", err)
				}
			})
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, analytics history disabled", "error", err)
			db = nil
		} else {
			defer db.Close()
			if err := db.EnsureSchema(ctx); err != nil {
				slog.Error("failed to ensure schema", "error", err)
				os.Exit(1)
			}
		}
	}

	aggregator := analytics.NewAggregator(nil)
	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, nil, cfg.Search.AnalyticsBuffer)
		aggregator.SetConsumer(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents, analytics.HandleEvent(aggregator),
			kafka.WithHandlerAttempts(1),
		))

		// Every replica reloads on every run, so each uses its own group.
		group := fmt.Sprintf("%s-index-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()[:8])
		indexConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete,
			consumer.HandleIndexComplete(reloader.HandleIndexComplete),
			kafka.WithGroupID(group),
			kafka.WithBackoff(resilience.Backoff{InitialDelay: time.Second, MaxDelay: 30 * time.Second}),
		))
		go func() {
			if err := indexConsumer.Start(ctx); err != nil {
				slog.Error("index consumer error", "error", err)
			}
		}()
		slog.Info("listening for index-complete events", "topic", cfg.Kafka.Topics.IndexComplete, "group", group)
	} else {
		collector = analytics.NewCollector(nil, aggregator, cfg.Search.AnalyticsBuffer)
	}
	collector.Start(ctx)
	defer collector.Close()
	reloader.OnSwap(func(context.Context) {
		collector.Track(analytics.QueryEvent{Type: analytics.EventReload})
	})
	go func() {
		if err := aggregator.Start(ctx); err != nil {
			slog.Error("analytics aggregator error", "error", err)
		}
	}()

	var history analytics.SnapshotLister
	if db != nil {
		store := analyticsstore.NewStore(db, "searcher")
		saved := store.StartPeriodicSave(ctx, aggregator, analyticsSaveInterval)
		defer func() {
			stop()
			<-saved
		}()
		history = store
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats, err := exec.Stats()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents from %s", stats.Documents, reloader.Current()),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.OptionalCheck(redisClient.Check))
	}
	if db != nil {
		checker.Register("postgres", health.OptionalCheck(db.Check))
	}

	h := handler.New(exec, queryCache, collector, m, validator.Limits{
		MaxTextLength: cfg.Search.MaxTextLength,
		AllowInsert:   cfg.Search.AllowInsert,
	})
	analyticsH := analytics.NewHandler(aggregator, history)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("GET /api/v1/documents/{id}/match", h.DocumentMatch)
	mux.HandleFunc("GET /api/v1/duplicates", h.Duplicates)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsH.History)
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
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
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

	slog.Info("query service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("query service stopped")
}

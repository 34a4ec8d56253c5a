package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/report"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/tracing"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	input := flag.String("input", "", "corpus file (overrides corpus.path)")
	output := flag.String("output", "", "CSV report path (overrides report.csvPath)")
	threshold := flag.Float64("threshold", 0, "distance threshold (overrides lsh.threshold)")
	quiet := flag.Bool("quiet", false, "disable the progress bar")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *input != "" {
		cfg.Corpus.Path = *input
	}
	if *output != "" {
		cfg.Report.CSVPath = *output
	}
	if *threshold != 0 {
		cfg.LSH.Threshold = *threshold
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("indexer", cfg.Logging.Level, cfg.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, !*quiet); err != nil {
		slog.Error("indexing run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, showProgress bool) error {
	runID := uuid.NewString()
	ctx, root := tracing.StartSpan(ctx, "index-run", runID)
	defer func() {
		root.End()
		root.Log()
	}()
	ctx = logger.With(ctx, "run_id", runID)
	log := logger.FromContext(ctx).With("component", "batch-indexer")
	log.Info("starting indexing run",
		"source", cfg.Corpus.Source,
		"shingle_size", cfg.LSH.ShingleSize,
		"bands", cfg.LSH.Bands(),
		"rows_per_band", cfg.LSH.RowsPerBand,
		"threshold", cfg.LSH.Threshold,
	)

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
	if cfg.Postgres.Enabled {
		err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{}, func() error {
			var cerr error
			db, cerr = postgres.New(cfg.Postgres)
			return cerr
		})
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	engine, err := indexer.NewEngine(indexer.OptionsFromConfig(cfg.LSH, cfg.Report.IncludeText))
	if err != nil {
		return err
	}

	var docs []corpus.Document
	err = tracing.Stage(ctx, "load-corpus", func(ctx context.Context, span *tracing.Span) error {
		src, err := corpus.Open(cfg.Corpus, db)
		if err != nil {
			return err
		}
		var stats corpus.LoadStats
		docs, stats, err = src.Load(ctx)
		if err != nil {
			return err
		}
		span.SetAttr("documents", len(docs))
		span.SetAttr("malformed", stats.Malformed)
		log.Info("corpus loaded", "documents", len(docs), "lines", stats.Read, "malformed", stats.Malformed)
		return nil
	})
	if err != nil {
		return err
	}

	var inputs []indexer.Input
	err = tracing.Stage(ctx, "shingle", func(ctx context.Context, span *tracing.Span) error {
		var err error
		inputs, err = engine.Prepare(ctx, docs)
		span.SetAttr("documents", len(inputs))
		return err
	})
	if err != nil {
		return err
	}
	docs = nil

	var build *indexer.BuildReport
	err = tracing.Stage(ctx, "build-index", func(ctx context.Context, span *tracing.Span) error {
		var progress func(int)
		if showProgress {
			bar := progressbar.NewOptions(len(inputs),
				progressbar.OptionSetDescription("indexing"),
				progressbar.OptionSetWidth(50),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
			defer bar.Finish()
			progress = func(n int) { _ = bar.Add(n) }
		}
		var err error
		build, err = engine.Build(ctx, inputs, progress)
		if err != nil {
			return err
		}
		span.SetAttr("indexed", build.Indexed)
		span.SetAttr("skipped", len(build.Skipped))
		return nil
	})
	if err != nil {
		return err
	}
	if m != nil {
		m.DocsIndexedTotal.Add(float64(build.Indexed))
		m.DocsSkippedTotal.Add(float64(len(build.Skipped)))
		m.IndexedDocuments.Set(float64(build.Indexed))
		m.BuildDuration.Observe(build.Duration.Seconds())
		m.BandBuckets.Set(float64(engine.Stats().Index.Buckets))
	}

	if cfg.Report.SampleSize > 0 {
		dist := engine.DistanceDistribution(cfg.Report.SampleSize, cfg.Report.SampleSeed)
		log.Info("sampled pairwise distance distribution",
			"pairs", dist.Pairs,
			"degenerate", dist.Degenerate,
			"min", dist.Min,
			"max", dist.Max,
			"mean", dist.Mean,
			"histogram", dist.Histogram,
		)
	}

	var snapshotPath string
	err = tracing.Stage(ctx, "snapshot", func(ctx context.Context, span *tracing.Span) error {
		var err error
		snapshotPath, err = engine.SaveSnapshot(cfg.Snapshot.DataDir)
		span.SetAttr("path", snapshotPath)
		return err
	})
	if err != nil {
		return err
	}

	var pairs *indexer.PairReport
	err = tracing.Stage(ctx, "extract-pairs", func(ctx context.Context, span *tracing.Span) error {
		var err error
		pairs, err = engine.DuplicatePairs(ctx, cfg.LSH.Threshold)
		if err != nil {
			return err
		}
		span.SetAttr("candidate_pairs", pairs.CandidatePairs)
		span.SetAttr("pairs", len(pairs.Pairs))
		return nil
	})
	if err != nil {
		return err
	}
	if m != nil {
		m.DuplicatePairs.Set(float64(len(pairs.Pairs)))
	}

	sinks := buildSinks(cfg, db, m)
	defer sinks.Close()
	err = tracing.Stage(ctx, "write-report", func(ctx context.Context, span *tracing.Span) error {
		span.SetAttr("sinks", sinks.Len())
		return sinks.Write(ctx, report.Run{ID: runID, Threshold: cfg.LSH.Threshold, CreatedAt: time.Now().UTC()}, pairs.Pairs)
	})
	if err != nil {
		return err
	}

	if cfg.Kafka.Enabled && cfg.Kafka.Topics.IndexComplete != "" {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		event := indexer.IndexCompleteEvent{
			RunID:          runID,
			SnapshotPath:   snapshotPath,
			Documents:      build.Indexed,
			Skipped:        len(build.Skipped),
			DuplicatePairs: len(pairs.Pairs),
			Threshold:      cfg.LSH.Threshold,
			CompletedAt:    time.Now().UTC(),
		}
		err := resilience.Retry(ctx, "publish-index-complete", resilience.RetryConfig{}, func() error {
			return producer.Publish(ctx, kafka.Event{Key: runID, Value: event})
		})
		if err != nil {
			return fmt.Errorf("publishing index-complete event: %w", err)
		}
		log.Info("index-complete event published", "topic", producer.Topic(), "published", producer.Stats().Published)
	}

	log.Info("indexing run complete",
		"documents", build.Documents,
		"indexed", build.Indexed,
		"skipped", len(build.Skipped),
		"pairs", len(pairs.Pairs),
		"snapshot", snapshotPath,
		"duration_ms", root.Duration().Milliseconds(),
	)
	for _, st := range root.Stages()[1:] {
		log.Debug("stage timing", "stage", st.Name, "duration_ms", st.Duration.Milliseconds(), "failed", st.Failed)
	}
	return nil
}

func buildSinks(cfg *config.Config, db *postgres.Client, m *metrics.Metrics) *report.Multi {
	var sinks []report.Sink
	if cfg.Report.CSVPath != "" {
		sinks = append(sinks, report.NewCSVSink(cfg.Report.CSVPath, cfg.Report.IncludeText))
	}
	if cfg.Report.Postgres && db != nil {
		sinks = append(sinks, report.NewPostgresSink(db))
	}
	if cfg.Report.Kafka && cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DuplicatePairs)
		sinks = append(sinks, report.NewKafkaSink(producer, cfg.Report.PublishBatch))
	}
	return report.NewMulti(m, sinks...)
}

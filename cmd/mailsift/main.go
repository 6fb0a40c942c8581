// Package main wires together the mailsift scrape service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubclient "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/api"
	"github.com/mailsift/mailsift/internal/clock/system"
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/events"
	"github.com/mailsift/mailsift/internal/events/sinks"
	"github.com/mailsift/mailsift/internal/export"
	"github.com/mailsift/mailsift/internal/extract"
	"github.com/mailsift/mailsift/internal/fetch"
	collyfetcher "github.com/mailsift/mailsift/internal/fetch/colly"
	"github.com/mailsift/mailsift/internal/fetch/detector"
	headlessfetcher "github.com/mailsift/mailsift/internal/fetch/headless"
	"github.com/mailsift/mailsift/internal/id/uuid"
	"github.com/mailsift/mailsift/internal/logging"
	"github.com/mailsift/mailsift/internal/pool"
	pubsubpublisher "github.com/mailsift/mailsift/internal/publisher/pubsub"
	"github.com/mailsift/mailsift/internal/scheduler"
	"github.com/mailsift/mailsift/internal/scrape"
	gcsstorage "github.com/mailsift/mailsift/internal/storage/gcs"
	localstorage "github.com/mailsift/mailsift/internal/storage/local"
	memoryStorage "github.com/mailsift/mailsift/internal/storage/memory"
	"github.com/mailsift/mailsift/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	jobStore := memoryStorage.NewJobStore()
	clock := system.New()
	idGen := uuid.New()

	eventSinks := []events.Sink{sinks.NewLogSink(logger.Named("events"))}
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	eventSinks = append(eventSinks, promSink)

	if cfg.Archive.DSN != "" {
		archiveStore, archiveErr := postgres.NewArchiveStore(ctx, postgres.ArchiveStoreConfig{
			DSN:      cfg.Archive.DSN,
			MaxConns: cfg.Archive.MaxConns,
			MinConns: cfg.Archive.MinConns,
		})
		if archiveErr != nil {
			logger.Fatal("archive store init failed", zap.Error(archiveErr))
		}
		defer archiveStore.Close()
		eventSinks = append(eventSinks, sinks.NewArchiveSink(archiveStore, logger.Named("archive")))
	}

	if cfg.PubSub.TopicName != "" {
		client, pubsubErr := pubsubclient.NewClient(ctx, cfg.PubSub.ProjectID)
		if pubsubErr != nil {
			logger.Fatal("pubsub client init failed", zap.Error(pubsubErr))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		eventSinks = append(eventSinks,
			sinks.NewPublisherSink(pubsubpublisher.New(client), cfg.PubSub.TopicName, logger.Named("publisher")))
	}

	hub := events.NewHub(events.Config{Logger: logger.Named("hub")}, eventSinks...)

	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	detect := detector.NewHeuristic(cfg.Headless.MinTextBytes)
	var renderer scrape.Fetcher = headlessfetcher.NewNoop()
	if cfg.Headless.Enabled {
		chromeRenderer, renderErr := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		})
		if renderErr != nil {
			logger.Warn("headless renderer init failed", zap.Error(renderErr))
		} else {
			defer chromeRenderer.Close()
			renderer = chromeRenderer
		}
	}
	pipeline := fetch.NewPipeline(probeFetcher, renderer, detect, logger.Named("fetch"))

	extractor := extract.New(extract.Config{
		EmailLimit:        cfg.Extract.EmailLimit,
		DisposableDomains: cfg.Extract.DisposableDomains,
	})

	runner := pool.New(pipeline, extractor, jobStore, hub, clock, pool.Config{
		Concurrency:  cfg.Scraper.Concurrency,
		PerHostRPS:   cfg.Scraper.PerHostRPS,
		PerHostBurst: cfg.Scraper.PerHostBurst,
	}, logger.Named("pool"))

	sched := scheduler.New(ctx, jobStore, runner, hub, clock, idGen,
		scheduler.Config{MaxBatchSize: cfg.Scraper.MaxBatchSize}, logger.Named("scheduler"))

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		logger.Fatal("export backend init failed", zap.Error(err))
	}

	apiServer := api.NewServer(sched, hub, exporter, metricsHandler, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := sched.Close(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("event hub shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildExporter picks the CSV artifact backend; a nil return with nil error
// means exports are disabled.
func buildExporter(ctx context.Context, cfg config.Config) (scrape.Exporter, error) {
	switch cfg.Export.Backend {
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.Export.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store: %w", err)
		}
		return export.NewCSVExporter(blobs)
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Export.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return export.NewCSVExporter(blobs)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown export backend %q", cfg.Export.Backend)
	}
}

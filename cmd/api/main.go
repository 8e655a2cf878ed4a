// Package main is the entry point for the feed API server.
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
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/onnwee/citypulse/internal/config"
	"github.com/onnwee/citypulse/internal/feed"
	"github.com/onnwee/citypulse/internal/fixture"
	"github.com/onnwee/citypulse/internal/idempotency"
	"github.com/onnwee/citypulse/internal/jobs"
	"github.com/onnwee/citypulse/internal/middleware"
	"github.com/onnwee/citypulse/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	seedPath := flag.String("seed", "", "path to a YAML fixture to load at startup")
	flag.Parse()

	if *help {
		fmt.Println("CityPulse Feed API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	// Initialize logger
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	logArgs := make([]any, 0, 2*len(cfg.LogSummary()))
	for k, v := range cfg.LogSummary() {
		logArgs = append(logArgs, k, v)
	}
	logger.Info("configuration loaded", logArgs...)

	if err := run(cfg, *seedPath, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, seedPath string, logger *slog.Logger) error {
	ctx := context.Background()

	rankingCfg := loadRanking(cfg, logger)

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		RankingVersion: rankingCfg.Version,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if seedPath != "" {
		if err := seed(ctx, seedPath, b, logger); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	feedMetrics := feed.NewMetrics()
	if err := feedMetrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register feed metrics: %w", err)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register job metrics: %w", err)
	}

	// Redis expires idempotency records itself; the in-memory store is swept.
	if repo, ok := b.idempotency.(*idempotency.InMemoryRepository); ok {
		sweep := jobs.New(jobs.Config{
			Name:     jobs.JobIdempotencySweep,
			Interval: 10 * time.Minute,
			Logger:   logger,
			Metrics:  jobMetrics,
		}, repo.Sweep)
		if err := sweep.Start(ctx); err != nil {
			return err
		}
		defer sweep.Stop()
	}

	service := newFeedService(cfg, rankingCfg, b, feedMetrics, logger)
	handler := newRouter(routerConfig{
		Feed:         service,
		Verifier:     newVerifier(cfg),
		Idempotency:  b.idempotency,
		Health:       healthConfig(b, service),
		Gatherer:     reg,
		HTTPMetrics:  httpMetrics,
		MetricsToken: cfg.MetricsToken,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(server, logger, 10*time.Second)
}

// serve runs server until SIGINT or SIGTERM, then drains in-flight requests
// for up to grace.
func serve(server *http.Server, logger *slog.Logger, grace time.Duration) error {
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serverErr:
		if ok {
			return err
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func seed(ctx context.Context, path string, b *backends, logger *slog.Logger) error {
	f, err := fixture.Load(path)
	if err != nil {
		return err
	}
	now := time.Now()
	if err := f.Seed(ctx, b.Stores, now); err != nil {
		return fmt.Errorf("failed to seed fixture: %w", err)
	}
	logger.Info("fixture loaded",
		slog.String("path", path),
		slog.Int("items", len(f.Items)),
		slog.Int("users", len(f.Users)))
	return nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/citypulse/internal/api"
	"github.com/onnwee/citypulse/internal/auth"
	"github.com/onnwee/citypulse/internal/config"
	"github.com/onnwee/citypulse/internal/db"
	"github.com/onnwee/citypulse/internal/feed"
	"github.com/onnwee/citypulse/internal/fixture"
	"github.com/onnwee/citypulse/internal/health"
	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/idempotency"
	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/middleware"
	"github.com/onnwee/citypulse/internal/profile"
	"github.com/onnwee/citypulse/internal/ranking"
)

const serviceName = "citypulse"

// backends holds the opened stores and the connections behind them.
// db and redis are nil when not configured.
type backends struct {
	fixture.Stores
	idempotency idempotency.Repository
	db          *sql.DB
	redis       *redis.Client
}

// Close releases the connections.
func (b *backends) Close() error {
	var firstErr error
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openBackends picks Postgres or in-memory stores, then layers Redis on top
// when configured: views move to Redis, candidates get a read-through cache
// and idempotency records are shared across instances.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, conn, logger); err != nil {
			conn.Close()
			return nil, err
		}
		b.db = conn
		b.Items = item.NewPostgresRepository(conn, logger)
		b.Profiles = profile.NewPostgresStore(conn, logger)
		b.History = history.NewPostgresStore(conn, logger)
		b.Views = history.NewPostgresViewStore(conn)
		logger.Info("using postgres stores")
	} else {
		b.Items = item.NewInMemoryRepository()
		b.Profiles = profile.NewInMemoryStore()
		b.History = history.NewInMemoryStore()
		b.Views = history.NewInMemoryViewStore()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisURL == "" {
		b.idempotency = idempotency.NewInMemoryRepository(cfg.IdempotencyTTL)
		return b, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		b.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	b.redis = client
	b.Views = history.NewRedisViewStore(client)
	b.Items = item.NewCachedRepository(b.Items, client, cfg.CandidateCacheTTL, logger)
	b.idempotency = idempotency.NewRedisRepository(client, cfg.IdempotencyTTL, logger)
	logger.Info("using redis for views, candidate cache and idempotency")
	return b, nil
}

// loadRanking reads the ranking calibration. A broken calibration file is
// logged and the defaults are used.
func loadRanking(cfg *config.Config, logger *slog.Logger) *ranking.Config {
	rankingCfg, err := ranking.LoadCalibration(cfg.RankingCalibrationPath)
	if err != nil {
		logger.Error("failed to load ranking calibration, using defaults",
			slog.String("path", cfg.RankingCalibrationPath),
			slog.String("error", err.Error()))
	}
	logger.Info("ranking calibration loaded", slog.String("version", rankingCfg.Version))
	return rankingCfg
}

func newFeedService(cfg *config.Config, rankingCfg *ranking.Config, b *backends, metrics *feed.Metrics, logger *slog.Logger) *feed.Service {
	return feed.NewService(feed.Dependencies{
		Candidates: b.Items,
		Profiles:   b.Profiles,
		History:    b.History,
		Views:      b.Views,
	}, feed.Options{
		Ranking: rankingCfg,
		Breakers: feed.BreakerConfig{
			FailureThreshold: uint32(cfg.BreakerFailureThreshold),
			Timeout:          cfg.BreakerTimeout,
			MaxRequests:      1,
		},
		CandidateHorizon:  cfg.CandidateHorizon(),
		RecordImpressions: cfg.RecordImpressions,
		Location:          cfg.Location(),
		Logger:            logger,
		Metrics:           metrics,
	})
}

// routerConfig is everything newRouter wires together.
type routerConfig struct {
	Feed         api.FeedService
	Verifier     middleware.TokenVerifier
	Idempotency  idempotency.Repository
	Health       api.HealthHandlersConfig
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *middleware.Metrics
	MetricsToken string
	Logger       *slog.Logger
}

// idempotentRoutes are the POST routes whose retries must not double-apply.
var idempotentRoutes = map[string]bool{
	"/feed/feedback": true,
}

// newRouter builds the mux and the middleware chain:
// Tracing -> RequestID -> Logging -> HTTPMetrics -> routes.
// Feed routes additionally run RequireAuth, and feedback runs Idempotency.
func newRouter(rc routerConfig) http.Handler {
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	feedHandlers := api.NewFeedHandlers(rc.Feed, logger)
	healthHandlers := api.NewHealthHandlers(rc.Health)
	requireAuth := middleware.RequireAuth(rc.Verifier, rc.HTTPMetrics)
	idem := middleware.Idempotency(rc.Idempotency, idempotentRoutes, rc.HTTPMetrics, logger)

	mux := http.NewServeMux()
	mux.Handle("/feed", requireAuth(http.HandlerFunc(feedHandlers.GetFeed)))
	mux.Handle("/feed/feedback", requireAuth(idem(http.HandlerFunc(feedHandlers.PostFeedback))))
	mux.Handle("/feed/views", requireAuth(http.HandlerFunc(feedHandlers.PostView)))
	mux.Handle("/feed/interactions", requireAuth(http.HandlerFunc(feedHandlers.PostInteraction)))
	mux.HandleFunc("/categories", api.Categories)
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	if rc.Gatherer != nil {
		mux.Handle("/metrics", api.InternalAuth(rc.MetricsToken)(api.MetricsHandler(rc.Gatherer)))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"citypulse","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(rc.HTTPMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Tracing(serviceName)(handler)
	return handler
}

// newVerifier builds the JWT verifier, accepting the previous secret during
// rotation.
func newVerifier(cfg *config.Config) *auth.JWTService {
	return auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
}

// healthConfig adds checkers for whichever backends are live.
func healthConfig(b *backends, service *feed.Service) api.HealthHandlersConfig {
	hc := api.HealthHandlersConfig{
		BreakerChecker: health.NewBreakerChecker(service),
	}
	if b.db != nil {
		hc.DBChecker = health.NewDBChecker(b.db)
	}
	if b.redis != nil {
		hc.RedisChecker = health.NewRedisChecker(b.redis)
	}
	return hc
}

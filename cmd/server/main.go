package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/analytics"
	"github.com/klimakov/adrotator/internal/api"
	"github.com/klimakov/adrotator/internal/config"
	"github.com/klimakov/adrotator/internal/db"
	"github.com/klimakov/adrotator/internal/geoip"
	"github.com/klimakov/adrotator/internal/jobs"
	"github.com/klimakov/adrotator/internal/middleware"
	"github.com/klimakov/adrotator/internal/observability"
	"github.com/klimakov/adrotator/internal/ratelimit"
	"github.com/klimakov/adrotator/internal/webhook"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	var analyticsSvc analytics.AnalyticsService
	if cfg.ClickHouseDSN != "" {
		ch, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer ch.Close()
		analyticsSvc = ch
	} else {
		logger.Info("ClickHouse DSN not set, raw event log disabled")
	}

	var geoSvc *geoip.Resolver
	if cfg.GeoIPDB != "" {
		geoSvc, err = geoip.Open(cfg.GeoIPDB)
		if err != nil {
			return fmt.Errorf("failed to load geoip db: %w", err)
		}
		defer func() { _ = geoSvc.Close() }()
	}

	dispatcher := webhook.NewDispatcher(cfg.WebhookTimeout, metricsRegistry)
	flusher := &jobs.Flusher{Store: store, Stats: pg, Metrics: metricsRegistry}
	recalc := &jobs.Recalculator{Stats: pg}

	limiter := ratelimit.NewClientLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metricsRegistry)

	srvDeps := api.NewServer(logger, store, pg, analyticsSvc, geoSvc, dispatcher, flusher, metricsRegistry, cfg)

	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(logger))

	public := r.NewRoute().Subrouter()
	public.Use(middleware.WithRateLimit(limiter))
	public.HandleFunc("/serve/{zoneKey}", srvDeps.ServeHandler).Methods("GET")
	public.HandleFunc("/serve/{zoneKey}/html", srvDeps.ServeHTMLHandler).Methods("GET")
	public.HandleFunc("/track/impression/{creativeId}", srvDeps.ImpressionHandler).Methods("GET")
	public.HandleFunc("/track/viewable/{creativeId}", srvDeps.ViewableHandler).Methods("GET")
	public.HandleFunc("/track/click/{creativeId}", srvDeps.ClickHandler).Methods("GET")

	r.HandleFunc("/stats/flush", srvDeps.FlushHandler).Methods("POST")
	r.HandleFunc("/health", srvDeps.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	// Background maintenance loops
	go jobs.RunPeriodic(ctx, "stats_flush", cfg.FlushInterval, flusher.RunJob)
	go jobs.RunPeriodic(ctx, "ab_weights", cfg.RecalcInterval, recalc.Run)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad rotator running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/fintrack-go/internal/config"
	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/handler"
	"github.com/boddenberg/fintrack-go/internal/infra/broadcast"
	"github.com/boddenberg/fintrack-go/internal/infra/cache"
	"github.com/boddenberg/fintrack-go/internal/infra/client"
	"github.com/boddenberg/fintrack-go/internal/infra/observability"
	"github.com/boddenberg/fintrack-go/internal/infra/resilience"
	"github.com/boddenberg/fintrack-go/internal/infra/storage"
	"github.com/boddenberg/fintrack-go/internal/port"
	"github.com/boddenberg/fintrack-go/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("storage_path", cfg.StoragePath),
		zap.Bool("amqp_enabled", cfg.AMQPURL != ""),
		zap.Duration("session_poll_interval", cfg.SessionPollInterval),
		zap.Duration("summary_cache_ttl", cfg.SummaryCacheTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "fintrack")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Durable storage ---
	store, err := storage.NewSQLiteStore(cfg.StoragePath, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()

	// --- Session broadcast ---
	bus := broadcast.NewBus(uuid.NewString(), logger)
	var broadcaster port.Broadcaster = bus
	var bridge *broadcast.AMQPBridge
	if cfg.AMQPURL != "" {
		bridge, err = broadcast.NewAMQPBridge(cfg.AMQPURL, cfg.AMQPExchange, bus, logger)
		if err != nil {
			logger.Fatal("failed to connect to AMQP", zap.Error(err))
		}
		defer bridge.Close()
		broadcaster = bridge
		logger.Info("session changes shared over AMQP", zap.String("exchange", cfg.AMQPExchange))
	} else {
		logger.Info("session changes shared in-process only; other processes rely on polling")
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("finance-api", client.IsTransient)

	// --- REST client ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	api := client.New(httpClient, cfg.APIBaseURL, store, cb, resilienceCfg, metrics, logger)

	// --- Cache ---
	summaryCache := cache.New[*domain.DebtSummaryResponse](cfg.SummaryCacheTTL)
	defer summaryCache.Close()

	// --- Services ---
	session := service.NewSessionStore(api, store, broadcaster, service.SessionConfig{
		PollInterval:      cfg.SessionPollInterval,
		RegistrationGrace: cfg.RegistrationGrace,
	}, metrics, logger)
	finance := service.NewFinanceAggregator(api, store, metrics, logger)
	debts := service.NewDebtAggregator(api, store, finance, summaryCache, metrics, logger)
	prefs := service.NewPreferenceStore(store, broadcaster, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session.Start(ctx)

	// --- Background workers ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(gctx) })
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}

	financeChanges, cancelFinance := broadcaster.Subscribe()
	defer cancelFinance()
	g.Go(func() error { return finance.Watch(gctx, financeChanges) })

	debtChanges, cancelDebts := broadcaster.Subscribe()
	defer cancelDebts()
	g.Go(func() error { return debts.Watch(gctx, debtChanges) })

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Session:     session,
		Finance:     finance,
		Debts:       debts,
		Preferences: prefs,
		Storage:     store,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful shutdown ---
	<-gctx.Done()

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("background worker stopped", zap.Error(err))
	}

	logger.Info("server stopped")
}

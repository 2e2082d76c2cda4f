package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/metrics"
	"github.com/fjod/go_pharmacy/internal/publisher"
	"github.com/fjod/go_pharmacy/internal/server"
	"github.com/fjod/go_pharmacy/internal/store"
	"github.com/fjod/go_pharmacy/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l, err := logger.New(logger.Config{Level: cfg.Log.Level, Env: cfg.Log.Env})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = l.Sync() }()
	zap.ReplaceGlobals(l)

	// spans are not exported; they only give log lines a trace id
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := store.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		l.Fatal("failed to open database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		l.Fatal("failed to run migrations", zap.Error(err))
	}
	l.Info("migrations completed successfully")

	if cfg.SeedPath != "" {
		seed, err := store.LoadSeed(cfg.SeedPath)
		if err != nil {
			l.Fatal("failed to load seed", zap.Error(err))
		}
		users, meds, err := repo.ApplySeed(ctx, seed)
		if err != nil {
			l.Fatal("failed to apply seed", zap.Error(err))
		}
		l.Info("seed applied", zap.String("path", cfg.SeedPath), zap.Int("users", users), zap.Int("medicines", meds))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	poller := publisher.NewOutboxPoller(
		repo,
		publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...),
		cfg.Kafka.PollInterval,
		cfg.Kafka.BatchSize,
		l,
		m,
	)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Info("outbox poller started", zap.String("topic", cfg.Kafka.Topic), zap.Strings("brokers", cfg.Kafka.Brokers))
		poller.Run(ctx)
	}()

	router := server.NewRouter(server.RouterConfig{
		Handler: server.NewHandler(repo, l, m, cfg.HTTP.RequestTimeout),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health: func(r *http.Request) error {
			return repo.Ping(r.Context())
		},
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      otelhttp.NewHandler(router, "pharmacy-backend"),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info("pharmacy backend starting", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", zap.Error(err))
	}

	cancel()
	wg.Wait()
	l.Info("server exited")
}

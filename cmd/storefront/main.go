package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_pharmacy/internal/backend"
	"github.com/fjod/go_pharmacy/internal/cart"
	"github.com/fjod/go_pharmacy/internal/cart/storage"
	"github.com/fjod/go_pharmacy/internal/catalog"
	"github.com/fjod/go_pharmacy/internal/checkout"
	"github.com/fjod/go_pharmacy/internal/config"
	h "github.com/fjod/go_pharmacy/internal/http"
	"github.com/fjod/go_pharmacy/internal/metrics"
	"github.com/fjod/go_pharmacy/internal/orders"
	"github.com/fjod/go_pharmacy/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadStorefront()
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

	// prices go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx := context.Background()
	store, closeStore, err := openStorage(ctx, cfg.Cart)
	if err != nil {
		l.Fatal("failed to open cart storage", zap.String("storage", cfg.Cart.Storage), zap.Error(err))
	}
	defer closeStore()
	l.Info("cart storage ready", zap.String("storage", cfg.Cart.Storage))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	directory := catalog.NewCachedDirectory(
		catalog.NewHTTPDirectory(cfg.Backend.URL, cfg.Catalog.ImagePrefix, cfg.Backend.Timeout, l),
		cfg.Catalog.CacheTTL,
	)
	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, l, m)

	carts := cart.NewService(store, directory, l, m)
	submitter := checkout.NewSubmitter(client, carts, l, m)
	board := orders.NewBoard(client, l, m)

	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(carts, l, cfg.HTTP.RequestTimeout),
		Checkout:       h.NewCheckoutHandler(carts, submitter, l, cfg.HTTP.RequestTimeout),
		Orders:         h.NewOrdersHandler(board, l, cfg.HTTP.RequestTimeout),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:            l,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info("storefront starting", zap.String("addr", cfg.HTTP.Addr), zap.String("backend", cfg.Backend.URL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", zap.Error(err))
	}
	l.Info("server exited")
}

func openStorage(ctx context.Context, cfg config.Cart) (storage.Storage, func(), error) {
	noop := func() {}

	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStorage(), noop, nil

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return storage.NewRedisStorage(client, cfg.Redis.TTL), func() { _ = client.Close() }, nil

	case config.StorageMongo:
		connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		db, err := storage.ConnectMongoDB(connCtx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		s := storage.NewMongoStorage(db)
		if err := s.CreateIndexes(connCtx); err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, nil, err
		}
		return s, func() { _ = db.Client().Disconnect(context.Background()) }, nil

	case config.StorageSQLite:
		s, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case config.StorageBadger:
		s, err := storage.NewBadgerStorage(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown cart storage %q", cfg.Storage)
}

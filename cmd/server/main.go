package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"remit/internal/idempotency"
	jwttoken "remit/internal/jwt_token"
	"remit/internal/ledger/handler"
	ledgermetrics "remit/internal/ledger/metrics"
	"remit/internal/ledger/service"
	"remit/internal/ledger/store"
	ledgermem "remit/internal/ledger/store/memory"
	ledgerpg "remit/internal/ledger/store/postgres"
	"remit/internal/ledger/treasury"
	"remit/internal/platform/config"
	"remit/internal/platform/httpserver"
	"remit/internal/platform/kafka"
	"remit/internal/platform/logger"
	"remit/internal/platform/metrics"
	platformpg "remit/internal/platform/postgres"
	"remit/internal/platform/redis"
	"remit/internal/ratelimit"
	audit "remit/pkg/platform/audit"
	"remit/pkg/platform/audit/publisher"
	auditmem "remit/pkg/platform/audit/store/memory"
	auditpg "remit/pkg/platform/audit/store/postgres"
	"remit/pkg/platform/audit/worker"
	"remit/pkg/platform/circuit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "remit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	backend, events, db, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	pub := publisher.NewPublisher(events, publisher.WithAsyncBuffer(1024), publisher.WithLogger(log))
	defer pub.Close()

	rail := treasury.New(treasury.WithLogger(log))
	ledger, err := service.New(ctx, backend, rail, cfg.Ledger.Owner, cfg.Ledger.FeeCollector,
		service.WithLogger(log),
		service.WithMetrics(ledgermetrics.New(reg)),
		service.WithEventPublisher(pub),
		service.WithFeeRate(cfg.Ledger.FeeRateBps),
		service.WithMaxBatch(cfg.Ledger.MaxBatch),
	)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	idemStore, redisClient, err := openIdempotencyStore(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	health := func() error {
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	windows := ratelimit.NewWindowStore()
	throttle := ratelimit.New(windows, cfg.RateLimit.Requests, cfg.RateLimit.Window, log)

	router := newRouter(routerDeps{
		ledger:     handler.New(ledger, events, rail, log),
		validator:  jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
		idempotent: idempotency.Middleware(idemStore, cfg.Redis.IdempotencyTTL, log),
		throttle:   throttle.PerCaller,
		adminToken: cfg.AdminToken,
		gatherer:   reg,
		httpMetric: metrics.New(reg),
		health:     health,
		logger:     log,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.ShutdownTimeout, log)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RateLimit.Window)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				windows.Sweep(cfg.RateLimit.Window)
			}
		}
	})

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, kafka.WithLogger(log))
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = producer.Close(closeCtx)
		}()
		if err := producer.EnsureTopic(ctx); err != nil {
			log.WarnContext(ctx, "could not ensure events topic", "error", err)
		}
		relay := worker.NewRelay(events, producer,
			worker.WithLogger(log),
			worker.WithPollInterval(cfg.Kafka.PollInterval),
		)
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	log.InfoContext(ctx, "remit ledger started",
		"addr", cfg.Addr,
		"postgres", db != nil,
		"redis", redisClient != nil,
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("remit ledger stopped")
	return nil
}

// openStores returns the SQL-backed stores when DATABASE_URL is set and the
// in-memory ones otherwise.
func openStores(ctx context.Context, cfg config.Database, log *slog.Logger) (store.Backend, audit.Store, *sql.DB, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, ledger state is kept in memory")
		return ledgermem.New(), auditmem.NewInMemoryStore(), nil, nil
	}
	db, err := platformpg.Open(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	ledgerStore := ledgerpg.New(db)
	if err := ledgerStore.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	auditStore := auditpg.New(db)
	if err := auditStore.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return ledgerStore, auditStore, db, nil
}

func openIdempotencyStore(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (idempotency.Store, *redis.Client, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		return idempotency.NewMemoryStore(), nil, nil
	}
	store := idempotency.NewFallbackStore(
		idempotency.NewRedisStore(client),
		idempotency.NewMemoryStore(),
		circuit.New("idempotency-redis"),
		log,
	)
	return store, client, nil
}

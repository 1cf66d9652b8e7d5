package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"namereg/internal/events/kafka"
	"namereg/internal/events/outbox"
	jwttoken "namereg/internal/jwt_token"
	"namereg/internal/platform/config"
	"namereg/internal/platform/database"
	"namereg/internal/platform/httpserver"
	"namereg/internal/platform/metrics"
	"namereg/internal/platform/redis"
	"namereg/internal/registry/cache"
	"namereg/internal/registry/handler"
	registrymetrics "namereg/internal/registry/metrics"
	"namereg/internal/registry/payout"
	"namereg/internal/registry/service"
	"namereg/internal/registry/store"
	"namereg/pkg/platform/circuit"
	"namereg/pkg/platform/middleware/metadata"
	"namereg/pkg/platform/middleware/request"
	"namereg/pkg/platform/middleware/requesttime"
)

// registryStore is what the process needs from either store backend.
type registryStore interface {
	service.Registry
	outbox.Source
	Ping(ctx context.Context) error
}

type app struct {
	router    http.Handler
	relay     *outbox.Relay
	storeKind string
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	checks := map[string]httpserver.Check{}

	st, err := a.openStore(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	checks["store"] = st.Ping

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(registrymetrics.New()),
	}
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.close()
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, func() { _ = rc.Close() })
		checks["redis"] = rc.Health
		opts = append(opts, service.WithCache(cache.NewRedis(rc.Client, cache.WithTTL(cfg.Redis.CacheTTL))))
		log.Info("registry query cache enabled", "ttl", cfg.Redis.CacheTTL.String())
	}

	svc := service.New(st, newPayout(cfg.Payout, log), opts...)

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic,
			kafka.WithClientID(cfg.Kafka.ClientID),
			kafka.WithLogger(log),
		)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		if err := pub.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			a.close()
			return nil, err
		}
		checks["kafka"] = pub.Ping
		a.relay = outbox.New(st, pub,
			outbox.WithInterval(cfg.Kafka.PollInterval),
			outbox.WithBatchSize(cfg.Kafka.BatchSize),
			outbox.WithLogger(log),
			outbox.WithMetrics(outbox.NewMetrics()),
		)
	}

	validator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience),
	)
	httpMetrics := metrics.New()

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)
	r.Get("/health", httpserver.Health(checks))
	r.Handle("/metrics", metrics.Handler())
	handler.New(svc, validator, log).Register(r)

	a.router = r
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (registryStore, error) {
	if cfg.Database.URL == "" {
		a.storeKind = "memory"
		log.Warn("no database configured, registry state is kept in memory")
		return store.NewInMemoryStore(cfg.Registry.Admin, store.WithInMemoryTxTimeout(cfg.Registry.TxTimeout)), nil
	}

	a.storeKind = "postgres"
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL, log); err != nil {
			return nil, err
		}
	}
	pool, err := database.Connect(ctx, cfg.Database.URL, database.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	pg := store.NewPostgresStore(pool, store.WithPostgresTxTimeout(cfg.Registry.TxTimeout))
	admin, err := pg.Initialize(ctx, cfg.Registry.Admin)
	if err != nil {
		return nil, fmt.Errorf("initialize registry: %w", err)
	}
	if admin != cfg.Registry.Admin {
		log.Warn("configured administrator differs from the stored one, keeping stored",
			"stored_admin", admin.String(),
			"configured_admin", cfg.Registry.Admin.String(),
		)
	}
	return pg, nil
}

func newPayout(cfg config.PayoutConfig, log *slog.Logger) service.Payout {
	if cfg.Endpoint == "" {
		log.Warn("no payout endpoint configured, withdrawals are credited to an in-process ledger")
		return payout.NewLedger()
	}
	breaker := circuit.New("payout",
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.SuccessThreshold),
		circuit.WithCooldown(cfg.Cooldown),
	)
	return payout.NewHTTP(cfg.Endpoint,
		payout.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		payout.WithBreaker(breaker),
		payout.WithLogger(log),
	)
}

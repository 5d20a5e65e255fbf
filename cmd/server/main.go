package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idserver/internal/identity"
	issuancehandler "idserver/internal/issuance/handler"
	issuanceservice "idserver/internal/issuance/service"
	"idserver/internal/nullifier"
	nullifierstore "idserver/internal/nullifier/store"
	"idserver/internal/payments"
	"idserver/internal/platform/config"
	"idserver/internal/platform/httpserver"
	"idserver/internal/platform/kafka"
	"idserver/internal/platform/logger"
	"idserver/internal/platform/metrics"
	"idserver/internal/platform/middleware"
	"idserver/internal/platform/postgres"
	"idserver/internal/platform/redis"
	"idserver/internal/providers"
	"idserver/internal/providers/facetec"
	"idserver/internal/providers/idenfy"
	"idserver/internal/providers/onfido"
	"idserver/internal/providers/veriff"
	refundhandler "idserver/internal/refund/handler"
	"idserver/internal/refund/mutex"
	refundservice "idserver/internal/refund/service"
	registrystore "idserver/internal/registry/store"
	sessionhandler "idserver/internal/session/handler"
	sessionservice "idserver/internal/session/service"
	sessionstore "idserver/internal/session/store"
	"idserver/internal/signer"
	audit "idserver/pkg/platform/audit"
	"idserver/pkg/platform/audit/publisher"
	auditmemory "idserver/pkg/platform/audit/store/memory"
	auditpostgres "idserver/pkg/platform/audit/store/postgres"
	"idserver/pkg/platform/httputil"
)

// main wires the stores, vendors and services, exposes the HTTP router and
// keeps the server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	db       *sql.DB
	sessions interface {
		sessionservice.Store
		refundservice.Store
		issuanceservice.SessionStore
	}
	registry   issuanceservice.RegistryStore
	nullifiers nullifier.Store
	audit      audit.Store
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	locker := buildLocker(cfg, st.db, redisClient, log)

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	var sink audit.Sink
	if producer != nil {
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions); err != nil {
			log.Warn("audit topic not provisioned", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		sink = producer
	}
	auditPublisher := publisher.NewPublisher(st.audit,
		publisher.WithSink(sink),
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	adapters, err := buildAdapters(cfg.Providers)
	if err != nil {
		return err
	}

	sessions := sessionservice.New(st.sessions, payments.NewFormatVerifier(cfg.Payments.SupportedChainIDs),
		sessionservice.WithLogger(log),
		sessionservice.WithAuditPublisher(auditPublisher),
		sessionservice.WithMetrics(m),
	)
	refunds := refundservice.New(st.sessions, locker, payments.NewHTTPRefunder(cfg.Payments),
		refundservice.WithLogger(log),
		refundservice.WithAuditPublisher(auditPublisher),
		refundservice.WithMetrics(m),
	)
	issuanceOpts := []issuanceservice.Option{
		issuanceservice.WithLogger(log),
		issuanceservice.WithAuditPublisher(auditPublisher),
		issuanceservice.WithMetrics(m),
		issuanceservice.WithDedupWindow(cfg.Issuance.DedupWindowMonths),
	}
	dummy := cfg.Issuance.DummyCredentials && cfg.Server.IsDev()
	if dummy {
		log.Warn("issuing dummy credentials for every request")
		issuanceOpts = append(issuanceOpts, issuanceservice.WithDummyCredentials())
	}
	issuance := issuanceservice.New(st.sessions, st.registry,
		nullifier.NewCache(st.nullifiers, cfg.Issuance.ReplayWindow),
		adapters, signer.New(cfg.Signer), issuanceOpts...)

	sessionH := sessionhandler.New(sessions, log, m)
	refundH := refundhandler.New(refunds, log, m)
	issuanceH := issuancehandler.New(issuance, log, m)
	if dummy {
		issuanceH.WithoutSession()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))

	r.Get("/health", healthHandler(st.db, redisClient, producer))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	sessionH.Register(r)
	refundH.Register(r)
	issuanceH.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminKey(cfg.Admin.APIKeyHash, log))
		sessionH.RegisterAdmin(r)
		refundH.RegisterAdmin(r)
	})

	log.Info("starting idserver", "addr", cfg.Server.Addr, "environment", cfg.Server.Environment)
	return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, r), log)
}

// openStores uses PostgreSQL when DATABASE_URL is set and in-memory stores
// otherwise.
func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db == nil {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		return &stores{
			sessions:   sessionstore.NewInMemoryStore(),
			registry:   registrystore.NewInMemoryStore(),
			nullifiers: nullifierstore.NewInMemoryStore(),
			audit:      auditmemory.NewInMemoryStore(),
		}, nil
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &stores{
		db:         db,
		sessions:   sessionstore.NewPostgresStore(db),
		registry:   registrystore.NewPostgresStore(db),
		nullifiers: nullifierstore.NewPostgresStore(db),
		audit:      auditpostgres.New(db),
	}, nil
}

// buildLocker prefers Redis, then PostgreSQL, then process memory.
func buildLocker(cfg config.Config, db *sql.DB, client *redis.Client, log *slog.Logger) mutex.Locker {
	ttl := cfg.Issuance.RefundLockTTL
	switch {
	case client != nil:
		return mutex.NewRedisLocker(client, ttl)
	case db != nil:
		return mutex.NewPostgresLocker(db, ttl)
	default:
		log.Warn("refund mutex is process-local")
		return mutex.NewInMemoryLocker(ttl)
	}
}

// buildAdapters registers every vendor that has credentials configured.
// Sessions for an unconfigured vendor fail issuance with 503.
func buildAdapters(cfg config.ProvidersConfig) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	candidates := []struct {
		provider   identity.Provider
		configured bool
		adapter    func() providers.Adapter
	}{
		{identity.ProviderVeriff, cfg.Veriff.SecretKey != "", func() providers.Adapter { return veriff.New(cfg.Veriff, cfg.Timeout) }},
		{identity.ProviderOnfido, cfg.Onfido.APIToken != "", func() providers.Adapter { return onfido.New(cfg.Onfido, cfg.Timeout) }},
		{identity.ProviderIDenfy, cfg.IDenfy.APISecret != "", func() providers.Adapter { return idenfy.New(cfg.IDenfy, cfg.Timeout) }},
		{identity.ProviderFaceTec, cfg.FaceTec.APIKey != "", func() providers.Adapter { return facetec.New(cfg.FaceTec, cfg.Timeout) }},
	}
	for _, c := range candidates {
		if !c.configured {
			continue
		}
		if err := registry.Register(c.provider, c.adapter()); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func healthHandler(db *sql.DB, client *redis.Client, producer *kafka.Producer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := map[string]string{}
		healthy := true
		check := func(name string, err error) {
			if err != nil {
				checks[name] = err.Error()
				healthy = false
				return
			}
			checks[name] = "ok"
		}
		if db != nil {
			check("postgres", db.PingContext(ctx))
		}
		if client != nil {
			check("redis", client.Health(ctx))
		}
		if producer != nil {
			check("kafka", producer.Health(ctx))
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
	}
}

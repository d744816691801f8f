package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	catalogHandler "kiosk/internal/catalog/handler"
	catalogService "kiosk/internal/catalog/service"
	catalogStore "kiosk/internal/catalog/store"
	insuranceHandler "kiosk/internal/insurance/handler"
	insuranceMetrics "kiosk/internal/insurance/metrics"
	insuranceService "kiosk/internal/insurance/service"
	insuranceStore "kiosk/internal/insurance/store"
	"kiosk/internal/insurancesync"
	jwttoken "kiosk/internal/jwt_token"
	orderHandler "kiosk/internal/order/handler"
	orderMetrics "kiosk/internal/order/metrics"
	"kiosk/internal/order/sequencer"
	orderService "kiosk/internal/order/service"
	orderStore "kiosk/internal/order/store"
	patientHandler "kiosk/internal/patient/handler"
	patientMetrics "kiosk/internal/patient/metrics"
	patientService "kiosk/internal/patient/service"
	patientStore "kiosk/internal/patient/store"
	"kiosk/internal/platform/config"
	"kiosk/internal/platform/kafka"
	httpMetrics "kiosk/internal/platform/metrics"
	pgplatform "kiosk/internal/platform/postgres"
	redisplatform "kiosk/internal/platform/redis"
	audit "kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/audit/publishers/compliance"
	auditmemory "kiosk/pkg/platform/audit/store/memory"
	auditpostgres "kiosk/pkg/platform/audit/store/postgres"
	"kiosk/pkg/platform/audit/worker"
	"kiosk/pkg/platform/circuit"
	"kiosk/pkg/platform/httputil"
	adminmw "kiosk/pkg/platform/middleware/admin"
	authmw "kiosk/pkg/platform/middleware/auth"
	"kiosk/pkg/platform/middleware/metadata"
	request "kiosk/pkg/platform/middleware/request"
	"kiosk/pkg/platform/middleware/requesttime"
	"kiosk/pkg/platform/tx"
)

// registrar is implemented by every module handler.
type registrar interface {
	Register(r chi.Router)
}

type adminRegistrar interface {
	RegisterAdmin(r chi.Router)
}

type app struct {
	storage  string
	policy   insurancesync.Policy
	registry *prometheus.Registry
	db       *sql.DB
	redis    *redisplatform.Client
	producer *kafka.Producer
	relay    *worker.Relay
	handlers []registrar
}

type stores struct {
	patients  patientStoreSet
	insurance insuranceStore.Backend
	catalog   catalogService.Store
	orders    orderService.Store
	sequencer orderService.Sequencer
	audit     auditStore
	tx        tx.Runner
}

// patientStoreSet is the union of the patient service and coordinator ports.
type patientStoreSet interface {
	patientService.Store
	insurancesync.PatientStore
}

type auditStore interface {
	audit.Store
	audit.OutboxStore
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	loc, err := cfg.Ordering.Location()
	if err != nil {
		return nil, err
	}
	policy, err := insurancesync.ParsePolicy(cfg.Ordering.EligibilityPolicy)
	if err != nil {
		return nil, err
	}

	a := &app{policy: policy, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := a.openStores(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	insuranceBackend := st.insurance
	a.redis, err = redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	var insuranceReads insuranceService.Store = insuranceBackend
	if a.redis != nil {
		insuranceReads = insuranceStore.NewCached(insuranceBackend,
			insuranceStore.NewRedisCache(a.redis.Client, cfg.Redis.CacheTTL),
			insuranceStore.WithCacheLogger(log),
		)
	}

	publisher := compliance.New(st.audit,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(a.registry)),
	)

	insurance := insuranceService.New(insuranceReads,
		insuranceService.WithLogger(log),
		insuranceService.WithMetrics(insuranceMetrics.New(a.registry)),
		insuranceService.WithAuditPublisher(publisher),
		insuranceService.WithTx(st.tx),
		insuranceService.WithLocation(loc),
		insuranceService.WithExpiringSoonDays(cfg.Ordering.ExpiringSoonDays),
	)
	coordinator := insurancesync.New(st.patients, insurance,
		insurancesync.WithPolicy(policy),
		insurancesync.WithTx(st.tx),
		insurancesync.WithLocation(loc),
		insurancesync.WithLogger(log),
		insurancesync.WithMetrics(insurancesync.NewMetrics(a.registry)),
		insurancesync.WithAuditPublisher(publisher),
	)
	patients := patientService.New(st.patients, insurance,
		patientService.WithSyncer(coordinator),
		patientService.WithLogger(log),
		patientService.WithMetrics(patientMetrics.New(a.registry)),
		patientService.WithAuditPublisher(publisher),
		patientService.WithTx(st.tx),
		patientService.WithLocation(loc),
	)
	catalog := catalogService.New(st.catalog, catalogService.WithLogger(log))
	orders := orderService.New(st.orders, st.sequencer, patients, catalog,
		orderService.WithLogger(log),
		orderService.WithMetrics(orderMetrics.New(a.registry)),
		orderService.WithAuditPublisher(publisher),
		orderService.WithTx(st.tx),
		orderService.WithLocation(loc),
	)

	a.handlers = []registrar{
		insuranceHandler.New(insurance, coordinator, log),
		patientHandler.New(patients, coordinator, log, patientHandler.WithLocation(loc)),
		catalogHandler.New(catalog, log),
		orderHandler.New(orders, log),
	}

	if err := a.startRelay(ctx, cfg, st.audit, log); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.Database.URL == "" {
		a.storage = "memory"
		log.Warn("database.url not set, using in-memory stores")
		orders := orderStore.NewInMemory()
		return &stores{
			patients:  patientStore.NewInMemory(),
			insurance: insuranceStore.NewInMemory(),
			catalog:   catalogStore.NewInMemory(),
			orders:    orders,
			sequencer: sequencer.NewMemory(orders),
			audit:     auditmemory.NewInMemoryStore(),
			tx:        tx.NewMemoryRunner(cfg.Ordering.TxTimeout),
		}, nil
	}

	a.storage = "postgres"
	db, err := pgplatform.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	if cfg.Database.MigrateOnStart {
		n, err := pgplatform.NewMigrator(db).Up(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied", "count", n)
	}
	return &stores{
		patients:  patientStore.NewPostgres(db),
		insurance: insuranceStore.NewPostgres(db),
		catalog:   catalogStore.NewPostgres(db),
		orders:    orderStore.NewPostgres(db),
		sequencer: sequencer.NewPostgres(db),
		audit:     auditpostgres.New(db),
		tx: tx.NewPostgresRunner(db,
			tx.WithTimeout(cfg.Ordering.TxTimeout),
			tx.WithRetryable(pgplatform.IsRetryable),
		),
	}, nil
}

func (a *app) startRelay(ctx context.Context, cfg *config.Config, outbox auditStore, log *slog.Logger) error {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka.brokers not set, outbox relay disabled")
		return nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		return err
	}
	a.producer = producer

	a.relay = worker.NewRelay(outbox, producer,
		worker.WithLogger(log),
		worker.WithMetrics(worker.NewMetrics(a.registry)),
		worker.WithBreaker(circuit.New("kafka",
			circuit.WithFailureThreshold(5),
			circuit.WithCooldown(30*time.Second),
		)),
		worker.WithInterval(cfg.Kafka.RelayInterval),
		worker.WithBatchSize(cfg.Kafka.RelayBatch),
		worker.WithTopicPrefix(cfg.Kafka.TopicPrefix),
	)
	if err := producer.EnsureTopics(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication, a.relay.Topics()...); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}
	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newRouter(cfg *config.Config, a *app, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	r.Use(request.Recovery(log))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(httpMetrics.New(a.registry).Instrument)

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	validator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience),
	)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(validator, log))
		for _, h := range a.handlers {
			h.Register(r)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.Server.AdminToken, log))
		for _, h := range a.handlers {
			if ah, ok := h.(adminRegistrar); ok {
				ah.RegisterAdmin(r)
			}
		}
	})
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"storage": a.storage}
	status := http.StatusOK
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["postgres"] = "ok"
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}
	if a.producer != nil {
		if err := a.producer.Ping(ctx); err != nil {
			checks["kafka"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["kafka"] = "ok"
		}
	}
	httputil.WriteJSON(w, status, checks)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/casedesk/pkg/api"
	"github.com/platinummonkey/casedesk/pkg/audit"
	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/config"
	"github.com/platinummonkey/casedesk/pkg/middleware"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/operators"
	"github.com/platinummonkey/casedesk/pkg/records"
	"github.com/platinummonkey/casedesk/pkg/session"
	"github.com/platinummonkey/casedesk/pkg/sso"
	"github.com/platinummonkey/casedesk/pkg/storage"
	"github.com/platinummonkey/casedesk/pkg/storage/postgres"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).WithFields(map[string]interface{}{
		"service": "casedesk",
		"version": version,
	})

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("casedesk stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = observability.WithLogger(ctx, logger)

	otelCfg := cfg.Observability.OTel()
	otelCfg.ServiceVersion = version
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	stores, err := openStores(ctx, cfg.Storage, metrics, logger)
	if err != nil {
		return err
	}

	signer, err := auth.NewTokenSigner([]byte(cfg.Session.Secret))
	if err != nil {
		return err
	}
	verifier := auth.NewVerifier(signer, stores.revocations,
		auth.WithRevocationTimeout(cfg.Session.RevocationTimeout),
		auth.WithMetrics(metrics),
	)

	provider, err := sso.NewOIDCProvider(ctx, cfg.OIDC)
	if err != nil {
		return err
	}

	directory := operators.NewDirectory(stores.documents)
	cookies := cfg.Session.CookiePolicy()
	sessions := session.NewManager(provider, signer, stores.revocations, session.Options{
		Lifetime:          cfg.Session.MaxAge,
		RevokeAllOnLogout: cfg.Session.RevokeAllOnLogout,
		Provisioner:       directory,
		Metrics:           metrics,
	})

	limiter := middleware.NewLoginRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.Session.LoginRequestsPerMinute,
		BurstSize:         cfg.Session.LoginBurst,
		TrustedProxyHops:  cfg.Server.TrustedProxyHops,
	})
	limiter.StartCleanup(ctx)

	server := api.NewServer(api.Dependencies{
		Sessions:   sessions,
		Cookies:    cookies,
		Propagator: middleware.NewIdentityPropagator(verifier, cookies),
		Records: records.NewService(stores.documents, directory, records.Options{
			Objects: stores.objects,
			Metrics: metrics,
		}),
		Operators:    directory,
		LoginLimiter: limiter,
		Logger:       logger,
		Metrics:      metrics,
		Audit:        audit.NewStructuredLogger(os.Stdout),
	})
	if cfg.OIDC.CodeFlowEnabled() {
		sso.NewHandlers(provider, sessions, cookies).RegisterRoutes(server.Router())
	}

	health := observability.NewHealthChecker(stores.db, stores.redis, version)
	registerProbes(server.Router(), health, registry)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server.Handler(), "casedesk"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	probeRouter := mux.NewRouter()
	registerProbes(probeRouter, health, registry)
	probeServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: probeRouter,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("probe-server", probeServer.Shutdown)
	shutdown.Register("storage", func(context.Context) error { return stores.close() })
	shutdown.Register("otel", func(ctx context.Context) error { return observability.ShutdownOTel(ctx, providers) })

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{httpServer, probeServer} {
		go func(srv *http.Server) {
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
				cancel()
			}
		}(srv)
	}

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

func registerProbes(router *mux.Router, health *observability.HealthChecker, registry *prometheus.Registry) {
	router.HandleFunc("/healthz", health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", health.Readiness).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
}

// stores are the backends selected by the storage configuration
type stores struct {
	documents   storage.DocumentStore
	objects     storage.ObjectStore
	revocations auth.RevocationStore
	db          *sql.DB
	redis       *redis.Client
	closers     []func() error
}

func (s *stores) close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openStores(ctx context.Context, cfg storage.Config, metrics *observability.Metrics, logger *observability.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Type {
	case "postgres":
		db, err := postgres.Open(ctx, postgres.ConnectionConfigFrom(cfg))
		if err != nil {
			return nil, err
		}
		documents := postgres.NewDocumentStore(db, metrics)
		if err := documents.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		s.documents, s.db = documents, db
		s.closers = append(s.closers, documents.Close)
	default:
		logger.Warn("Using in-memory document store, data is lost on restart")
		s.documents = storage.NewMemoryDocumentStore()
	}

	if cfg.RedisURL != "" {
		client, err := postgres.NewRedisClient(cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		s.revocations, s.redis = client, client.Client()
		s.closers = append(s.closers, client.Close)
	} else {
		logger.Warn("Using in-memory revocation store, revocations are local to this instance")
		s.revocations = auth.NewMemoryRevocationStore()
	}

	if cfg.S3Bucket != "" {
		objects, err := postgres.NewS3Client(cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		s.objects = objects
	} else {
		objects, err := storage.NewFileSystemObjectStore(cfg.FilesystemRoot)
		if err != nil {
			s.close()
			return nil, err
		}
		s.objects = objects
	}

	return s, nil
}

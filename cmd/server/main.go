// Command server runs the racepass credential engine: issuance,
// verification, revocation and holder retrieval over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"racepass/internal/audit"
	"racepass/internal/did"
	httpapi "racepass/internal/http"
	"racepass/internal/keys"
	"racepass/internal/nonce"
	"racepass/internal/platform/config"
	"racepass/internal/platform/database"
	"racepass/internal/platform/httpserver"
	"racepass/internal/platform/logger"
	platformredis "racepass/internal/platform/redis"
	"racepass/internal/revocation"
	"racepass/internal/vc/handler"
	"racepass/internal/vc/metrics"
	"racepass/internal/vc/service"
	"racepass/internal/vc/store"
	"racepass/internal/vc/tracer"
	"racepass/internal/workers/cleanup"
	platformstrings "racepass/pkg/platform/strings"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	provider, err := keys.Load(cfg.PrivateKey, cfg.PublicKey)
	if err != nil {
		log.Error("key material unusable", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httpapi.HealthChecker{}

	// Credential and nonce stores: Postgres when configured, memory
	// otherwise.
	var creds store.Store = store.NewMemoryStore()
	var nonces nonce.Store = nonce.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		pool, err := database.New(dbCfg)
		if err != nil {
			log.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		creds = store.NewPostgresStore(pool.DB())
		nonces = nonce.NewPostgresStore(pool.DB())
		checks["database"] = pool
		log.Info("using postgres stores")
	}

	var registry revocation.Registry = revocation.NewStoreRegistry(creds)

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		nonces = nonce.NewRedisStore(redisClient.Client)
		registry = revocation.NewRedisCache(registry, redisClient.Client)
		checks["redis"] = redisClient
		log.Info("using redis nonce store and revocation cache")
	}

	// Issuer DID resolution: did:web over the network, everything else
	// pinned to the local issuer key (ledger-simulated methods).
	mux := did.NewMethodMux()
	web := did.NewWebResolver(
		did.WithHTTPClient(&http.Client{Timeout: cfg.ResolveTimeout}),
	)
	mux.Register("web", did.NewResilientResolver(web, log))
	static := did.NewStaticResolver(did.WithFallbackKey(provider.PublicKey()))
	static.Add(cfg.IssuerDID, provider.PublicKey())
	mux.Register("ebsi", static)

	var sink audit.Sink = audit.NewMemorySink()
	if cfg.KafkaBrokers != "" {
		kafkaSink, err := audit.NewKafkaSink(audit.KafkaConfig{
			Brokers: platformstrings.DedupeAndTrim(strings.Split(cfg.KafkaBrokers, ",")),
			Topic:   cfg.AuditTopic,
		}, log)
		if err != nil {
			log.Error("kafka audit sink unavailable", "error", err)
			os.Exit(1)
		}
		sink = kafkaSink
		log.Info("audit events publishing to kafka", "topic", cfg.AuditTopic)
	}
	defer sink.Close()

	m := metrics.New()
	spans := tracer.NewOTel()

	issuer, err := service.NewIssuer(provider, creds, cfg.IssuerDID,
		service.WithIssuerLogger(log),
		service.WithIssuerMetrics(m),
		service.WithIssuerTracer(spans),
		service.WithIssuerAuditSink(sink),
	)
	if err != nil {
		log.Error("issuer init failed", "error", err)
		os.Exit(1)
	}
	verifier, err := service.NewVerifier(mux, registry, nonces,
		service.WithVerifierLogger(log),
		service.WithVerifierMetrics(m),
		service.WithVerifierTracer(spans),
		service.WithVerifierAuditSink(sink),
	)
	if err != nil {
		log.Error("verifier init failed", "error", err)
		os.Exit(1)
	}
	revoker, err := service.NewRevoker(registry,
		service.WithRevokerLogger(log),
		service.WithRevokerMetrics(m),
		service.WithRevokerTracer(spans),
		service.WithRevokerAuditSink(sink),
	)
	if err != nil {
		log.Error("revoker init failed", "error", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(httpapi.Config{
		Handler:    handler.New(issuer, verifier, revoker, creds, nonces, log),
		Logger:     log,
		AdminToken: cfg.AdminToken,
		Checks:     checks,
	})
	srv := httpserver.New(cfg.Addr, router)

	sweeper := cleanup.New(nonces,
		cleanup.WithLogger(log),
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithMetrics(m),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr, "issuer_did", cfg.IssuerDID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sweeper.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

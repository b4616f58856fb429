package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/geocoder89/medledger/internal/audit"
	"github.com/geocoder89/medledger/internal/auth"
	"github.com/geocoder89/medledger/internal/config"
	"github.com/geocoder89/medledger/internal/db"
	httpx "github.com/geocoder89/medledger/internal/http"
	"github.com/geocoder89/medledger/internal/http/handlers"
	"github.com/geocoder89/medledger/internal/ledger"
	"github.com/geocoder89/medledger/internal/ledger/redisledger"
	"github.com/geocoder89/medledger/internal/observability"
	"github.com/geocoder89/medledger/internal/records"
	"github.com/geocoder89/medledger/internal/repo/memory"
	"github.com/geocoder89/medledger/internal/repo/postgres"
	"github.com/geocoder89/medledger/internal/security"
	"github.com/geocoder89/medledger/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// used only when APP_ENV is dev or test and JWT_SECRET is unset
const devJWTSecret = "medledger-dev-secret"

type stores struct {
	users   users.Store
	records records.RecordStore
	check   handlers.Check
	close   func()
}

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "medledger-api",
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	st, err := openStores(ctx, cfg, reg, prom, log)
	if err != nil {
		log.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer st.close()

	hasher := security.BcryptHasher{}

	if err := db.EnsureAdminUser(ctx, st.users, hasher, cfg); err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn("JWT_SECRET unset, using the development secret")
		secret = devJWTSecret
	}

	tokens, err := auth.NewManager(secret, cfg.JWTAlgorithm, cfg.AccessTTL())
	if err != nil {
		log.Error("token manager init failed", "err", err)
		os.Exit(1)
	}

	inner, err := openLedger(ctx, cfg, log)
	if err != nil {
		log.Error("ledger init failed", "err", err)
		os.Exit(1)
	}

	guarded := ledger.NewGuarded(inner, ledger.GuardConfig{
		Timeout:          cfg.LedgerTimeout,
		FailureThreshold: cfg.LedgerBreakerThreshold,
		Cooldown:         cfg.LedgerBreakerCooldown,
	})
	defer guarded.Close()

	auditLog := audit.NewLog(guarded, log, prom)

	var draining atomic.Bool

	// set up routers with the log
	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Users:    users.NewService(st.users, hasher, tokens, prom, log).WithActorCacheTTL(cfg.ActorCacheTTL),
		Records:  records.NewService(st.users, st.records, auditLog, prom, log),
		Audit:    auditLog,
		Tokens:   tokens,
		Prom:     prom,
		Gatherer: reg,
		Checks: map[string]handlers.Check{
			"store":  st.check,
			"ledger": guarded.Ping,
		},
		Draining: draining.Load,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver, "ledger", cfg.LedgerDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")
	draining.Store(true)

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

func openStores(ctx context.Context, cfg config.Config, reg prometheus.Registerer, prom *observability.Prom, log *slog.Logger) (stores, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")

		mem := memory.NewStore()

		return stores{
			users:   mem.Users(),
			records: mem.Records(),
			check:   func(context.Context) error { return nil },
			close:   func() {},
		}, nil
	}

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DBURL); err != nil {
			return stores{}, err
		}
		log.Info("migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, db.PoolConfig{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		return stores{}, err
	}

	observability.RegisterPoolStats(reg, pool)

	return stores{
		users:   postgres.NewUsersRepo(pool, prom),
		records: postgres.NewRecordsRepo(pool, prom),
		check:   pool.Ping,
		close:   pool.Close,
	}, nil
}

func openLedger(ctx context.Context, cfg config.Config, log *slog.Logger) (ledger.Ledger, error) {
	if cfg.LedgerDriver == "memory" {
		log.Warn("using in-memory ledger, audit history is lost on restart")
		return ledger.NewMemoryLedger(), nil
	}

	return redisledger.Dial(ctx, redisledger.Config{
		Addr:           cfg.RedisAddr,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		ConnectRetries: cfg.LedgerConnectRetries,
		ConnectDelay:   cfg.LedgerConnectDelay,
	}, log)
}

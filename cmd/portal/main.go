package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/config"
	"github.com/boddenberg/agency-portal-bfa-go/internal/handler"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/cache"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/docstore"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/memory"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/sqlstore"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"
	"github.com/boddenberg/agency-portal-bfa-go/internal/seed"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("timezone", cfg.Timezone),
		zap.String("primary_collection", cfg.PrimaryCollection),
		zap.String("mirror_collection", cfg.MirrorCollection),
		zap.Int("agency_emails", len(cfg.AgencyEmails)),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("session_idle_ttl", cfg.SessionIdleTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "agency-portal-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Storage & identity ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var store port.DocumentStore
	var identity port.IdentityProviderFactory

	switch cfg.StoreBackend {
	case config.BackendSupabase:
		if cfg.SupabaseURL == "" {
			logger.Fatal("SUPABASE_URL is required for the supabase backend")
		}
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		store = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase-rest", supabase.IsNotFound),
			resilienceCfg,
			logger,
		)
		gotrue := supabase.NewIdentityClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase-auth", supabase.IsRejection),
			resilienceCfg,
			logger,
		)
		identity = gotrue.NewSession

	case config.BackendPostgres, config.BackendSQLite:
		dialect, dsn := sqlstore.Postgres, cfg.DatabaseURL
		if cfg.StoreBackend == config.BackendSQLite {
			dialect, dsn = sqlstore.SQLite, cfg.SQLitePath
		}
		sqlStore, err := sqlstore.Open(dialect, dsn, resilience.NewCircuitBreaker("sql-store", sqlstore.IsNotFound), resilienceCfg, logger)
		if err != nil {
			logger.Fatal("failed to open database", zap.String("backend", cfg.StoreBackend), zap.Error(err))
		}
		defer sqlStore.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = sqlStore.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		logger.Info("using SQL database as data backend", zap.String("dialect", string(dialect)))
		store = sqlStore
		identity = memory.NewDirectory().Factory()
		logger.Warn("identity provider: in-process directory, accounts are lost on restart")

	case config.BackendMemory:
		logger.Warn("using in-memory data backend, nothing is persisted")
		store = memory.NewStore()
		identity = memory.NewDirectory().Factory()

	default:
		logger.Fatal("unknown STORE_BACKEND", zap.String("store_backend", cfg.StoreBackend))
	}

	// --- Cache ---
	tenantCache := cache.New[bool](cfg.CacheTTL)
	defer tenantCache.Close()

	profiles := docstore.NewProfiles(store)
	tenants := docstore.NewTenants(store, tenantCache, metrics)

	// --- Seed templates ---
	templates, err := seed.Load(cfg.SeedFile)
	if err != nil {
		logger.Fatal("failed to load seed templates", zap.String("seed_file", cfg.SeedFile), zap.Error(err))
	}
	loc := cfg.Location()

	// --- Services ---
	resolver := service.NewRoleResolver(profiles, cfg.AgencyEmails, metrics, logger)
	sessions := service.NewSessionManager(
		identity,
		resolver,
		tenants,
		resilienceCfg,
		cfg.JWTSecret,
		cfg.JWTAccessTTL,
		cfg.SessionIdleTTL,
		metrics,
		logger,
	)
	defer sessions.CloseAll()

	svc := handler.Services{
		Sessions:  sessions,
		Accounts:  service.NewAccountService(sessions, resolver, profiles, identity, logger),
		Calendar:  service.NewCalendarSync(store, cfg.PrimaryCollection, cfg.MirrorCollection, loc, templates.Entries(loc), metrics, logger),
		Workspace: service.NewWorkspace(store, templates.TaskList(), templates.IdeaList(loc), metrics, logger),
		Directory: service.NewAgencyDirectory(profiles, tenants, identity, logger),
		Tenants:   tenants,
	}

	// --- Router ---
	router := handler.NewRouter(svc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	// Open websocket streams end once their sessions close.
	sessions.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/tenancy/internal/api"
	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/core"
	"github.com/edvin/tenancy/internal/db"
	"github.com/edvin/tenancy/internal/logging"
	"github.com/edvin/tenancy/internal/metrics"
	"github.com/edvin/tenancy/internal/secretstore"
	"github.com/edvin/tenancy/migrations"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(config.RoleCoreAPI); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *migrateFlag {
		logger.Info().Str("dir", migrations.CoreDir).Msg("running database migrations")
		applied, err := db.RunMigrations(ctx, cfg.CoreDatabaseURL, migrations.Core, migrations.CoreDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Ints64("versions", applied).Msg("database migrations applied")
	}

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL, "tenancy-core-api", int32(cfg.CoreDBMaxConns))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, "core", corePool)

	secrets, err := secretstore.Open(ctx, cfg.SecretStore())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open secret store")
	}
	if cfg.SecretStoreKind == secretstore.KindMemory {
		logger.Warn().Msg("using in-memory secret store, credentials are lost on restart")
	}

	dialOpts, err := cfg.TemporalOptions(logging.NewTemporalLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	if dialOpts.ConnectionOptions.TLS != nil {
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	tenants := core.NewTenantService(corePool, tc, secrets, cfg.Provisioning())

	seed, err := cfg.SharedBootstrap()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid shared database settings")
	}
	if seed != nil {
		written, err := tenants.EnsureSharedCredentials(ctx, *seed)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to seed shared database credentials")
		}
		logger.Info().Strs("paths", written).Msg("shared database credentials ensured")
	} else {
		logger.Warn().Msg("SHARED_DB_ADMIN_USERNAME unset, shared database credentials must be seeded by an operator")
	}
	srv := api.NewServer(logger, corePool, tc, cfg, tenants)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Strs("services", cfg.Services).Msg("starting core API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"

	"github.com/edvin/tenancy/internal/activity"
	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/logging"
	"github.com/edvin/tenancy/internal/metrics"
	"github.com/edvin/tenancy/internal/migration"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/secretstore"
	"github.com/edvin/tenancy/internal/tenantapi"
	"github.com/edvin/tenancy/internal/workflow"
)

func main() {
	serviceFlag := flag.String("service", "", "Backend service whose tenant databases this worker migrates (default MIGRATION_SERVICE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *serviceFlag != "" {
		cfg.MigrationService = *serviceFlag
	}

	if err := cfg.Validate(config.RoleMigrationWorker); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secrets, err := secretstore.Open(ctx, cfg.SecretStore())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open secret store")
	}

	opts, err := cfg.MigrationOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid migration options")
	}

	dialOpts, err := cfg.TemporalOptions(logging.NewTemporalLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	tenants := tenantapi.NewClient(cfg.TenantAPIURL, cfg.TenantAPIKey)
	runner := migration.NewRunner(secrets, cfg.RunnerConfig(), logger)
	handler := migration.NewHandler(cfg.MigrationService, tenants, runner, opts, logger)

	taskQueue := model.MigrationTaskQueue(cfg.MigrationService)
	w := worker.New(tc, taskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ErrorTypingInterceptor{}},
	})
	w.RegisterActivity(activity.NewTenantMigration(handler))
	w.RegisterWorkflowWithOptions(workflow.TenantMigrationWorkflow, temporalworkflow.RegisterOptions{Name: model.TenantMigrationWorkflowName})

	if cfg.MetricsAddr != "" {
		ready := func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
			return err
		}
		metricsSrv := metrics.NewServer(cfg.MetricsAddr, ready)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().
			Str("taskQueue", taskQueue).
			Str("scriptsDir", cfg.MigrationScriptsDir).
			Bool("localMode", cfg.LocalDevelopment).
			Msg("starting migration worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down migration worker")
	cancel()
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/logging"
	"github.com/edvin/tenancy/internal/migration"
	"github.com/edvin/tenancy/internal/secretstore"
	"github.com/edvin/tenancy/internal/tenantapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		sharedOnly  bool
		tenantID    string
		service     string
		parallelism int
	)

	exitCode := 0
	cmd := &cobra.Command{
		Use:   "migrator",
		Short: "Apply pending schema migrations to a service's tenant databases",
		Long: `Applies the service's pending migration scripts to its shared database and to
every tenant with a database of its own. Exits non-zero when any database failed,
so it can gate deploys from a pre-sync hook or a Kubernetes Job.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sharedOnly && tenantID != "" {
				return fmt.Errorf("--shared-only and --tenant are mutually exclusive")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if service != "" {
				cfg.MigrationService = service
			}
			if err := cfg.Validate(config.RoleMigrator); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ok, err := migrate(cmd.Context(), cfg, migration.Selection{SharedOnly: sharedOnly, TenantID: tenantID}, parallelism, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !ok {
				exitCode = 1
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sharedOnly, "shared-only", false, "Migrate only the shared database")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Migrate only this tenant's database")
	cmd.Flags().StringVar(&service, "service", "", "Service whose databases to migrate (default MIGRATION_SERVICE)")
	cmd.Flags().IntVar(&parallelism, "parallel", migration.DefaultParallelism, "Databases migrated at once")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return exitCode
}

func migrate(ctx context.Context, cfg *config.Config, sel migration.Selection, parallelism int, out io.Writer) (bool, error) {
	logger := logging.NewLogger(cfg)

	store, err := secretstore.Open(ctx, cfg.SecretStore())
	if err != nil {
		return false, fmt.Errorf("open secret store: %w", err)
	}
	opts, err := cfg.MigrationOptions()
	if err != nil {
		return false, err
	}

	runner := migration.NewRunner(store, cfg.RunnerConfig(), logger)
	tenants := tenantapi.NewClient(cfg.TenantAPIURL, cfg.TenantAPIKey, tenantapi.WithTimeout(time.Minute))
	batch := migration.NewBatch(cfg.MigrationService, runner, tenants, cfg.SecretPaths(), opts, parallelism, logger)

	targets, err := batch.Plan(ctx, sel)
	if err != nil {
		return false, fmt.Errorf("plan migrations: %w", err)
	}
	summary := batch.Run(ctx, targets)
	printSummary(out, cfg.MigrationService, summary)
	return summary.OK(), nil
}

func printSummary(out io.Writer, service string, summary migration.Summary) {
	for _, r := range summary.Results {
		if r.Result.Success {
			fmt.Fprintf(out, "✓ %s/%s: %d script(s) applied\n", service, r.Target.Name, r.Result.ScriptsApplied)
		} else {
			fmt.Fprintf(out, "✗ %s/%s: %s\n", service, r.Target.Name, r.Result.ErrorMessage)
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Service", "Databases", "Succeeded", "Failed"})
	t.AppendRow(table.Row{service, len(summary.Results), summary.Succeeded(), summary.Failed()})
	t.Render()
}

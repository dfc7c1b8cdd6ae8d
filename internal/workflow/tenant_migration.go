package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/tenancy/internal/model"
)

// TenantMigrationWorkflow runs on a backend service's task queue when a
// tenant is created and migrates that service's database. It is started
// once per participating service with a deterministic workflow ID, so a
// duplicate TenantCreated publish is rejected by Temporal.
func TenantMigrationWorkflow(ctx workflow.Context, ev model.TenantCreated) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			MaximumInterval:    5 * time.Minute,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    10,
		},
	})

	logger := workflow.GetLogger(ctx)
	logger.Info("migrating tenant database", "tenant_id", ev.TenantID, "identifier", ev.Identifier)

	return workflow.ExecuteActivity(ctx, "HandleTenantCreated", ev).Get(ctx, nil)
}

package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ReconcileProvisioningWorkflow is scheduled on the control-plane task queue
// and marks the failed services of otherwise completed tenants as
// partially provisioned.
func ReconcileProvisioningWorkflow(ctx workflow.Context) (int, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	var changed int
	if err := workflow.ExecuteActivity(ctx, "ReconcileProvisioning").Get(ctx, &changed); err != nil {
		return 0, err
	}
	if changed > 0 {
		workflow.GetLogger(ctx).Info("marked services partially provisioned", "count", changed)
	}
	return changed, nil
}

package core

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/tenancy/internal/model"
)

// ReconcileWorkflowName is scheduled by the control-plane worker.
const ReconcileWorkflowName = "ReconcileProvisioningWorkflow"

// ControlTaskQueue is polled by the control-plane worker.
const ControlTaskQueue = "tenancy-control"

// publishEvents delivers domain events after the aggregate is committed.
// TenantCreated fans out to one migration workflow per participating service.
func publishEvents(ctx context.Context, tc temporalclient.Client, services []string, events []model.DomainEvent) error {
	var errs *multierror.Error
	for _, ev := range events {
		switch e := ev.(type) {
		case model.TenantCreated:
			for _, svc := range services {
				if err := startMigration(ctx, tc, e, svc); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("start migration for %s: %w", svc, err))
				}
			}
		default:
			return fmt.Errorf("no publisher for event %s", ev.EventName())
		}
	}
	return errs.ErrorOrNil()
}

func startMigration(ctx context.Context, tc temporalclient.Client, ev model.TenantCreated, service string) error {
	_, err := tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        model.MigrationWorkflowID(ev.TenantID, service),
		TaskQueue: model.MigrationTaskQueue(service),
	}, model.TenantMigrationWorkflowName, ev)
	return err
}

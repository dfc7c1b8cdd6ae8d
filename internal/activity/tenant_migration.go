package activity

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/edvin/tenancy/internal/model"
)

// TenantCreatedHandler runs a backend service's migrations for a new tenant.
type TenantCreatedHandler interface {
	Handle(ctx context.Context, ev model.TenantCreated) error
}

// TenantMigration contains the activity run by each backend service's
// migration worker.
type TenantMigration struct {
	handler TenantCreatedHandler
}

// NewTenantMigration creates a new TenantMigration activity struct.
func NewTenantMigration(handler TenantCreatedHandler) *TenantMigration {
	return &TenantMigration{handler: handler}
}

// HandleTenantCreated migrates this service's database for ev's tenant. An
// error means the migration status API was unreachable and the activity
// should be retried; migration failures are reported and return nil.
func (a *TenantMigration) HandleTenantCreated(ctx context.Context, ev model.TenantCreated) error {
	if timeout := activity.GetInfo(ctx).HeartbeatTimeout; timeout > 0 {
		stop := heartbeat(ctx, timeout/2)
		defer stop()
	}
	return a.handler.Handle(ctx, ev)
}

// heartbeat records a heartbeat every interval until stop is called.
func heartbeat(ctx context.Context, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

package activity

import (
	"context"
	"fmt"
)

// Reconciler rolls finished tenants up into their aggregate provisioning state.
type Reconciler interface {
	ReconcileProvisioning(ctx context.Context) (int, error)
}

// Reconcile contains the control-plane's periodic provisioning activities.
type Reconcile struct {
	tenants Reconciler
}

func NewReconcile(tenants Reconciler) *Reconcile {
	return &Reconcile{tenants: tenants}
}

// ReconcileProvisioning marks services of partially provisioned tenants and
// returns how many statuses changed.
func (a *Reconcile) ReconcileProvisioning(ctx context.Context) (int, error) {
	n, err := a.tenants.ReconcileProvisioning(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile provisioning: %w", err)
	}
	return n, nil
}

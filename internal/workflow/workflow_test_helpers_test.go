package workflow

import (
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/tenancy/internal/activity"
)

// registerActivities registers activity structs with the test workflow
// environment so that parameter and return types can be deserialized
// correctly. All activities are mocked via OnActivity.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.TenantMigration{})
	env.RegisterActivity(&activity.Reconcile{})
}

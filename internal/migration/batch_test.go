package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/secretstore"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	args := m.Called(ctx)
	tenants, _ := args.Get(0).([]model.Tenant)
	return tenants, args.Error(1)
}

func (m *mockDirectory) GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	args := m.Called(ctx, tenantID)
	t, _ := args.Get(0).(*model.Tenant)
	return t, args.Error(1)
}

func (m *mockDirectory) GetDatabaseMetadata(ctx context.Context, tenantID, service string) (*model.DatabaseMetadata, error) {
	args := m.Called(ctx, tenantID, service)
	meta, _ := args.Get(0).(*model.DatabaseMetadata)
	return meta, args.Error(1)
}

func newTestBatch(dir *mockDirectory, migrator *mockMigrator) *Batch {
	return NewBatch("catalog", migrator, dir, secretstore.Paths{Root: "database"}, DefaultOptions(), 2, zerolog.Nop())
}

func writePath(path string) *model.DatabaseMetadata {
	return &model.DatabaseMetadata{ServiceName: "catalog", WriteCredentialPath: path, WriteEnvKey: "CATALOG_DB_WRITE"}
}

func TestBatchPlan_SharedOnly(t *testing.T) {
	b := newTestBatch(&mockDirectory{}, &mockMigrator{})

	targets, err := b.Plan(context.Background(), Selection{SharedOnly: true})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "shared", targets[0].Name)
	assert.Equal(t, "database/shared/shared/catalog/write", targets[0].SecretPath)
}

func TestBatchPlan_Tenant(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("GetTenant", mock.Anything, "t-1").Return(&model.Tenant{ID: "t-1", Identifier: "acme", DatabaseStrategy: model.StrategyDedicated}, nil)
	dir.On("GetDatabaseMetadata", mock.Anything, "t-1", "catalog").Return(writePath("database/tenants/t-1/catalog/write"), nil)

	targets, err := newTestBatch(dir, &mockMigrator{}).Plan(context.Background(), Selection{TenantID: "t-1"})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, Target{Name: "acme", TenantID: "t-1", SecretPath: "database/tenants/t-1/catalog/write"}, targets[0])
}

func TestBatchPlan_TenantWithoutServiceDatabase(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("GetTenant", mock.Anything, "t-1").Return(&model.Tenant{ID: "t-1", Identifier: "acme"}, nil)
	dir.On("GetDatabaseMetadata", mock.Anything, "t-1", "catalog").Return(nil, model.ErrNotFound)

	_, err := newTestBatch(dir, &mockMigrator{}).Plan(context.Background(), Selection{TenantID: "t-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBatchPlan_All(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListTenants", mock.Anything).Return([]model.Tenant{
		{ID: "t-1", Identifier: "acme", DatabaseStrategy: model.StrategyShared},
		{ID: "t-2", Identifier: "globex", DatabaseStrategy: model.StrategyDedicated},
		{ID: "t-3", Identifier: "initech", DatabaseStrategy: model.StrategyExternal},
		{ID: "t-4", Identifier: "umbrella", DatabaseStrategy: model.StrategyDedicated},
	}, nil)
	dir.On("GetDatabaseMetadata", mock.Anything, "t-2", "catalog").Return(writePath("database/tenants/t-2/catalog/write"), nil)
	dir.On("GetDatabaseMetadata", mock.Anything, "t-3", "catalog").Return(writePath("database/tenants/t-3/catalog/write"), nil)
	dir.On("GetDatabaseMetadata", mock.Anything, "t-4", "catalog").Return(nil, model.ErrNotFound)

	targets, err := newTestBatch(dir, &mockMigrator{}).Plan(context.Background(), Selection{})
	require.NoError(t, err)

	var names []string
	for _, tg := range targets {
		names = append(names, tg.Name)
	}
	assert.Equal(t, []string{"shared", "globex", "initech"}, names)
	dir.AssertNotCalled(t, "GetDatabaseMetadata", mock.Anything, "t-1", "catalog")
}

func TestBatchPlan_ListFails(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListTenants", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := newTestBatch(dir, &mockMigrator{}).Plan(context.Background(), Selection{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list tenants")
}

func TestBatchRun_ContinuesPastFailures(t *testing.T) {
	migrator := &mockMigrator{}
	migrator.On("Migrate", mock.Anything, "p/shared", mock.Anything).Return(model.MigrationResult{Success: true, ScriptsApplied: 2})
	migrator.On("Migrate", mock.Anything, "p/globex", mock.Anything).Return(model.MigrationResult{
		Success: false, ErrorMessage: "syntax error", FailureKind: model.FailureScriptExecution,
	})
	migrator.On("Migrate", mock.Anything, "p/initech", mock.Anything).Return(model.MigrationResult{Success: true})

	targets := []Target{
		{Name: "shared", SecretPath: "p/shared"},
		{Name: "globex", TenantID: "t-2", SecretPath: "p/globex"},
		{Name: "initech", TenantID: "t-3", SecretPath: "p/initech"},
	}
	summary := newTestBatch(&mockDirectory{}, migrator).Run(context.Background(), targets)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, "shared", summary.Results[0].Target.Name)
	assert.Equal(t, "globex", summary.Results[1].Target.Name)
	assert.False(t, summary.Results[1].Result.Success)
	assert.Equal(t, 2, summary.Succeeded())
	assert.Equal(t, 1, summary.Failed())
	assert.False(t, summary.OK())
	migrator.AssertNumberOfCalls(t, "Migrate", 3)
}

func TestBatchRun_Empty(t *testing.T) {
	summary := newTestBatch(&mockDirectory{}, &mockMigrator{}).Run(context.Background(), nil)
	assert.True(t, summary.OK())
	assert.Equal(t, 0, summary.Succeeded())
}

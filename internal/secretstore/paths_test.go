package secretstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edvin/tenancy/internal/model"
)

func TestPaths(t *testing.T) {
	p := Paths{Root: "/database/"}

	assert.Equal(t, "database/shared/t-1/catalog/write", p.ForTenant(model.StrategyShared, "t-1", "catalog", AccessWrite))
	assert.Equal(t, "database/tenants/t-1/catalog/read", p.ForTenant(model.StrategyDedicated, "t-1", "catalog", AccessRead))
	assert.Equal(t, "database/tenants/t-1/orders/write", p.ForTenant(model.StrategyExternal, "t-1", "orders", AccessWrite))
	assert.Equal(t, "database/shared/shared/customer/write", p.ForShared("customer", AccessWrite))

	assert.Equal(t, "tenants/t-1/orders/write", Paths{}.ForTenant(model.StrategyExternal, "t-1", "orders", AccessWrite))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "CATALOG_DB_ACME_WRITE", EnvKey("catalog", "acme", AccessWrite))
	assert.Equal(t, "ORDER_ITEMS_DB_ACME_CORP_READ", EnvKey("order-items", "acme-corp", AccessRead))
}

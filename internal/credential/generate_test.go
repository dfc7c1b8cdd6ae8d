package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	a, err := GeneratePassword()
	require.NoError(t, err)
	b, err := GeneratePassword()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestGeneratePair(t *testing.T) {
	admin, app, err := GeneratePair("acme-catalog")
	require.NoError(t, err)

	assert.NotEqual(t, admin.Username, app.Username)
	assert.NotEqual(t, admin.Password, app.Password)
	assert.Contains(t, admin.Username, "acme_catalog_adm_")
	assert.Contains(t, app.Username, "acme_catalog_app_")
	assert.LessOrEqual(t, len(admin.Username), 32)
}

func TestGeneratePair_LongPrefixTruncated(t *testing.T) {
	admin, app, err := GeneratePair("a-very-long-tenant-identifier-orders")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(admin.Username), 32)
	assert.LessOrEqual(t, len(app.Username), 32)
}

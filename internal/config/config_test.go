package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "production")
	unsetenv(t, "STORE_BACKEND", "ITEMS_TABLE", "AWS_REGION", "IDEMPOTENCY_TTL")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendDynamoDB, cfg.Backend)
	assert.Equal(t, "items", cfg.ItemsTable)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.True(t, cfg.Production())
}

func TestLoad_DotEnvOverridesOutsideProduction(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("ORDERS_TABLE", "from-env")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ORDERS_TABLE=from-dotenv\n"), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.OrdersTable)
}

func TestValidate(t *testing.T) {
	base := Config{
		Backend:        BackendDynamoDB,
		ItemsTable:     "items",
		CartsTable:     "carts",
		OrdersTable:    "orders",
		IdempotencyTTL: time.Hour,
	}
	require.NoError(t, base.Validate())

	pg := base
	pg.Backend = BackendPostgres
	assert.Error(t, pg.Validate(), "postgres without DATABASE_URL")
	pg.DatabaseURL = "postgres://localhost/storefront"
	assert.NoError(t, pg.Validate())

	unknown := base
	unknown.Backend = "mysql"
	assert.Error(t, unknown.Validate())

	noTTL := base
	noTTL.IdempotencyTTL = 0
	assert.Error(t, noTTL.Validate())
}

func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

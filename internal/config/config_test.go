package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SYNC_DEADLINE", "")
	t.Setenv("DB_NAME", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "2024-04", cfg.Shopify.APIVersion)
	assert.Equal(t, 60*time.Second, cfg.Shopify.Timeout)
	assert.Equal(t, 250, cfg.Sync.PageSize)
	assert.Equal(t, 290*time.Second, cfg.Sync.Deadline)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.RetryBase)
	assert.Equal(t, "custom.fornitore", cfg.Sync.VendorKey)
	assert.Equal(t, 3, cfg.Scheduler.MaxTriggers)
	assert.Equal(t, 10, cfg.History.Cap)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SHOPIFY_STORE", "demo.myshopify.com")
	t.Setenv("SYNC_DEADLINE", "45s")
	t.Setenv("SYNC_RETRY_BASE", "not-a-duration")
	t.Setenv("SCHEDULER_MAX_TRIGGERS", "5")
	t.Setenv("DB_NAME", "quickedit")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "demo.myshopify.com", cfg.Shopify.Store)
	assert.Equal(t, 45*time.Second, cfg.Sync.Deadline)
	assert.Equal(t, time.Second, cfg.Sync.RetryBase)
	assert.Equal(t, 5, cfg.Scheduler.MaxTriggers)
	assert.True(t, cfg.Database.Enabled())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "3306", Name: "quickedit", User: "u", Pass: "p", Charset: "utf8mb4"}
	assert.Equal(t, "u:p@tcp(db:3306)/quickedit?charset=utf8mb4&parseTime=True&loc=Local", d.DSN())
}

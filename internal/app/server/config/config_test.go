package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(viper.New())

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, ":8080", cfg.Server.RunAddress)
	assert.Equal(t, 5*time.Minute, cfg.Claim.LeaseDuration)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 64, cfg.Dispatch.QueueSize)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.DB.DatabaseURI)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", EnvProd)
	t.Setenv("LEASE_DURATION", "90s")
	t.Setenv("DISPATCH_WORKERS", "16")
	t.Setenv("DATABASE_URI", "postgres://fs:fs@localhost:5432/fieldsync")
	t.Setenv("BACKUP_ENDPOINT", "minio:9000")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load(viper.New())

	assert.Equal(t, EnvProd, cfg.Env)
	assert.Equal(t, 90*time.Second, cfg.Claim.LeaseDuration)
	assert.Equal(t, 16, cfg.Dispatch.Workers)
	assert.Equal(t, "postgres://fs:fs@localhost:5432/fieldsync", cfg.DB.DatabaseURI)
	assert.Equal(t, "minio:9000", cfg.Backup.Endpoint)
	assert.True(t, cfg.Tracing.Enabled)
}

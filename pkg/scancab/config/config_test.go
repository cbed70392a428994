package config

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestWithEnv(t *testing.T) {
	t.Run("prefixed variables win", func(t *testing.T) {
		t.Setenv("SCANCAB_PORT", "9090")
		t.Setenv("PORT", "7070")
		t.Setenv("SCANCAB_ENVIRONMENT", "production")

		cfg, err := Load(WithEnv("SCANCAB"))
		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, "production", cfg.Environment)
	})

	t.Run("postgres database url", func(t *testing.T) {
		t.Setenv("SCANCAB_DATABASE_URL", "postgres://scancab:pw@localhost:5432/scancab")
		t.Setenv("SCANCAB_AUTO_MIGRATE", "true")

		cfg, err := Load(WithEnv("SCANCAB"))
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.DatabaseType)
		assert.True(t, cfg.AutoMigrate)
	})

	t.Run("memory database url", func(t *testing.T) {
		t.Setenv("SCANCAB_DATABASE_URL", "memory")

		cfg, err := Load(WithEnv("SCANCAB"))
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.DatabaseType)
	})

	t.Run("unsupported database scheme", func(t *testing.T) {
		t.Setenv("SCANCAB_DATABASE_URL", "mysql://nope")

		_, err := Load(WithEnv("SCANCAB"))
		assert.Error(t, err)
	})

	t.Run("file storage url", func(t *testing.T) {
		t.Setenv("SCANCAB_STORAGE_URL", "file:///var/lib/scancab/blobs")

		cfg, err := Load(WithEnv("SCANCAB"))
		require.NoError(t, err)
		assert.Equal(t, "fs", cfg.Storage.Type)
		assert.Equal(t, "/var/lib/scancab/blobs", cfg.Storage.BaseDir)
	})

	t.Run("s3 storage url", func(t *testing.T) {
		t.Setenv("SCANCAB_STORAGE_URL", "s3://scans?region=us-west-2&endpoint=http://localhost:9000&path_style=true")
		t.Setenv("AWS_ACCESS_KEY_ID", "minioadmin")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "minioadmin")

		cfg, err := Load(WithEnv("SCANCAB"))
		require.NoError(t, err)
		assert.Equal(t, "s3", cfg.Storage.Type)
		assert.Equal(t, "scans", cfg.Storage.Bucket)
		assert.Equal(t, "us-west-2", cfg.Storage.Region)
		assert.Equal(t, "http://localhost:9000", cfg.Storage.Endpoint)
		assert.True(t, cfg.Storage.UsePathStyle)
		assert.Equal(t, "minioadmin", cfg.Storage.AccessKeyID)
	})

	t.Run("unsupported storage scheme", func(t *testing.T) {
		t.Setenv("SCANCAB_STORAGE_URL", "ftp://old-school")

		_, err := Load(WithEnv("SCANCAB"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("postgres requires a url", func(t *testing.T) {
		cfg := defaults()
		cfg.DatabaseType = "postgres"
		assert.Error(t, cfg.Validate())
	})

	t.Run("fs requires a base dir", func(t *testing.T) {
		cfg := defaults()
		cfg.Storage = StorageConfig{Type: "fs"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("s3 requires a bucket", func(t *testing.T) {
		cfg := defaults()
		cfg.Storage = StorageConfig{Type: "s3", Region: "us-east-1"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown storage type", func(t *testing.T) {
		cfg := defaults()
		cfg.Storage = StorageConfig{Type: "tape"}
		assert.Error(t, cfg.Validate())
	})
}

func TestBuildServiceMemory(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	svc, sweeper, err := cfg.BuildService(context.Background(), slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, svc)
	assert.NotNil(t, sweeper)
}

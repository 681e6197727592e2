package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAIModel)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.False(t, cfg.IsProduction())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DATABASE_DRIVER", "postgres")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadS3NeedsBucket(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("FILE_STORAGE", "s3")
	t.Setenv("AWS_S3_BUCKET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("AWS_S3_BUCKET", "uploads")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "uploads", cfg.S3Bucket)
}

func TestDurationFallback(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("LLM_TIMEOUT", "not-a-duration")
	t.Setenv("APP_ENV", "Production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.True(t, cfg.IsProduction())
}

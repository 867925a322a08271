package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.ErrorIs(t, err, ErrNoEnvFile)
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Tracker.ReviewPromptDelay)
	assert.Equal(t, 10*time.Minute, cfg.Tracker.DefaultItemPrep)
	assert.Equal(t, 5*time.Minute, cfg.Tracker.DeliveryBuffer)
	assert.Equal(t, 32, cfg.Tracker.SessionSendBuffer)
	assert.NotEmpty(t, cfg.InstanceID)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.AMQP.URL)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "host=localhost user=tracker dbname=tracker")
	t.Setenv("REVIEW_PROMPT_DELAY", "30s")
	t.Setenv("ETA_DEFAULT_ITEM_PREP", "7m")
	t.Setenv("INSTANCE_ID", "node-a")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.ErrorIs(t, err, ErrNoEnvFile)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, 30*time.Second, cfg.Tracker.ReviewPromptDelay)
	assert.Equal(t, 7*time.Minute, cfg.Tracker.DefaultItemPrep)
	assert.Equal(t, "node-a", cfg.InstanceID)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRejectsInvalidDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DB_DRIVER", "oracle")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	cfg, _ := Load()
	require.NotNil(t, cfg)
	require.NoError(t, cfg.Validate())

	cfg.Tracker.DeliveryBuffer = 0
	assert.Error(t, cfg.Validate())
}

func TestReleaseModeRequiresJWTSecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GIN_MODE", "release")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoEnvFile)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err = Load()
	assert.ErrorIs(t, err, ErrNoEnvFile)
	require.NotNil(t, cfg)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

// chdirTemp moves the test into an empty directory so no stray .env is read.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = ParseDuration("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = ParseDuration("xd")
	assert.Error(t, err)
}

func TestLoadConfigDefaultsAndRequired(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_ACCESS_SECRET", "jwt")
	t.Setenv("CRON_SECRET", "cron")
	t.Setenv("REFRESH_TOKEN_TTL", "3d")
	t.Setenv("DATE_TRIGGER_DEDUP", "true")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "4000", AppConfig.ServerPort)
	assert.Equal(t, 20, AppConfig.Automation.BatchSize)
	assert.Equal(t, 3, AppConfig.Automation.MaxAttempts)
	assert.Equal(t, time.Minute, AppConfig.Automation.RetryBaseDelay)
	assert.Equal(t, 10*time.Minute, AppConfig.Automation.VisibilityTimeout)
	assert.True(t, AppConfig.Automation.DateTriggerDedup)
	assert.Equal(t, 72*time.Hour, AppConfig.RefreshTokenTTL)
	assert.Equal(t, time.Duration(0), AppConfig.SweepInterval)

	t.Setenv("CRON_SECRET", "")
	assert.EqualError(t, LoadConfig(), "CRON_SECRET is required")
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "host=db password=***** dbname=x", maskPassword("host=db password=hunter2 dbname=x"))
	assert.Equal(t, "password=*****", maskPassword("password=hunter2"))
}

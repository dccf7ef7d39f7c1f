package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 30*time.Second, cfg.Adaptive.RequestTimeout)
	assert.Zero(t, cfg.Adaptive.RateLimit)
	assert.Zero(t, cfg.Adaptive.CircuitBreakerThreshold)
	assert.Equal(t, "courses.yaml", cfg.Courses.File)
	assert.Equal(t, "tracking:events", cfg.Redis.TrackingChannel)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Empty(t, cfg.HTTP.APIKeys)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	assert.Zero(t, cfg.HTTP.RateLimitPerMinute)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ADAPTIVE_REQUEST_TIMEOUT", "5s")
	t.Setenv("ADAPTIVE_RATE_LIMIT", "2.5")
	t.Setenv("ADAPTIVE_RATE_LIMIT_BURST", "4")
	t.Setenv("ADAPTIVE_CB_THRESHOLD", "3")
	t.Setenv("COURSES_FILE", "/etc/hub/courses.yaml")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("HTTP_API_KEYS", " key-a, ,key-b ")
	t.Setenv("HTTP_RATE_LIMIT_PER_MINUTE", "120")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.App.Debug)
	assert.Equal(t, 5*time.Second, cfg.Adaptive.RequestTimeout)
	assert.Equal(t, 2.5, cfg.Adaptive.RateLimit)
	assert.Equal(t, 4, cfg.Adaptive.RateLimitBurst)
	assert.Equal(t, 3, cfg.Adaptive.CircuitBreakerThreshold)
	assert.Equal(t, "/etc/hub/courses.yaml", cfg.Courses.File)
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.HTTP.APIKeys)
	assert.Equal(t, 120, cfg.HTTP.RateLimitPerMinute)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("ADAPTIVE_REQUEST_TIMEOUT", "soon")
	t.Setenv("HTTP_PORT", "eighty")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Adaptive.RequestTimeout)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	t.Setenv("ADAPTIVE_CB_THRESHOLD", "-1")
	t.Setenv("HTTP_PORT", "70000")
	t.Setenv("HTTP_RATE_LIMIT_PER_MINUTE", "-5")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADAPTIVE_CB_THRESHOLD must not be negative")
	assert.Contains(t, err.Error(), "HTTP_PORT must be 1-65535")
	assert.Contains(t, err.Error(), "HTTP_RATE_LIMIT_PER_MINUTE must not be negative")
	assert.Contains(t, err.Error(), "LOG_FORMAT must be json or text")
}

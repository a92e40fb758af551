package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnvFiles points Load at a file that does not exist so a developer's
// .env cannot leak into the tests.
func noEnvFiles(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

// unset removes key for the duration of the test.
func unset(t *testing.T, key string) {
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "REDIS_URL", "WARNING_TTL", "SWEEP_INTERVAL", "CORS_ORIGINS", "LOG_FORMAT"} {
		unset(t, key)
	}

	cfg, err := Load(noEnvFiles(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "personnel.db", cfg.DBPath)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 24*time.Hour, cfg.WarningTTL)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("WARNING_TTL", "90m")
	t.Setenv("WARNING_WINDOW_DAYS", "14")
	t.Setenv("SWEEP_ENABLED", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load(noEnvFiles(t))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "redis://localhost:6379/1", cfg.RedisURL)
	assert.Equal(t, 90*time.Minute, cfg.WarningTTL)
	assert.Equal(t, 14, cfg.WarningWindowDays)
	assert.False(t, cfg.SweepEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)

	_, isJSON := cfg.Logger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	// GIVEN: An env file setting PORT and DB_PATH, and PORT in the environment
	// WHEN: Loading
	// THEN: PORT comes from the environment, DB_PATH from the file

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9999\nDB_PATH=/tmp/from-file.db\n"), 0o600))
	t.Setenv("PORT", "4000")
	unset(t, "DB_PATH")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "70000"},
		{"PORT", "not-a-number"},
		{"WARNING_TTL", "-1h"},
		{"WARNING_WINDOW_DAYS", "0"},
		{"ID_MAX_ATTEMPTS", "0"},
		{"LOG_LEVEL", "chatty"},
		{"LOG_FORMAT", "xml"},
		{"METRICS_PATH", "metrics"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load(noEnvFiles(t))
			assert.Error(t, err)
		})
	}
}

func TestValidate_DisabledSweepIgnoresInterval(t *testing.T) {
	cfg := &Config{
		Port:              8080,
		DBPath:            ":memory:",
		WarningTTL:        time.Hour,
		WarningWindowDays: 7,
		SweepEnabled:      false,
		IDMaxAttempts:     10,
		LogLevel:          "debug",
		LogFormat:         "text",
		MetricsPath:       "/metrics",
	}
	assert.NoError(t, cfg.Validate())

	cfg.SweepEnabled = true
	assert.Error(t, cfg.Validate())
}

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pacer/internal/domain"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "pacer.db", cfg.Database)
	assert.Equal(t, "local", cfg.UserID)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.Remote.PostgresURL)
	assert.Equal(t, time.Second, cfg.Sync.RetryInitial)
	assert.Equal(t, 5*time.Minute, cfg.Sync.RetryMax)
	assert.Equal(t, 15*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, 3*time.Second, cfg.Connectivity.ProbeTimeout)
	assert.Equal(t, domain.DefaultSettings("local"), cfg.Defaults)
}

func TestParse_Values(t *testing.T) {
	data := []byte(`
database: /var/lib/pacer/pacer.db
user_id: alice
log_level: debug
metrics_addr: ":9464"
remote:
  postgres_url: postgres://pacer@db/pacer
sync:
  retry_initial: 500ms
  retry_max: 1m
defaults:
  due_every_n: 3
  reminder_interval: 45m
  warning_threshold: 2.5
  units: imperial
`)
	cfg, err := Parse(data, noEnv)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pacer/pacer.db", cfg.Database)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
	assert.Equal(t, "postgres://pacer@db/pacer", cfg.Remote.PostgresURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.RetryInitial)
	assert.Equal(t, time.Minute, cfg.Sync.RetryMax)

	assert.Equal(t, domain.UserSettings{
		UserID:                "alice",
		DueEveryN:             3,
		ReminderInterval:      45 * time.Minute,
		WarningThreshold:      2.5,
		DefaultNegativeVolume: 250,
		Units:                 domain.UnitsImperial,
	}, cfg.Defaults)
}

func TestParse_EnvOverrides(t *testing.T) {
	data := []byte("database: from-file.db\nuser_id: alice\n")
	cfg, err := Parse(data, envOf(map[string]string{
		"PACER_DB":         "from-env.db",
		"PACER_REMOTE_URL": "postgres://env/pacer",
		"PACER_LOG_LEVEL":  "warn",
		"PACER_USER_ID":    "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, "alice", cfg.UserID, "empty variables do not override")
	assert.Equal(t, "postgres://env/pacer", cfg.Remote.PostgresURL)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"unknown top-level field", "colour: blue\n", ""},
		{"unknown nested field", "sync:\n  retries: 3\n", ""},
		{"due_every_n below one", "defaults:\n  due_every_n: 0\n", ""},
		{"warning threshold below one", "defaults:\n  warning_threshold: 0.5\n", ""},
		{"bad duration", "sync:\n  retry_initial: soon\n", ""},
		{"bad log level", "log_level: loud\n", ""},
		{"bad units", "defaults:\n  units: cups\n", ""},
		{"empty user", "user_id: \"\"\n", ""},
		{"max below initial", "sync:\n  retry_initial: 10s\n  retry_max: 1s\n", "sync.retry_max"},
		{"malformed yaml", "database: [\n", "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input), noEnv)
			require.Error(t, err)

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
			if tt.field != "" {
				assert.Equal(t, tt.field, cfgErr.Field)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pacer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user_id: bob\n"), 0o644))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "bob", cfg.UserID)
	assert.Equal(t, "bob", cfg.Defaults.UserID)

	missing := filepath.Join(dir, "absent.yaml")
	cfg, err = Load(missing, false)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, "local", cfg.UserID)

	_, err = Load(missing, true)
	require.Error(t, err)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("PACER_USER_ID", "carol")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.UserID)
}

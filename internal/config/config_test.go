package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instalytics/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv blanks the variables a developer shell might carry; empty values are ignored by Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"APIFY_TOKEN", "DATABASE_URL", "DB_HOST", "REDIS_ADDR", "POLL_INTERVAL",
		"POLL_MAX_WAIT", "AUTH_DISABLED", "AUTH_JWT_SECRET", "LOG_LEVEL", "RATE_LIMIT_REQUESTS",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "apify:\n  token: file-token\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Apify.Token)
	assert.Equal(t, config.DefaultActorID, cfg.Apify.ActorID)
	assert.Equal(t, config.DefaultResultsLimit, cfg.Apify.ResultsLimit)
	assert.True(t, cfg.Apify.ParentData())
	assert.Equal(t, 45*time.Second, cfg.Poll.MaxWait)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Cache.Freshness)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
apify:
  token: t
  add_parent_data: false
  results_limit: 12
poll:
  max_wait: 20s
  interval: 2s
database:
  host: db
  user: app
  password: secret
  dbname: instalytics
redis:
  addr: localhost:6379
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Apify.ParentData())
	assert.Equal(t, 12, cfg.Apify.ResultsLimit)
	assert.Equal(t, 20*time.Second, cfg.Poll.MaxWait)
	assert.True(t, cfg.Database.Enabled())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=instalytics sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, "postgres://app:secret@db:5432/instalytics?sslmode=disable", cfg.Database.MigrateURL())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "apify:\n  token: file-token\npoll:\n  interval: 2s\n")

	t.Setenv("APIFY_TOKEN", "env-token")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("RATE_LIMIT_REQUESTS", "10")
	t.Setenv("AUTH_DISABLED", "yes")
	t.Setenv("DATABASE_URL", "postgres://u:p@h:5432/d")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Apify.Token)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 10, cfg.RateLimit.Requests)
	assert.True(t, cfg.Auth.Disabled)
	assert.Equal(t, "postgres://u:p@h:5432/d", cfg.Database.DSN())
}

func TestLoad_WriteTimeoutCoversPolling(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "apify:\n  token: t\nservice:\n  write_timeout: 5s\npoll:\n  max_wait: 60s\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Greater(t, cfg.Service.WriteTimeout, cfg.Poll.MaxWait)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "apify: [unclosed"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		field  string
		server bool
	}{
		{name: "missing token", yaml: "poll:\n  interval: 1s\n", field: "apify.token"},
		{name: "max wait below interval", yaml: "apify:\n  token: t\npoll:\n  max_wait: 1s\n  interval: 3s\n", field: "poll.max_wait"},
		{name: "bad log level", yaml: "apify:\n  token: t\nlogging:\n  level: loud\n", field: "logging.level"},
		{name: "bad base url", yaml: "apify:\n  token: t\n  base_url: not-a-url\n", field: "apify.base_url"},
		{name: "server needs jwt secret", yaml: "apify:\n  token: t\n", field: "auth.jwt_secret", server: true},
		{
			name:   "bad retention schedule",
			yaml:   "apify:\n  token: t\nauth:\n  disabled: true\nretention:\n  schedule: \"every tuesday\"\n",
			field:  "retention.schedule",
			server: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := config.Load(writeConfig(t, tt.yaml))
			require.NoError(t, err)

			if tt.server {
				err = cfg.ValidateServer()
			} else {
				err = cfg.Validate()
			}

			var verr *config.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateServer_OK(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, "apify:\n  token: t\nauth:\n  jwt_secret: s3cret\n"))
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateServer())
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, config.DefaultPath, config.Path(""))

	t.Setenv("CONFIG_PATH", "/etc/instalytics.yml")
	assert.Equal(t, "/etc/instalytics.yml", config.Path(""))
	assert.Equal(t, "flag.yml", config.Path("flag.yml"))
}

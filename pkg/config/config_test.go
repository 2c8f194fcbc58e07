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
	t.Setenv("ENV", "")
	t.Setenv("DOCSTORE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, DocStoreMemory, cfg.DocStore.Driver)
	assert.Equal(t, 5, cfg.Dashboard.UpcomingLimit)
	assert.Equal(t, 3, cfg.Dashboard.TopCategories)
	assert.False(t, cfg.Dashboard.CalendarMonths)
	assert.Equal(t, 30*time.Second, cfg.Live.PingInterval)
	assert.Equal(t, 2*time.Second, cfg.Reports.RetryDelay)
	assert.Equal(t, time.Minute, cfg.Reports.MaxRetryDelay)
	assert.False(t, cfg.Audit.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DOCSTORE_DRIVER", "MONGO")
	t.Setenv("MONGO_DATABASE", "events_test")
	t.Setenv("DASHBOARD_CACHE_TTL", "90s")
	t.Setenv("LIVE_WRITE_TIMEOUT", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DocStoreMongo, cfg.DocStore.Driver)
	assert.Equal(t, "events_test", cfg.DocStore.MongoDatabase)
	assert.Equal(t, 90*time.Second, cfg.Dashboard.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Live.WriteTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadRejectsDevSecretsInProduction(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENV", "PRODUCTION")
	t.Setenv("ENABLE_REPORTS", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be set")
	assert.Contains(t, err.Error(), "REPORTS_SIGNED_URL_SECRET must be set")

	t.Setenv("JWT_SECRET", "prod-jwt")
	t.Setenv("REPORTS_SIGNED_URL_SECRET", "prod-reports")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Env)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:      EnvDevelopment,
			Port:     8080,
			DocStore: DocStoreConfig{Driver: DocStoreMemory},
			JWT:      JWTConfig{Secret: "s"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Port = 0 }, "PORT 0 out of range"},
		{"driver", func(c *Config) { c.DocStore.Driver = "sqlite" }, `DOCSTORE_DRIVER "sqlite"`},
		{"mongo uri", func(c *Config) { c.DocStore.Driver = DocStoreMongo }, "MONGO_URI is required"},
		{"jwt", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET is required"},
		{"workers", func(c *Config) { c.Reports.Enabled = true }, "REPORTS_WORKER_CONCURRENCY"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDatabaseDSNQuotesValues(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p a'ss", Name: "events", SSLMode: "disable"}
	assert.Equal(t, `host=db port=5432 user=app password='p a\'ss' dbname=events sslmode=disable`, db.DSN())

	db.Password = ""
	assert.Contains(t, db.DSN(), "password=''")
}

func TestRedisAddr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	devJWTSecret       = "dev_secret"
	devSignedURLSecret = "dev_reports_secret"
)

// Document store drivers.
const (
	DocStoreMemory = "memory"
	DocStoreMongo  = "mongo"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	DocStore  DocStoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Dashboard DashboardConfig
	Live      LiveConfig
	Reports   ReportsConfig
	Audit     AuditConfig
}

// DocStoreConfig selects and configures the document database.
type DocStoreConfig struct {
	Driver         string
	MongoURI       string
	MongoDatabase  string
	ConnectTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DashboardConfig governs one-shot dashboard summaries and their cache.
type DashboardConfig struct {
	Enabled       bool
	CacheTTL      time.Duration
	UpcomingLimit int
	TopCategories int
	// CalendarMonths sorts monthly buckets chronologically instead of by label.
	CalendarMonths bool
}

// LiveConfig tunes the websocket stream of live views.
type LiveConfig struct {
	Enabled      bool
	PingInterval time.Duration
	WriteTimeout time.Duration
	MaxSessions  int
}

// ReportsConfig configures asynchronous report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
	MaxRetryDelay     time.Duration
}

// AuditConfig toggles persisting the audit trail to Postgres.
type AuditConfig struct {
	Enabled bool
}

// Load reads .env (when present) and the process environment, applies
// defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	dur := func(key string, fallback time.Duration) time.Duration {
		return parseDuration(v.GetString(key), fallback)
	}
	return &Config{
		Env:       strings.ToLower(v.GetString("ENV")),
		Port:      v.GetInt("PORT"),
		APIPrefix: v.GetString("API_PREFIX"),
		DocStore: DocStoreConfig{
			Driver:         strings.ToLower(v.GetString("DOCSTORE_DRIVER")),
			MongoURI:       v.GetString("MONGO_URI"),
			MongoDatabase:  v.GetString("MONGO_DATABASE"),
			ConnectTimeout: dur("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:      v.GetBool("ENABLE_POSTGRES"),
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetInt("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			Name:         v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSL_MODE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("ENABLE_REDIS"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:            v.GetString("JWT_SECRET"),
			Expiration:        dur("JWT_EXPIRATION", 24*time.Hour),
			RefreshExpiration: dur("REFRESH_TOKEN_EXPIRATION", 7*24*time.Hour),
		},
		CORS: CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Dashboard: DashboardConfig{
			Enabled:        v.GetBool("ENABLE_DASHBOARD"),
			CacheTTL:       dur("DASHBOARD_CACHE_TTL", 5*time.Minute),
			UpcomingLimit:  v.GetInt("DASHBOARD_UPCOMING_LIMIT"),
			TopCategories:  v.GetInt("DASHBOARD_TOP_CATEGORIES"),
			CalendarMonths: v.GetBool("DASHBOARD_CALENDAR_MONTHS"),
		},
		Live: LiveConfig{
			Enabled:      v.GetBool("ENABLE_LIVE"),
			PingInterval: dur("LIVE_PING_INTERVAL", 30*time.Second),
			WriteTimeout: dur("LIVE_WRITE_TIMEOUT", 10*time.Second),
			MaxSessions:  v.GetInt("LIVE_MAX_SESSIONS"),
		},
		Reports: ReportsConfig{
			Enabled:           v.GetBool("ENABLE_REPORTS"),
			StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
			SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
			SignedURLTTL:      dur("REPORTS_SIGNED_URL_TTL", 24*time.Hour),
			CleanupInterval:   dur("REPORTS_CLEANUP_INTERVAL", time.Hour),
			WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
			WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
			RetryDelay:        dur("REPORTS_RETRY_DELAY", 2*time.Second),
			MaxRetryDelay:     dur("REPORTS_MAX_RETRY_DELAY", time.Minute),
		},
		Audit: AuditConfig{Enabled: v.GetBool("ENABLE_AUDIT")},
	}
}

// Validate reports every setting that would make the service misbehave at
// runtime. Production refuses the development secrets.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.DocStore.Driver {
	case DocStoreMemory:
	case DocStoreMongo:
		if c.DocStore.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DOCSTORE_DRIVER %q: want %s or %s", c.DocStore.Driver, DocStoreMemory, DocStoreMongo))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Reports.Enabled && c.Reports.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("REPORTS_WORKER_CONCURRENCY must be at least 1"))
	}
	if c.Env == EnvProduction {
		if c.JWT.Secret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		if c.Reports.Enabled && c.Reports.SignedURLSecret == devSignedURLSecret {
			errs = append(errs, errors.New("REPORTS_SIGNED_URL_SECRET must be set in production"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DSN renders the lib/pq keyword connection string.
func (d DatabaseConfig) DSN() string {
	quote := func(v string) string {
		if v == "" || strings.ContainsAny(v, " '\\") {
			return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
		}
		return v
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quote(d.Host), d.Port, quote(d.User), quote(d.Password), quote(d.Name), quote(d.SSLMode))
}

// Addr is the host:port of the Redis server.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DOCSTORE_DRIVER", DocStoreMemory)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("MONGO_DATABASE", "campus_events")
	v.SetDefault("MONGO_CONNECT_TIMEOUT", "10s")

	v.SetDefault("ENABLE_POSTGRES", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_events")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("LOG_FORMAT", "")

	v.SetDefault("ENABLE_DASHBOARD", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
	v.SetDefault("DASHBOARD_UPCOMING_LIMIT", 5)
	v.SetDefault("DASHBOARD_TOP_CATEGORIES", 3)
	v.SetDefault("DASHBOARD_CALENDAR_MONTHS", false)

	v.SetDefault("ENABLE_LIVE", true)
	v.SetDefault("LIVE_PING_INTERVAL", "30s")
	v.SetDefault("LIVE_WRITE_TIMEOUT", "10s")
	v.SetDefault("LIVE_MAX_SESSIONS", 1000)

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", devSignedURLSecret)
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
	v.SetDefault("REPORTS_RETRY_DELAY", "2s")
	v.SetDefault("REPORTS_MAX_RETRY_DELAY", "1m")

	v.SetDefault("ENABLE_AUDIT", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

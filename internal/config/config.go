// Package config loads instalytics configuration from YAML, .env files and the environment.
package config

import (
	"fmt"
	"net/url"
	"time"

	"instalytics/internal/logger"
)

// Defaults.
const (
	DefaultAddress         = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultApifyBaseURL   = "https://api.apify.com"
	DefaultActorID        = "apify/instagram-profile-scraper"
	DefaultResultsLimit   = 50
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 500 * time.Millisecond

	DefaultPollMaxWait  = 45 * time.Second
	DefaultPollInterval = 3 * time.Second

	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "disable"
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute

	DefaultRedisKeyPrefix = "instalytics:"
	DefaultRedisTTL       = time.Hour

	DefaultCacheFreshness = 24 * time.Hour

	DefaultRateLimitRequests = 5
	DefaultRateLimitWindow   = time.Minute

	DefaultRetentionSchedule = "@daily"
	DefaultRetentionMaxAge   = 90 * 24 * time.Hour

	// writeTimeoutSlack is added on top of poll.max_wait for the HTTP write timeout.
	writeTimeoutSlack = 15 * time.Second
)

// Config is the root configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Apify     ApifyConfig     `yaml:"apify"`
	Poll      PollConfig      `yaml:"poll"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   logger.Config   `yaml:"logging"`
}

type ServiceConfig struct {
	Address         string        `env:"SERVICE_ADDRESS"  yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // raised to cover poll.max_wait
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Debug           bool          `env:"APP_DEBUG"        yaml:"debug"`
}

type ApifyConfig struct {
	Token           string        `env:"APIFY_TOKEN"      yaml:"token"`
	BaseURL         string        `env:"APIFY_BASE_URL"   yaml:"base_url"`
	ActorID         string        `env:"APIFY_ACTOR_ID"   yaml:"actor_id"`
	ResultsLimit    int           `env:"APIFY_RESULTS_LIMIT" yaml:"results_limit"`
	AddParentData   *bool         `yaml:"add_parent_data"`
	SkipPinnedPosts bool          `env:"APIFY_SKIP_PINNED" yaml:"skip_pinned_posts"`
	RequestTimeout  time.Duration `env:"APIFY_REQUEST_TIMEOUT" yaml:"request_timeout"`
	RetryAttempts   uint          `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// ParentData reports whether profile data should be attached to each scraped post.
func (c ApifyConfig) ParentData() bool {
	return c.AddParentData == nil || *c.AddParentData
}

type PollConfig struct {
	MaxWait  time.Duration `env:"POLL_MAX_WAIT"  yaml:"max_wait"`
	Interval time.Duration `env:"POLL_INTERVAL"  yaml:"interval"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" yaml:"url"`
	Host            string        `env:"DB_HOST"      yaml:"host"`
	Port            int           `env:"DB_PORT"      yaml:"port"`
	User            string        `env:"DB_USER"      yaml:"user"`
	Password        string        `env:"DB_PASSWORD"  yaml:"password"`
	DBName          string        `env:"DB_NAME"      yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"   yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrateURL returns the postgres:// URL golang-migrate expects.
func (c DatabaseConfig) MigrateURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR"     yaml:"addr"`
	Password  string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB        int           `env:"REDIS_DB"       yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `env:"REDIS_TTL"      yaml:"ttl"`
}

// Enabled reports whether the redis hot cache is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type CacheConfig struct {
	// Freshness is how long a stored analysis is served before a new scrape is launched.
	Freshness time.Duration `env:"CACHE_FRESHNESS" yaml:"freshness"`
}

type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
	Disabled  bool   `env:"AUTH_DISABLED"   yaml:"disabled"`
}

type RateLimitConfig struct {
	Requests int           `env:"RATE_LIMIT_REQUESTS" yaml:"requests"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW"   yaml:"window"`
	Disabled bool          `env:"RATE_LIMIT_DISABLED" yaml:"disabled"`
}

type ArchiveConfig struct {
	// Dir holds raw job artifacts. Empty disables archiving.
	Dir string `env:"ARCHIVE_DIR" yaml:"dir"`
}

type RetentionConfig struct {
	Schedule string        `env:"RETENTION_SCHEDULE" yaml:"schedule"`
	MaxAge   time.Duration `env:"RETENTION_MAX_AGE"  yaml:"max_age"`
	Disabled bool          `env:"RETENTION_DISABLED" yaml:"disabled"`
}

func setDefaults(cfg *Config) {
	if cfg.Service.Address == "" {
		cfg.Service.Address = DefaultAddress
	}
	if cfg.Service.ReadTimeout == 0 {
		cfg.Service.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Service.ShutdownTimeout == 0 {
		cfg.Service.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Apify.BaseURL == "" {
		cfg.Apify.BaseURL = DefaultApifyBaseURL
	}
	if cfg.Apify.ActorID == "" {
		cfg.Apify.ActorID = DefaultActorID
	}
	if cfg.Apify.ResultsLimit == 0 {
		cfg.Apify.ResultsLimit = DefaultResultsLimit
	}
	if cfg.Apify.RequestTimeout == 0 {
		cfg.Apify.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Apify.RetryAttempts == 0 {
		cfg.Apify.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.Apify.RetryDelay == 0 {
		cfg.Apify.RetryDelay = DefaultRetryDelay
	}

	if cfg.Poll.MaxWait == 0 {
		cfg.Poll.MaxWait = DefaultPollMaxWait
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = DefaultPollInterval
	}

	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultConnMaxLifetime
	}

	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}

	if cfg.Cache.Freshness == 0 {
		cfg.Cache.Freshness = DefaultCacheFreshness
	}

	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = DefaultRateLimitRequests
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = DefaultRateLimitWindow
	}

	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.Retention.MaxAge == 0 {
		cfg.Retention.MaxAge = DefaultRetentionMaxAge
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = logger.DefaultLevel
	}
}

// deriveTimeouts keeps the HTTP write timeout above the client-side poll budget.
func deriveTimeouts(cfg *Config) {
	minWrite := cfg.Poll.MaxWait + cfg.Apify.RequestTimeout + writeTimeoutSlack
	if cfg.Service.WriteTimeout < minWrite {
		cfg.Service.WriteTimeout = minWrite
	}
}

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is where Load looks for the YAML configuration.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for survey-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Local record store (SQLite)
	Local LocalConfig `yaml:"local"`

	// Cloud sync (PostgreSQL document store). Optional.
	Sync SyncConfig `yaml:"sync"`

	// Learned-mapping cache
	Cache CacheConfig `yaml:"cache"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are validated.
	// Set to false for local development; tokens are then parsed unverified
	// and requests without a token fall back to DevUserID.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSURL verifies RS256 tokens against a JWKS endpoint when set.
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`

	// JWTSecret verifies HS256 tokens when JWKSURL is empty.
	JWTSecret string `yaml:"-" env:"AUTH_JWT_SECRET"` // Secret - not in YAML

	// DevUserID is used when verification is disabled and no token is sent.
	DevUserID string `yaml:"dev_user_id" env:"AUTH_DEV_USER_ID" env-default:"local-user"`
}

// LocalConfig holds the local record store settings.
type LocalConfig struct {
	SQLitePath string `yaml:"sqlite_path" env:"LOCAL_SQLITE_PATH" env-default:"survey-engine.db"`
	Debug      bool   `yaml:"debug" env:"LOCAL_DEBUG" env-default:"false"`
}

// SyncConfig holds the remote document store and sync adapter settings.
type SyncConfig struct {
	Host           string `yaml:"host" env:"SYNC_PGHOST" env-default:""`
	Port           int    `yaml:"port" env:"SYNC_PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"SYNC_PGUSER" env-default:""`
	Password       string `yaml:"-" env:"SYNC_PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"SYNC_PGDATABASE" env-default:""`
	SSLMode        string `yaml:"ssl_mode" env:"SYNC_PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"SYNC_PGMAX_CONNECTIONS" env-default:"10"`
	MigrationsPath string `yaml:"migrations_path" env:"SYNC_MIGRATIONS_PATH" env-default:"migrations"`

	ChunkSize        int           `yaml:"chunk_size" env:"SYNC_CHUNK_SIZE" env-default:"500"`
	InterChunkDelay  time.Duration `yaml:"inter_chunk_delay" env:"SYNC_INTER_CHUNK_DELAY" env-default:"100ms"`
	PollInterval     time.Duration `yaml:"poll_interval" env:"SYNC_POLL_INTERVAL" env-default:"30s"`
	CheckTimeout     time.Duration `yaml:"check_timeout" env:"SYNC_CHECK_TIMEOUT" env-default:"3s"`
	ProgressStart    float64       `yaml:"progress_start" env:"SYNC_PROGRESS_START" env-default:"70"`
	ProgressEnd      float64       `yaml:"progress_end" env:"SYNC_PROGRESS_END" env-default:"100"`
	MaxDrainAttempts int           `yaml:"max_drain_attempts" env:"SYNC_MAX_DRAIN_ATTEMPTS" env-default:"5"`
}

// CacheConfig holds learned-mapping cache settings.
type CacheConfig struct {
	LearnedTTL      time.Duration `yaml:"learned_ttl" env:"CACHE_LEARNED_TTL" env-default:"5m"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CACHE_CLEANUP_INTERVAL" env-default:"10m"`
}

// IsConfigured reports whether every required remote credential is present.
// An unconfigured sync disables the cloud path but never the local one.
func (c *SyncConfig) IsConfigured() bool {
	return c.Host != "" && c.User != "" && c.Password != "" && c.Database != ""
}

// ConnectionString returns a PostgreSQL connection URL for the remote store.
// A loopback host is rewritten when running inside a container.
func (c *SyncConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(ResolveHostForDocker(c.Host), strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom reads configuration from the given YAML path. A missing file is not an
// error; configuration then comes from environment variables and defaults only.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		return FromEnv(version)
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return cfg.finish()
}

// FromEnv builds configuration from environment variables and defaults only.
func FromEnv(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg.finish()
}

func (c *Config) finish() (*Config, error) {
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if c.BaseURL == "" {
		c.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + c.Port,
		}).String()
	}

	return c, nil
}

func (c *Config) validate() error {
	if c.Sync.ChunkSize <= 0 || c.Sync.ChunkSize > 500 {
		return fmt.Errorf("sync.chunk_size must be between 1 and 500, got %d", c.Sync.ChunkSize)
	}
	if c.Sync.ProgressStart < 0 || c.Sync.ProgressEnd > 100 || c.Sync.ProgressStart >= c.Sync.ProgressEnd {
		return fmt.Errorf("sync progress range [%v,%v] must satisfy 0 <= start < end <= 100",
			c.Sync.ProgressStart, c.Sync.ProgressEnd)
	}
	if c.Auth.EnableVerification && c.Auth.JWKSURL == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth verification requires AUTH_JWKS_URL or AUTH_JWT_SECRET")
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration. Values come from the environment, optionally
// layered over a YAML file named by CRMSYNC_CONFIG.
type Config struct {
	AppEnv  string
	LogFile string
	Port    string

	Database DatabaseConfig
	Redis    RedisConfig
	Remote   RemoteConfig
	Sync     SyncConfig
}

type DatabaseConfig struct {
	Driver   string // postgres | sqlite
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Path     string // sqlite file
}

// DSN returns the postgres connection string used by both gorm and sqlx.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type RemoteConfig struct {
	BaseURL           string
	APIKey            string
	LocationID        string
	APIVersion        string
	MinInterval       time.Duration
	MaxRetries        int
	RetryBase         time.Duration
	RetryMax          time.Duration
	Timeout           time.Duration
	BookingPipelineID string
	MemberPipelineID  string
}

type SyncConfig struct {
	PageSize          int
	Interval          time.Duration
	PendingInterval   time.Duration
	ConcurrentImports bool
	PushTimeout       time.Duration
	CacheBackend      string // memory | redis
	PushQueueEnabled  bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("PG_HOST", "localhost")
	v.SetDefault("PG_PORT", "5432")
	v.SetDefault("PG_USER", "postgres")
	v.SetDefault("PG_DB", "crmsync")
	v.SetDefault("SQLITE_PATH", "crmsync.db")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")

	v.SetDefault("CRM_BASE_URL", "https://services.leadconnectorhq.com")
	v.SetDefault("CRM_API_VERSION", "2021-07-28")
	v.SetDefault("CRM_MIN_INTERVAL", "100ms")
	v.SetDefault("CRM_MAX_RETRIES", 3)
	v.SetDefault("CRM_RETRY_BASE", "500ms")
	v.SetDefault("CRM_RETRY_MAX", "8s")
	v.SetDefault("CRM_TIMEOUT", "30s")
	v.SetDefault("CRM_BOOKING_PIPELINE_ID", "IlWdPtOpcczLpgsde2KF")
	v.SetDefault("CRM_MEMBER_PIPELINE_ID", "fnsdpRtY9o83Vr4z15bE")

	v.SetDefault("SYNC_PAGE_SIZE", 100)
	v.SetDefault("SYNC_INTERVAL", "1h")
	v.SetDefault("SYNC_PENDING_INTERVAL", "5m")
	v.SetDefault("SYNC_CONCURRENT_IMPORTS", false)
	v.SetDefault("PUSH_TIMEOUT", "10s")
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("PUSH_QUEUE_ENABLED", false)
}

// Load reads configuration from the environment and the optional config file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CRMSYNC_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppEnv:  v.GetString("APP_ENV"),
		LogFile: v.GetString("LOG_FILE"),
		Port:    v.GetString("PORT"),
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			Host:     v.GetString("PG_HOST"),
			Port:     v.GetString("PG_PORT"),
			User:     v.GetString("PG_USER"),
			Password: v.GetString("PG_PASSWORD"),
			Name:     v.GetString("PG_DB"),
			Path:     v.GetString("SQLITE_PATH"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Remote: RemoteConfig{
			BaseURL:           strings.TrimRight(v.GetString("CRM_BASE_URL"), "/"),
			APIKey:            v.GetString("CRM_API_KEY"),
			LocationID:        v.GetString("CRM_LOCATION_ID"),
			APIVersion:        v.GetString("CRM_API_VERSION"),
			MinInterval:       v.GetDuration("CRM_MIN_INTERVAL"),
			MaxRetries:        v.GetInt("CRM_MAX_RETRIES"),
			RetryBase:         v.GetDuration("CRM_RETRY_BASE"),
			RetryMax:          v.GetDuration("CRM_RETRY_MAX"),
			Timeout:           v.GetDuration("CRM_TIMEOUT"),
			BookingPipelineID: v.GetString("CRM_BOOKING_PIPELINE_ID"),
			MemberPipelineID:  v.GetString("CRM_MEMBER_PIPELINE_ID"),
		},
		Sync: SyncConfig{
			PageSize:          v.GetInt("SYNC_PAGE_SIZE"),
			Interval:          v.GetDuration("SYNC_INTERVAL"),
			PendingInterval:   v.GetDuration("SYNC_PENDING_INTERVAL"),
			ConcurrentImports: v.GetBool("SYNC_CONCURRENT_IMPORTS"),
			PushTimeout:       v.GetDuration("PUSH_TIMEOUT"),
			CacheBackend:      strings.ToLower(v.GetString("CACHE_BACKEND")),
			PushQueueEnabled:  v.GetBool("PUSH_QUEUE_ENABLED"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the engine cannot run without.
func (c *Config) Validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 500 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 500, got %d", c.Sync.PageSize)
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("CRM_MAX_RETRIES must not be negative")
	}
	if c.Sync.CacheBackend != "memory" && c.Sync.CacheBackend != "redis" {
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.Sync.CacheBackend)
	}
	return nil
}

// RequireRemote is checked by commands that talk to the CRM.
func (c *Config) RequireRemote() error {
	if c.Remote.APIKey == "" {
		return fmt.Errorf("CRM_API_KEY is not set")
	}
	if c.Remote.LocationID == "" {
		return fmt.Errorf("CRM_LOCATION_ID is not set")
	}
	return nil
}

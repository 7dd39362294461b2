// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string   `envconfig:"LISTEN_ADDR" default:":8080" validate:"required"`
	MetricsAddr string   `envconfig:"METRICS_ADDR" default:":9090"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`

	// Database
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"postgres" validate:"oneof=postgres sqlite3"`
	DatabaseURL    string `envconfig:"DATABASE_URL" validate:"required"`

	// Storage
	StoragePath       string `envconfig:"STORAGE_PATH" default:"./storage" validate:"required"`
	StorageCreateDirs bool   `envconfig:"STORAGE_CREATE_DIRS" default:"true"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET" validate:"required,min=16"`

	// Search cache ("memory" or "redis")
	SearchCacheBackend string        `envconfig:"SEARCH_CACHE_BACKEND" default:"memory" validate:"oneof=memory redis"`
	SearchCacheTTL     time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"300s" validate:"gt=0"`
	SearchCacheSize    int           `envconfig:"SEARCH_CACHE_SIZE" default:"1024" validate:"gt=0"`
	RedisAddr          string        `envconfig:"REDIS_ADDR" validate:"required_if=SearchCacheBackend redis"`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD"`
	RedisDB            int           `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`

	// Rate limiting (per user; 0 disables)
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20" validate:"gte=0"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"40" validate:"gte=0"`

	// Filesystem operations
	MaxUploadSize           int64    `envconfig:"MAX_UPLOAD_SIZE" default:"104857600" validate:"gt=0"`
	MaxSubFolders           int      `envconfig:"MAX_SUBFOLDERS" default:"50" validate:"gt=0,lte=1000"`
	CreateFolderMaxAttempts int      `envconfig:"CREATE_FOLDER_MAX_ATTEMPTS" default:"100" validate:"gt=0"`
	OpenerEnabled           bool     `envconfig:"OPENER_ENABLED" default:"false"`
	ReconcileOnStart        bool     `envconfig:"RECONCILE_ON_START" default:"false"`
	ReconcileIgnore         []string `envconfig:"RECONCILE_IGNORE" default:"**/.git,**/node_modules,*.swp"`
}

// Load reads configuration from environment variables with defaults and
// validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://filehub@localhost/filehub?sslmode=disable")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 300*time.Second, cfg.SearchCacheTTL)
	assert.Equal(t, "memory", cfg.SearchCacheBackend)
	assert.Equal(t, []string{"**/.git", "**/node_modules", "*.swp"}, cfg.ReconcileIgnore)
	assert.Equal(t, 50, cfg.MaxSubFolders)
	assert.False(t, cfg.OpenerEnabled)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("SEARCH_CACHE_TTL", "1m")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, time.Minute, cfg.SearchCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Zero(t, cfg.RateLimitRPS)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}, "DATABASE_DRIVER"},
		{"redis without address", map[string]string{"SEARCH_CACHE_BACKEND": "redis"}, "REDIS_ADDR"},
		{"bad ignore glob", map[string]string{"RECONCILE_IGNORE": "[oops"}, "RECONCILE_IGNORE"},
		{"metrics on api port", map[string]string{"METRICS_ADDR": ":8080"}, "METRICS_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// FileHub Server
//
// Features:
// - Folder browsing scoped by per-user path grants
// - Create/rename/delete/upload with a best-effort metadata index
// - Paginated metadata search with a memory or Redis result cache
// - Grant administration and filesystem reconcile (admin only)
// - Prometheus metrics, structured logging (zap), per-user rate limiting
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/api"
	"github.com/rameshkrishnan-s/FileHub/internal/auth"
	"github.com/rameshkrishnan-s/FileHub/internal/config"
	"github.com/rameshkrishnan-s/FileHub/internal/database"
	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metadata"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/opener"
	"github.com/rameshkrishnan-s/FileHub/internal/quota"
	"github.com/rameshkrishnan-s/FileHub/internal/retry"
	"github.com/rameshkrishnan-s/FileHub/internal/search"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
	"github.com/rameshkrishnan-s/FileHub/internal/storage/local"
	"github.com/rameshkrishnan-s/FileHub/internal/vfs"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("FileHub server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("database", cfg.DatabaseDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The database may still be starting under compose.
	db, err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) (*database.DB, error) {
		db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		return db, retry.Transient(err)
	}, func(attempt int, err error) {
		logging.Warn("database not ready", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logging.Fatal("migration failed", zap.Error(err))
	}

	root, err := local.New(local.Config{RootPath: cfg.StoragePath, CreateDirs: cfg.StorageCreateDirs})
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}
	logging.Info("storage root ready", zap.String("path", root.Path()))

	metaStore := metadata.NewStore(db)
	grantStore := sharing.NewGrantStore(db)

	cache, closeCache, err := newSearchCache(ctx, cfg)
	if err != nil {
		logging.Fatal("search cache init failed", zap.Error(err))
	}
	defer closeCache()

	var op opener.Opener = opener.Disabled{}
	if cfg.OpenerEnabled {
		op = opener.NewExec()
		logging.Info("host opener enabled")
	}

	svc, err := vfs.New(root, metaStore, sharing.NewResolver(grantStore), search.New(metaStore, root, cache), op, vfs.Config{
		MaxCreateAttempts: cfg.CreateFolderMaxAttempts,
		MaxSubFolders:     cfg.MaxSubFolders,
		ReconcileIgnore:   cfg.ReconcileIgnore,
	})
	if err != nil {
		logging.Fatal("service init failed", zap.Error(err))
	}

	if cfg.ReconcileOnStart {
		if _, err := svc.ReconcileAll(ctx); err != nil {
			logging.Error("startup reconcile failed", zap.Error(err))
		}
	}

	rateLimiter := quota.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(svc, grantStore, auth.New(cfg.JWTSecret), rateLimiter, api.Config{
		CORSOrigins:   cfg.CORSOrigins,
		MaxUploadSize: cfg.MaxUploadSize,
	})

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	if cfg.MetricsAddr != "" {
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start periodic metrics update
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.ReportStats()
			}
		}
	}()

	// Start periodic cleanup of idle rate limiter buckets
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Cleanup(24 * time.Hour)
			}
		}
	}()

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logging.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("http shutdown failed", zap.Error(err))
		}
		metricsServer.Close()
	}()

	logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
}

// newSearchCache builds the configured result cache. The returned func
// releases its resources.
func newSearchCache(ctx context.Context, cfg *config.Config) (search.Cache, func(), error) {
	if cfg.SearchCacheBackend != "redis" {
		logging.Info("search cache: memory",
			zap.Int("size", cfg.SearchCacheSize),
			zap.Duration("ttl", cfg.SearchCacheTTL))
		return search.NewMemoryCache(cfg.SearchCacheSize, cfg.SearchCacheTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rcfg := retry.DefaultConfig()
	rcfg.MaxAttempts = 5
	_, err := retry.Do(ctx, rcfg, func(ctx context.Context) (string, error) {
		s, err := client.Ping(ctx).Result()
		return s, retry.Transient(err)
	}, func(attempt int, err error) {
		logging.Warn("redis not ready", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logging.Info("search cache: redis",
		zap.String("addr", cfg.RedisAddr),
		zap.Duration("ttl", cfg.SearchCacheTTL))
	return search.NewRedisCache(client, cfg.SearchCacheTTL), func() { client.Close() }, nil
}

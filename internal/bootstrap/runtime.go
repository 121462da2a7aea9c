// Package bootstrap wires process-wide runtime dependencies for the binaries.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"studyhub/internal/cache"
	"studyhub/internal/config"
	"studyhub/internal/database"
	"studyhub/internal/observability"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InitRuntime configures logging, connects to the database and Redis, and
// makes sure the resource directories exist. The Redis client is nil when
// Redis is unreachable.
func InitRuntime(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	observability.ConfigureLogger(cfg.Env, cfg.LogLevel)

	for _, dir := range []string{cfg.ResourceRoot, cfg.TempUploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()
	if r == nil {
		observability.Logger.Warn("redis unavailable, running without cache and rate limits",
			slog.String("addr", cfg.RedisURL))
	}

	return db, r, nil
}

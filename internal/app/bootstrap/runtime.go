package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/robo-agendamentos/internal/config"
	"github.com/wolfman30/robo-agendamentos/internal/correlation"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildCorrelationStore creates the in-memory correlation store. When the
// mirror is enabled and Redis is reachable, entries are mirrored and the
// previous process's entries are restored.
func BuildCorrelationStore(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *correlation.Store {
	if logger == nil {
		logger = logging.Default()
	}
	store := correlation.NewStore(logger)
	if cfg == nil || !cfg.CorrelationMirror {
		return store
	}
	if redisClient == nil {
		logger.Warn("correlation mirror enabled but redis unavailable; running memory-only")
		return store
	}

	store.WithMirror(correlation.NewRedisMirror(redisClient, cfg.CorrelationRetention))
	restored, err := store.Restore(ctx)
	if err != nil {
		logger.Warn("correlation restore failed", "error", err)
		return store
	}
	logger.Info("correlation mirror enabled", "restored", restored)
	return store
}

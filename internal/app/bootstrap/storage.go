package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/robo-agendamentos/internal/archive"
	appconfig "github.com/wolfman30/robo-agendamentos/internal/config"
	"github.com/wolfman30/robo-agendamentos/internal/outcome"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// BuildPersister returns the Postgres outcome store, or a log-only store when
// DATABASE_URL is empty. The returned closer releases the pool.
func BuildPersister(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (outcome.Persister, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; outcomes will only be logged")
		return outcome.NewLogStore(logger), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return outcome.NewPostgresStore(pool), pool.Close, nil
}

// BuildArchive returns the voice-note archive; it is disabled when no bucket
// is configured.
func BuildArchive(cfg *appconfig.Config, s3Client archive.S3API, logger *logging.Logger) *archive.Store {
	if strings.TrimSpace(cfg.AudioArchiveBucket) == "" {
		return archive.NewStore(nil, "", logger)
	}
	return archive.NewStore(s3Client, cfg.AudioArchiveBucket, logger)
}

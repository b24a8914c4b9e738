package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/arbstack/arbengine/internal/blob/s3"
	"github.com/arbstack/arbengine/internal/cache/redis"
	"github.com/arbstack/arbengine/internal/config"
	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/store/postgres"
)

// Dependencies bundles the external-infrastructure dependencies the engine
// needs. Every field may be nil when the corresponding backend is disabled;
// the engine degrades to in-memory operation. Constructed by Wire and torn
// down by the returned cleanup function.
type Dependencies struct {
	// Redis
	Mirror domain.PriceMirror
	Bus    domain.SignalBus

	// Postgres
	PositionStore  domain.PositionStore
	ExecutionStore domain.ExecutionStore

	// S3
	Archiver *s3blob.ExecutionArchiver
}

// Wire constructs the concrete infrastructure implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release connections.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (price mirror + signal bus) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Mirror = redis.NewPriceMirror(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
	}

	// --- PostgreSQL (position and execution persistence) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunSchema {
			if err := pgClient.EnsureSchema(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
	}

	// --- S3 (execution archiver; needs the execution store to read from) ---
	if cfg.S3.Enabled && deps.ExecutionStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewExecutionArchiver(
			s3blob.NewWriter(s3Client),
			deps.ExecutionStore,
			logger,
		)
	}

	return deps, cleanup, nil
}

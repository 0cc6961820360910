package app

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/OscarCaraballo97/inferno-payment/pkg/database"
	"github.com/OscarCaraballo97/inferno-payment/pkg/health"

	"github.com/OscarCaraballo97/inferno-payment/internal/config"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
	memoryrepo "github.com/OscarCaraballo97/inferno-payment/internal/repository/memory"
	postgresrepo "github.com/OscarCaraballo97/inferno-payment/internal/repository/postgres"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository/postgres/migrations"
	redisrepo "github.com/OscarCaraballo97/inferno-payment/internal/repository/redis"
)

// store bundles a saga repository with the connections behind it.
type store struct {
	repo  repository.SagaRepository
	redis *goredis.Client

	close func()
}

// newStore builds the saga store selected by STATUS_STORE_DRIVER and
// registers its connectivity check on the health handler.
func newStore(ctx context.Context, cfg *config.Common, h *health.Handler, logger *slog.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("using in-memory saga store, records do not survive restarts")
		return &store{repo: memoryrepo.NewSagaRepository(), close: func() {}}, nil

	case config.StoreRedis:
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		h.RegisterCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return &store{
			repo:  redisrepo.NewSagaRepository(client),
			redis: client,
			close: func() { _ = client.Close() },
		}, nil

	case config.StorePostgres:
		pgCfg := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		h.RegisterCritical("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		return &store{
			repo:  postgresrepo.NewSagaRepository(pool),
			close: pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown status store driver %q", cfg.StoreDriver)
	}
}

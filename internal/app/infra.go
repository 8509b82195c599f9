package app

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/audit"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/config"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/redis"

	_ "github.com/lib/pq"
)

// Infra holds the optional backing services. Both are nil when not
// configured: the gateway degrades to an in-process rate limit store and
// a no-op audit recorder.
type Infra struct {
	DB    *sql.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Infra, error) {
	infra := &Infra{}

	if cfg.Database.DSN != "" {
		sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, err
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}

		if err := audit.RunMigration(ctx, sqlDB); err != nil {
			return nil, err
		}

		log.Info("database ready")
		infra.DB = sqlDB
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}

		log.Info("redis ready")
		infra.Redis = redisClient
	}

	return infra, nil
}

func (i *Infra) close() error {
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		return i.DB.Close()
	}
	return nil
}
